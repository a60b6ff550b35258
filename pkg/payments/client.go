package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/camilomorales/domicilios-backend/pkg/config"
	pkgerrors "github.com/camilomorales/domicilios-backend/pkg/errors"
	"github.com/camilomorales/domicilios-backend/pkg/logger"
)

// Transaction statuses reported by the gateway.
const (
	TransactionStatusApproved = "APPROVED"
	TransactionStatusDeclined = "DECLINED"
	TransactionStatusVoided   = "VOIDED"
	TransactionStatusError    = "ERROR"
	TransactionStatusPending  = "PENDING"
)

var (
	errBaseURLRequired      = errors.New("payments base url is required")
	errPrivateKeyRequired   = errors.New("payments private key is required")
	errEventsSecretRequired = errors.New("payments events secret is required")
	errLoggerRequired       = errors.New("payments logger is required")

	// ErrTransactionNotFound marks a gateway 404 so callers can treat it as benign.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Transaction is the gateway's authoritative record of a payment attempt.
// Reference carries the order id the merchant attached at checkout.
type Transaction struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method_type"`
	CreatedAt     string `json:"created_at"`
	FinalizedAt   string `json:"finalized_at"`
}

// IsApproved reports whether the gateway settled the transaction.
func (t *Transaction) IsApproved() bool {
	return t != nil && t.Status == TransactionStatusApproved
}

// Client talks to the payment gateway's REST API with centralized auth,
// logging, and error mapping.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	privateKey   string
	eventsSecret string
	logger       *logger.Logger
}

// NewClient initializes the gateway wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.PaymentsConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	privateKey := strings.TrimSpace(cfg.PrivateKey)
	if privateKey == "" {
		return nil, errPrivateKeyRequired
	}
	eventsSecret := strings.TrimSpace(cfg.EventsSecret)
	if eventsSecret == "" {
		return nil, errEventsSecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		privateKey:   privateKey,
		eventsSecret: eventsSecret,
		logger:       logg,
	}

	logg.Info(ctx, "payments client initialized")
	return c, nil
}

// EventsSecret returns the webhook signature secret.
func (c *Client) EventsSecret() string {
	if c == nil {
		return ""
	}
	return c.eventsSecret
}

// GetTransaction fetches the authoritative transaction record from the
// gateway. A gateway 404 is returned as ErrTransactionNotFound.
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	id := strings.TrimSpace(transactionID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	endpoint := fmt.Sprintf("%s/v1/transactions/%s", c.baseURL, url.PathEscape(id))
	c.log(ctx, "request", "get_transaction", map[string]any{"transaction_id": id})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building gateway request")
	}
	req.Header.Set("Authorization", "Bearer "+c.privateKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(ctx, "error", "get_transaction", map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway get transaction failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.log(ctx, "response", "get_transaction", map[string]any{"status_code": resp.StatusCode})
		return nil, ErrTransactionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log(ctx, "error", "get_transaction", map[string]any{
			"status_code": resp.StatusCode,
			"error":       string(body),
		})
		code := domainCodeForStatus(resp.StatusCode)
		return nil, pkgerrors.New(code, fmt.Sprintf("gateway get transaction failed with status %d", resp.StatusCode))
	}

	var payload struct {
		Data Transaction `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding gateway transaction")
	}

	c.log(ctx, "response", "get_transaction", map[string]any{
		"transaction_id": payload.Data.ID,
		"status":         payload.Data.Status,
		"reference":      payload.Data.Reference,
	})
	return &payload.Data, nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("payments %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("payments %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "token", "cvv", "cvc", "secret", "key", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
