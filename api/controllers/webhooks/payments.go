package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/camilomorales/domicilios-backend/api/responses"
	"github.com/camilomorales/domicilios-backend/internal/settlement"
	pkgerrors "github.com/camilomorales/domicilios-backend/pkg/errors"
	"github.com/camilomorales/domicilios-backend/pkg/logger"
)

const signatureHeader = "X-Event-Signature"

type paymentsWebhookService interface {
	HandleEvent(ctx context.Context, event settlement.Event) (string, error)
}

type paymentsWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type secretProvider interface {
	EventsSecret() string
}

// PaymentsWebhook receives transaction events from the payment gateway.
// Benign non-settling outcomes are acknowledged with a 200 so the gateway
// stops retrying; errors propagate so the delivery is retried.
func PaymentsWebhook(svc paymentsWebhookService, secrets secretProvider, guard paymentsWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if secrets == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(signatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event signature missing"))
			return
		}
		if !verifySignature(payload, signature, secrets.EventsSecret()) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "event signature mismatch"))
			return
		}

		var event settlement.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event payload"))
			return
		}
		if event.ID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}

		alreadySeen, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if alreadySeen {
			responses.WriteSuccess(w, map[string]string{"status": settlement.OutcomeSuccess})
			return
		}

		outcome, err := svc.HandleEvent(ctx, event)
		if err != nil {
			// Drop the mark so the gateway's retry is not swallowed.
			_ = guard.Release(ctx, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": outcome})
	}
}

func verifySignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
