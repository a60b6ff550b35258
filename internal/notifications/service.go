package notifications

import (
	"context"
	"encoding/json"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	pkgerrors "github.com/camilomorales/domicilios-backend/pkg/errors"
	"github.com/camilomorales/domicilios-backend/pkg/logger"
	"github.com/camilomorales/domicilios-backend/pkg/pagination"
	"github.com/google/uuid"
)

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

type userReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service defines notification dispatch and list/read operations.
type Service interface {
	Dispatch(ctx context.Context, input DispatchInput)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo   Repository
	pub    publisher
	users  userReader
	logger *logger.Logger
}

// DispatchInput carries one notification to persist and push.
type DispatchInput struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
	OrderID *uuid.UUID
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notifications dependencies. The publisher and user reader
// may be nil when push delivery is disabled; rows are still persisted.
func NewService(repo Repository, pub publisher, users userReader, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications logger required")
	}
	return &service{repo: repo, pub: pub, users: users, logger: logg}, nil
}

type pushPayload struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	UserID         uuid.UUID              `json:"user_id"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	OrderID        *uuid.UUID             `json:"order_id,omitempty"`
}

// Dispatch persists the notification row and pushes it to the notification
// topic. Failures are logged and swallowed: notifications never fail the
// operation that produced them.
func (s *service) Dispatch(ctx context.Context, input DispatchInput) {
	if input.UserID == uuid.Nil {
		s.logger.Warn(ctx, "notification dropped: user id missing")
		return
	}

	row := &models.Notification{
		UserID:  input.UserID,
		Type:    input.Type,
		Title:   input.Title,
		Message: input.Message,
		OrderID: input.OrderID,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error(ctx, "persist notification", err)
		return
	}

	if s.pub == nil {
		return
	}

	payload, err := json.Marshal(pushPayload{
		NotificationID: row.ID,
		UserID:         row.UserID,
		Type:           row.Type,
		Title:          row.Title,
		Message:        row.Message,
		OrderID:        row.OrderID,
	})
	if err != nil {
		s.logger.Error(ctx, "encode notification payload", err)
		return
	}

	attributes := map[string]string{
		"type":    string(row.Type),
		"user_id": row.UserID.String(),
	}
	if token := s.pushToken(ctx, row.UserID); token != "" {
		attributes["push_token"] = token
	}

	result := s.pub.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attributes,
	})

	go func() {
		waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if _, err := result.Get(waitCtx); err != nil {
			s.logger.Error(waitCtx, "publish notification", err)
		}
	}()
}

// pushToken resolves the recipient's device token. Missing users or tokens
// just mean the push consumer falls back to in-app delivery.
func (s *service) pushToken(ctx context.Context, userID uuid.UUID) string {
	if s.users == nil {
		return ""
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn(ctx, "load user for push delivery")
		return ""
	}
	if !user.IsActive || user.PushToken == nil {
		return ""
	}
	return *user.PushToken
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
