package payouts

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/camilomorales/domicilios-backend/api/middleware"
	"github.com/camilomorales/domicilios-backend/api/responses"
	"github.com/camilomorales/domicilios-backend/api/validators"
	internalpayouts "github.com/camilomorales/domicilios-backend/internal/payouts"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	pkgerrors "github.com/camilomorales/domicilios-backend/pkg/errors"
	"github.com/camilomorales/domicilios-backend/pkg/logger"
	"github.com/camilomorales/domicilios-backend/pkg/pagination"
)

type withdrawalCreateRequest struct {
	AmountCents        int64  `json:"amount_cents" validate:"required,min=1"`
	DestinationAccount string `json:"destination_account" validate:"required"`
}

type withdrawalDecisionRequest struct {
	Approve bool    `json:"approve"`
	Reason  *string `json:"reason"`
}

type settleOrdersRequest struct {
	Role      string      `json:"role" validate:"required"`
	SubjectID uuid.UUID   `json:"subject_id" validate:"required"`
	OrderIDs  []uuid.UUID `json:"order_ids" validate:"required,min=1"`
}

// Balance returns what the authenticated store or courier has earned and can
// withdraw.
func Balance(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// WithdrawalCreate opens a withdrawal request against the available balance.
func WithdrawalCreate(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req withdrawalCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.RequestWithdrawal(r.Context(), actor, internalpayouts.WithdrawalInput{
			AmountCents:        req.AmountCents,
			DestinationAccount: strings.TrimSpace(req.DestinationAccount),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

// WithdrawalList pages through the actor's own withdrawal requests.
func WithdrawalList(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListWithdrawals(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminPendingWithdrawals pages through requests awaiting review.
func AdminPendingWithdrawals(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListPending(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminWithdrawalDecision approves or rejects one pending withdrawal.
func AdminWithdrawalDecision(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		adminID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "withdrawalId"))
		withdrawalID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid withdrawal id"))
			return
		}

		var req withdrawalDecisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Decide(r.Context(), internalpayouts.DecisionInput{
			WithdrawalID: withdrawalID,
			AdminID:      adminID,
			Approve:      req.Approve,
			Reason:       req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

// AdminSettleOrders marks delivered orders as paid out in bulk.
func AdminSettleOrders(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		var req settleOrdersRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := enums.ParsePayoutRole(strings.TrimSpace(req.Role))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout role"))
			return
		}

		result, err := svc.SettleOrders(r.Context(), internalpayouts.SettleInput{
			Role:      role,
			SubjectID: req.SubjectID,
			OrderIDs:  req.OrderIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func actorFromRequest(r *http.Request) (internalpayouts.Actor, error) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		return internalpayouts.Actor{}, err
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return internalpayouts.Actor{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "unknown actor role")
	}
	return internalpayouts.Actor{UserID: userID, Role: role}, nil
}

func authenticatedUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

func parsePagination(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
