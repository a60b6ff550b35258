package settlement

import (
	"context"
	"time"

	pkgerrors "github.com/camilomorales/domicilios-backend/pkg/errors"
	"github.com/camilomorales/domicilios-backend/pkg/redis"
)

const defaultEventTTL = 72 * time.Hour

// IdempotencyGuard deduplicates gateway events using Redis SETNX. The first
// caller to mark an event id wins; everyone else sees a duplicate.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard builds a guard scoped to one event source.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "idempotency store required")
	}
	if scope == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "idempotency scope required")
	}
	if ttl <= 0 {
		ttl = defaultEventTTL
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark marks the event id as seen. It returns true when the event was
// already marked by an earlier delivery.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	stored, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark event id")
	}
	return !stored, nil
}

// Release drops the mark so a failed event can be redelivered.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	if err := g.store.Del(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release event id")
	}
	return nil
}
