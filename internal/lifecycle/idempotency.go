package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coralcart/loyalty-backend/pkg/redis"
)

// IdempotencyManager tracks processed event IDs per consumer using Redis
// SETNX with a TTL, so redelivered messages short-circuit before touching
// the ledger.
type IdempotencyManager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewIdempotencyManager(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyManager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyManager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed returns true if the event has already been processed
// and otherwise marks it as processed with the configured TTL.
func (m *IdempotencyManager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete unmarks the event so a failed handler can be retried on redelivery.
func (m *IdempotencyManager) Delete(ctx context.Context, consumer, eventID string) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *IdempotencyManager) processedKey(consumer, eventID string) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	scope := fmt.Sprintf("evt:processed:%s", consumer)
	return m.store.IdempotencyKey(scope, eventID), nil
}
