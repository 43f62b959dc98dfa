package batchpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-pay/internal/shared"
)

const wizardKeyPrefix = "batchpay:wizard:"

// RedisStore keeps wizards in Redis with a TTL. The TTL models the transient
// lifecycle: the wizard exists only for the duration of one user action.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore builds a wizard store with the given time-to-live.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Save writes the wizard blob and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, w Wizard) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("batchpay: marshal wizard: %w", err)
	}
	if err := s.client.Set(ctx, wizardKey(w.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("batchpay: save wizard: %w", err)
	}
	return nil
}

// Get loads a wizard; expired or unknown wizards yield ErrWizardExpired.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (Wizard, error) {
	data, err := s.client.Get(ctx, wizardKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Wizard{}, shared.ErrWizardExpired
		}
		return Wizard{}, fmt.Errorf("batchpay: load wizard: %w", err)
	}
	var w Wizard
	if err := json.Unmarshal(data, &w); err != nil {
		return Wizard{}, fmt.Errorf("batchpay: unmarshal wizard: %w", err)
	}
	return w, nil
}

// Delete discards a wizard once the payment action completed.
func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.client.Del(ctx, wizardKey(id)).Err()
}

func wizardKey(id uuid.UUID) string {
	return wizardKeyPrefix + id.String()
}
