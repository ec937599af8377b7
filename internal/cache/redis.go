package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultBaseTTL   = 15 * time.Minute
	defaultMaxJitter = 5 * time.Minute
)

// RedisSummaryCache кэширует сводки корзин в Redis.
// TTL получает случайную добавку, чтобы записи не истекали одновременно.
type RedisSummaryCache struct {
	client    *redis.Client
	baseTTL   time.Duration
	maxJitter time.Duration
}

// NewRedisSummaryCache создаёт кэш; ttl <= 0 — значение по умолчанию.
func NewRedisSummaryCache(client *redis.Client, ttl time.Duration) *RedisSummaryCache {
	if ttl <= 0 {
		ttl = defaultBaseTTL
	}
	return &RedisSummaryCache{
		client:    client,
		baseTTL:   ttl,
		maxJitter: defaultMaxJitter,
	}
}

func (r *RedisSummaryCache) Get(ctx context.Context, actor domain.Actor) (domain.CartSummary, error) {
	data, err := r.client.Get(ctx, summaryKey(actor)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CartSummary{}, ErrCacheMiss
	}
	if err != nil {
		return domain.CartSummary{}, fmt.Errorf("redis get failed: %w", err)
	}

	var summary domain.CartSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return domain.CartSummary{}, fmt.Errorf("unmarshal cart summary failed: %w", err)
	}
	return summary, nil
}

func (r *RedisSummaryCache) Set(ctx context.Context, actor domain.Actor, summary domain.CartSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal cart summary failed: %w", err)
	}

	ttl := r.baseTTL
	if r.maxJitter > 0 {
		ttl += time.Duration(rand.Int64N(int64(r.maxJitter)))
	}
	if err := r.client.Set(ctx, summaryKey(actor), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisSummaryCache) Delete(ctx context.Context, actor domain.Actor) error {
	if err := r.client.Del(ctx, summaryKey(actor)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis (для readiness).
func (r *RedisSummaryCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func summaryKey(actor domain.Actor) string {
	return fmt.Sprintf("cart-summary:%s:%s", actor.OrganizationID, actor.UserID)
}

var _ SummaryCache = (*RedisSummaryCache)(nil)
