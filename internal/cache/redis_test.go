package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

var testActor = domain.Actor{OrganizationID: "org-1", UserID: "user-1"}

// setupTestRedis поднимает miniredis и возвращает кэш поверх него.
func setupTestRedis(t *testing.T) (*RedisSummaryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSummaryCache(client, 0), mr
}

func testSummary() domain.CartSummary {
	items := []domain.LineItem{{ItemID: "i-1", ProductID: "p-1", VendorID: "v-1", UnitPriceMinor: 10000, Quantity: 2}}
	groups, _ := domain.GroupByVendor(items)
	return domain.CartSummary{
		CartID:    "cart-1",
		ItemCount: 1,
		Quantity:  2,
		Totals:    domain.CalculateTotals(domain.PriceLines(items)),
		Groups:    groups,
	}
}

func TestSetAndGet(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testActor, testSummary()))

	got, err := cache.Get(ctx, testActor)
	require.NoError(t, err)
	assert.Equal(t, testSummary(), got)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, err := cache.Get(context.Background(), testActor)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(summaryKey(testActor), "{broken"))

	_, err := cache.Get(context.Background(), testActor)
	require.ErrorContains(t, err, "unmarshal cart summary failed")
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, cache.Set(context.Background(), testActor, testSummary()))

	ttl := mr.TTL(summaryKey(testActor))
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl <= 20*time.Minute, "TTL should be base + max jitter")
}

func TestDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, testActor, testSummary()))
	assert.True(t, mr.Exists(summaryKey(testActor)))

	require.NoError(t, cache.Delete(ctx, testActor))
	assert.False(t, mr.Exists(summaryKey(testActor)))

	// Удаление отсутствующего ключа не ошибка.
	assert.NoError(t, cache.Delete(ctx, testActor))
}

func TestGet_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), testActor)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestPing(t *testing.T) {
	cache, _ := setupTestRedis(t)
	assert.NoError(t, cache.Ping(context.Background()))
}

func TestSummaryKey_Format(t *testing.T) {
	assert.Equal(t, "cart-summary:org-1:user-1", summaryKey(testActor))
}

func TestNoop(t *testing.T) {
	var c SummaryCache = Noop{}
	_, err := c.Get(context.Background(), testActor)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Set(context.Background(), testActor, testSummary()))
}
