package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client), mr
}

func sampleCart(userID string) *domain.Cart {
	c := domain.NewCart(userID)
	c.Add(domain.CartItem{ProductID: "tshirt-logo", Name: "Logo T-Shirt", UnitPrice: 2499, Currency: "usd"}, 2)
	c.Add(domain.CartItem{ProductID: "cap-baseball", Name: "Baseball Cap", UnitPrice: 1999, Currency: "usd"}, 1)
	return c
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)

	data, err := json.Marshal(sampleCart("user123"))
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey("user123"), string(data)))

	result, err := cache.Get(context.Background(), "user123")
	require.NoError(t, err)
	assert.Equal(t, "user123", result.UserID)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "tshirt-logo", result.Items[0].ProductID)
	assert.Equal(t, int64(2*2499+1999), result.Total())
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	result, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("user123"), `{"user_id":`))

	_, err := cache.Get(context.Background(), "user123")
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestGet_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "user123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestSet_StoresCartWithJitteredTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), "user456", sampleCart("user456")))

	stored, err := mr.Get(cacheKey("user456"))
	require.NoError(t, err)

	var c domain.Cart
	require.NoError(t, json.Unmarshal([]byte(stored), &c))
	assert.Equal(t, "user456", c.UserID)
	assert.Len(t, c.Items, 2)

	ttl := mr.TTL(cacheKey("user456"))
	assert.GreaterOrEqual(t, ttl, defaultTTL)
	assert.Less(t, ttl, defaultTTL+maxJitter)
}

func TestDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("user999"), "{}"))

	require.NoError(t, cache.Delete(context.Background(), "user999"))
	assert.False(t, mr.Exists(cacheKey("user999")))

	// deleting a missing key is fine
	assert.NoError(t, cache.Delete(context.Background(), "nonexistent"))
}

func TestSet_Expires(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, cache.Set(context.Background(), "u", sampleCart("u")))

	mr.FastForward(defaultTTL + maxJitter + time.Second)

	_, err := cache.Get(context.Background(), "u")
	assert.ErrorIs(t, err, ErrMiss)
}
