package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

func setupTestRedis(t *testing.T) (*CartCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCartCache(client), mr
}

func testLines() []cart.Line {
	return []cart.Line{{
		Item: cart.Item{CartID: 1, ProductID: 7, Quantity: 2},
		Product: product.Product{
			ID:       7,
			Name:     "Mug",
			Price:    decimal.RequireFromString("12.50"),
			Quantity: 4,
			OwnerID:  "seller",
		},
	}}
}

func TestCartCache_RoundTrip(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	stored, err := c.Set(ctx, "u-1", 0, testLines())
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists("cart:u-1"))

	got, err := c.Get(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ProductID)
	assert.Equal(t, "Mug", got[0].Product.Name)
	assert.True(t, decimal.RequireFromString("12.5").Equal(got[0].Product.Price))
}

func TestCartCache_Miss(t *testing.T) {
	c, _ := setupTestRedis(t)

	_, err := c.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, cart.ErrCacheMiss)
}

func TestCartCache_TTLWithJitter(t *testing.T) {
	c, mr := setupTestRedis(t)

	_, err := c.Set(context.Background(), "u-1", 0, testLines())
	require.NoError(t, err)
	ttl := mr.TTL("cart:u-1")
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)

	mr.FastForward(21 * time.Minute)
	_, err = c.Get(context.Background(), "u-1")
	require.ErrorIs(t, err, cart.ErrCacheMiss)
}

func TestCartCache_Delete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := c.Set(ctx, "u-1", 0, testLines())
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "u-1"))
	assert.False(t, mr.Exists("cart:u-1"))
	require.NoError(t, c.Delete(ctx, "u-1"))

	gen, err := c.Generation(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)
	assert.Positive(t, mr.TTL("cart:u-1:gen"))
}

func TestCartCache_SetFencedByDelete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	gen, err := c.Generation(ctx, "u-1")
	require.NoError(t, err)
	assert.Zero(t, gen)

	// A mutation lands between the generation read and the write.
	require.NoError(t, c.Delete(ctx, "u-1"))

	stored, err := c.Set(ctx, "u-1", gen, testLines())
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists("cart:u-1"))

	gen, err = c.Generation(ctx, "u-1")
	require.NoError(t, err)
	stored, err = c.Set(ctx, "u-1", gen, testLines())
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists("cart:u-1"))
}

func TestPinger(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	p := Pinger{Client: client}
	require.NoError(t, p.Ping(context.Background()))

	mr.Close()
	require.Error(t, p.Ping(context.Background()))
}

func TestCartCache_CorruptEntry(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("cart:u-1", "{not json"))

	_, err := c.Get(context.Background(), "u-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cart.ErrCacheMiss)
}

func TestCartCache_Unavailable(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.Close()

	_, err := c.Get(context.Background(), "u-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cart.ErrCacheMiss)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	_, err = NewClient("://bad")
	require.Error(t, err)
}
