package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*rd.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestClaimOnce(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	ctx := context.Background()
	key := RestockClaimKey("ord-1")

	ok, err := ClaimOnce(ctx, rdb, key, "a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ClaimOnce(ctx, rdb, key, "b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Hour, mr.TTL(key))

	// only the owner can release
	require.NoError(t, ReleaseClaim(ctx, rdb, key, "b"))
	assert.True(t, mr.Exists(key))
	require.NoError(t, ReleaseClaim(ctx, rdb, key, "a"))
	assert.False(t, mr.Exists(key))

	ok, err = ClaimOnce(ctx, rdb, key, "b", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, DefaultClaimTTL, mr.TTL(key))
}

func TestCheckoutLock(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := AcquireCheckoutLock(ctx, rdb, "cust-1", "k1", "tok-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AcquireCheckoutLock(ctx, rdb, "cust-1", "k1", "tok-2", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// a different key for the same customer is independent
	ok, err = AcquireCheckoutLock(ctx, rdb, "cust-1", "k2", "tok-3", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, ReleaseCheckoutLockIfMatch(ctx, rdb, "cust-1", "k1", "tok-2"))
	assert.True(t, mr.Exists(CheckoutLockKey("cust-1", "k1")))

	require.NoError(t, ReleaseCheckoutLockIfMatch(ctx, rdb, "cust-1", "k1", "tok-1"))
	assert.False(t, mr.Exists(CheckoutLockKey("cust-1", "k1")))
}

func TestCheckoutState(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	ctx := context.Background()

	_, found, err := GetCheckoutState(ctx, rdb, "cust-1", "k1")
	require.NoError(t, err)
	assert.False(t, found)

	st := CheckoutState{Status: CheckoutSucceeded, OrderID: "ord-9"}
	require.NoError(t, PutCheckoutState(ctx, rdb, "cust-1", "k1", st, time.Hour))

	got, found, err := GetCheckoutState(ctx, rdb, "cust-1", "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, st, got)
	assert.Equal(t, time.Hour, mr.TTL(CheckoutStateKey("cust-1", "k1")))
}
