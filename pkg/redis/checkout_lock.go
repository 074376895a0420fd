package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaDeleteIfMatch removes the key only while it still holds the given token.
const luaDeleteIfMatch = `
local key = KEYS[1]
local token = ARGV[1]
if redis.call('GET', key) == token then
  return redis.call('DEL', key)
end
return 0
`

// AcquireCheckoutLock takes the per-customer, per-idempotency-key lock.
func AcquireCheckoutLock(ctx context.Context, rdb *rd.Client, customerID, idemKey, token string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, CheckoutLockKey(customerID, idemKey), token, ttl).Result()
}

// ReleaseCheckoutLockIfMatch releases the lock if token still owns it.
func ReleaseCheckoutLockIfMatch(ctx context.Context, rdb *rd.Client, customerID, idemKey, token string) error {
	_, err := rdb.Eval(ctx, luaDeleteIfMatch, []string{CheckoutLockKey(customerID, idemKey)}, token).Int()
	return err
}
