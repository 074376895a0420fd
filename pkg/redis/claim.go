package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaClaimOnce sets the claim key if absent and applies its TTL atomically.
const luaClaimOnce = `
local key = KEYS[1]
local owner = ARGV[1]
local ttlSec = tonumber(ARGV[2])

if redis.call('SETNX', key, owner) == 1 then
  redis.call('EXPIRE', key, ttlSec)
  return 1
end
return 0
`

const DefaultClaimTTL = 7 * 24 * time.Hour

// ClaimOnce returns true for the first caller with key and false for every
// later one until the claim expires or is released.
func ClaimOnce(ctx context.Context, rdb *rd.Client, key, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	n, err := rdb.Eval(ctx, luaClaimOnce, []string{key}, owner, int64(ttl/time.Second)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseClaim drops a claim held by owner, letting a failed action be retried.
func ReleaseClaim(ctx context.Context, rdb *rd.Client, key, owner string) error {
	_, err := rdb.Eval(ctx, luaDeleteIfMatch, []string{key}, owner).Int()
	return err
}
