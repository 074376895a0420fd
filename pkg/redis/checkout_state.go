package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	CheckoutPending   = "pending"
	CheckoutSucceeded = "succeeded"
)

// CheckoutState is the remembered outcome of an idempotent checkout.
type CheckoutState struct {
	Status  string
	OrderID string
}

// GetCheckoutState reads the state for a key. found=false means no attempt
// has completed under it.
func GetCheckoutState(ctx context.Context, rdb *rd.Client, customerID, idemKey string) (CheckoutState, bool, error) {
	m, err := rdb.HGetAll(ctx, CheckoutStateKey(customerID, idemKey)).Result()
	if err != nil {
		return CheckoutState{}, false, err
	}
	if len(m) == 0 {
		return CheckoutState{}, false, nil
	}
	out := CheckoutState{Status: m["status"], OrderID: m["order_id"]}
	if out.Status == "" {
		out.Status = CheckoutPending
	}
	return out, true, nil
}

// PutCheckoutState writes the state and refreshes its TTL.
func PutCheckoutState(ctx context.Context, rdb *rd.Client, customerID, idemKey string, st CheckoutState, ttl time.Duration) error {
	key := CheckoutStateKey(customerID, idemKey)
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"status", st.Status,
		"order_id", st.OrderID,
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
