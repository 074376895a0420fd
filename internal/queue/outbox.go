package queue

import (
	"context"
	"encoding/json"
	"fmt"

	rd "github.com/redis/go-redis/v9"
)

const (
	fieldOrderID = "order_id"
	fieldPayload = "payload"
)

// SaleOutbox buffers confirmed sales in a Redis stream. The Relay drains it
// into Kafka, so a broker outage never blocks order confirmation.
type SaleOutbox struct {
	rdb    *rd.Client
	stream string
}

func NewSaleOutbox(rdb *rd.Client, stream string) *SaleOutbox {
	return &SaleOutbox{rdb: rdb, stream: stream}
}

// Enqueue appends the sale and returns the stream entry id.
func (o *SaleOutbox) Enqueue(ctx context.Context, msg SaleMessage) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	id, err := o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: map[string]interface{}{
			fieldOrderID: msg.OrderID,
			fieldPayload: string(b),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", o.stream, err)
	}
	return id, nil
}

func parseSaleEntry(values map[string]interface{}) (SaleMessage, error) {
	raw, err := getStreamString(values, fieldPayload)
	if err != nil {
		return SaleMessage{}, err
	}
	var msg SaleMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return SaleMessage{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return SaleMessage{}, err
	}
	return msg, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
