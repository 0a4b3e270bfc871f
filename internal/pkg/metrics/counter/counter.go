package counter

import (
	"context"
	"strconv"

	"github.com/payflowhq/payflow/internal/pkg/cache"
)

const (
	paymentsCreatedKey   = "payment:counters:created"
	paymentsCompletedKey = "payment:counters:completed"
	webhookEventsKey     = "payment:counters:webhooks"
)

// AddPaymentCreated increments the created-transaction counter for a gateway in Redis
func AddPaymentCreated(gateway string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, paymentsCreatedKey, gateway, 1).Err()
}

// AddPaymentCompleted increments the completed-payment counter for a gateway in Redis
func AddPaymentCompleted(gateway string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, paymentsCompletedKey, gateway, 1).Err()
}

// AddWebhookEvent increments the processed-webhook counter for a gateway in Redis
func AddWebhookEvent(gateway string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookEventsKey, gateway, 1).Err()
}

// Snapshot returns all per-gateway counters grouped by metric.
func Snapshot() (map[string]map[string]int64, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	out := map[string]map[string]int64{}
	keys := map[string]string{
		"payments_created":   paymentsCreatedKey,
		"payments_completed": paymentsCompletedKey,
		"webhook_events":     webhookEventsKey,
	}
	for name, key := range keys {
		data, err := rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		metric := map[string]int64{}
		for gateway, raw := range data {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			metric[gateway] = n
		}
		out[name] = metric
	}
	return out, nil
}
