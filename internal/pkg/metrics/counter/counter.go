package counter

import (
	"context"
	"strconv"

	"github.com/memberfox/memberfox/internal/pkg/cache"
	"github.com/memberfox/memberfox/internal/pkg/mailqueue"
)

const mailCountersKey = "mail:counters"

const (
	fieldAttempted = "attempted"
	fieldSent      = "sent"
	fieldFailed    = "failed"
	fieldDropped   = "dropped"
)

// Totals holds lifetime delivery counters.
type Totals struct {
	Attempted int64 `json:"attempted"`
	Sent      int64 `json:"sent"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// RecordPass accumulates one queue pass into the Redis counters. Registered
// as a mail queue metrics hook; counter errors never affect delivery.
func RecordPass(stats mailqueue.PassStats) {
	ctx := context.Background()
	rdb := cache.GetClient()
	pipe := rdb.Pipeline()
	if stats.Processed > 0 {
		pipe.HIncrBy(ctx, mailCountersKey, fieldAttempted, int64(stats.Processed))
	}
	if stats.Sent > 0 {
		pipe.HIncrBy(ctx, mailCountersKey, fieldSent, int64(stats.Sent))
	}
	if stats.Failed > 0 {
		pipe.HIncrBy(ctx, mailCountersKey, fieldFailed, int64(stats.Failed))
	}
	if stats.Dropped > 0 {
		pipe.HIncrBy(ctx, mailCountersKey, fieldDropped, int64(stats.Dropped))
	}
	_, _ = pipe.Exec(ctx)
}

// GetTotals reads the lifetime delivery counters.
func GetTotals() (Totals, error) {
	ctx := context.Background()
	values, err := cache.GetClient().HGetAll(ctx, mailCountersKey).Result()
	if err != nil {
		return Totals{}, err
	}
	parse := func(field string) int64 {
		v, err := strconv.ParseInt(values[field], 10, 64)
		if err != nil {
			return 0
		}
		return v
	}
	return Totals{
		Attempted: parse(fieldAttempted),
		Sent:      parse(fieldSent),
		Failed:    parse(fieldFailed),
		Dropped:   parse(fieldDropped),
	}, nil
}

// Reset clears the delivery counters.
func Reset() error {
	return cache.Delete(mailCountersKey)
}
