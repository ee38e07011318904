package counter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberfox/memberfox/internal/pkg/cache"
	"github.com/memberfox/memberfox/internal/pkg/env"
	"github.com/memberfox/memberfox/internal/pkg/mailqueue"
)

const isolatedCounterTestRedisDB = 13

func setupCounterTestRedis(t *testing.T) {
	t.Helper()

	hosts := []string{
		env.GetEnv("CACHE_HOST", ""),
		"cache",
		"memberfox-cache",
		"localhost",
		"127.0.0.1",
	}
	port := env.GetEnv("CACHE_PORT", "6379")
	password := env.GetEnv("CACHE_PASSWORD", "")

	var lastErr error
	for _, host := range hosts {
		if host == "" {
			continue
		}
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", host, port),
			Password: password,
			DB:       isolatedCounterTestRedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		_, err := client.Ping(ctx).Result()
		cancel()
		if err != nil {
			lastErr = err
			_ = client.Close()
			continue
		}

		require.NoError(t, client.FlushDB(context.Background()).Err())
		cache.SetClient(client)
		t.Cleanup(func() {
			_ = client.FlushDB(context.Background()).Err()
			_ = client.Close()
			cache.SetClient(nil)
		})
		return
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
}

func TestRecordPassAccumulates(t *testing.T) {
	setupCounterTestRedis(t)

	RecordPass(mailqueue.PassStats{Processed: 3, Sent: 2, Failed: 1, Dropped: 1})
	RecordPass(mailqueue.PassStats{Processed: 2, Sent: 2})

	totals, err := GetTotals()
	require.NoError(t, err)
	assert.Equal(t, Totals{Attempted: 5, Sent: 4, Failed: 1, Dropped: 1}, totals)
}

func TestRecordPassSkipsZeroFields(t *testing.T) {
	setupCounterTestRedis(t)

	RecordPass(mailqueue.PassStats{})

	totals, err := GetTotals()
	require.NoError(t, err)
	assert.Equal(t, Totals{}, totals)
}

func TestReset(t *testing.T) {
	setupCounterTestRedis(t)

	RecordPass(mailqueue.PassStats{Processed: 1, Sent: 1})
	require.NoError(t, Reset())

	totals, err := GetTotals()
	require.NoError(t, err)
	assert.Equal(t, Totals{}, totals)
}
