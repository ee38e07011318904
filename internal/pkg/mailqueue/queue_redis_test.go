package mailqueue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberfox/memberfox/internal/pkg/env"
)

func newRedisTestQueue(t *testing.T, mailer *fakeMailer) *Queue {
	t.Helper()
	client := newIsolatedRedisClient(t, isolatedMailQueueTestRedisDB)
	return &Queue{
		client:   client,
		mailer:   mailer,
		validate: validator.New(),
	}
}

func TestEnqueuePersistsAndStats(t *testing.T) {
	q := newRedisTestQueue(t, &fakeMailer{})

	first, err := q.Enqueue("a@example.com", "Hello", "Body", nil, "renewal_reminder")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, StatusPending, first.Status)

	_, err = q.Enqueue("b@example.com", "Hello", "Body", []string{"Reply-To: office@example.com"}, "notice")
	require.NoError(t, err)

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Pending: 2}, stats)
}

func TestProcessQueueEndToEnd(t *testing.T) {
	mailer := &fakeMailer{failFor: map[string]bool{"broken@example.com": true}}
	q := newRedisTestQueue(t, mailer)

	for _, to := range []string{"a@example.com", "broken@example.com", "b@example.com"} {
		_, err := q.Enqueue(to, "Hello", "Body", nil, "notice")
		require.NoError(t, err)
	}

	stats, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Remaining)

	// The failed entry survives in retry state, the sent ones are gone.
	queueStats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Retry: 1}, queueStats)
}

func TestProcessQueueMetricsHook(t *testing.T) {
	q := newRedisTestQueue(t, &fakeMailer{})

	var recorded PassStats
	q.OnPassMetrics(func(stats PassStats) {
		recorded = stats
	})

	_, err := q.Enqueue("a@example.com", "Hello", "Body", nil, "notice")
	require.NoError(t, err)

	_, err = q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recorded.Sent)
	assert.Equal(t, 1, recorded.Processed)
}

func TestEnqueueHookAugmentsEntry(t *testing.T) {
	q := newRedisTestQueue(t, &fakeMailer{})
	q.OnEnqueue(func(e *QueuedEmail) {
		e.Headers = append(e.Headers, "List-Unsubscribe: <mailto:office@example.com>")
	})

	entry, err := q.Enqueue("a@example.com", "Hello", "Body", nil, "notice")
	require.NoError(t, err)
	assert.Contains(t, entry.Headers, "List-Unsubscribe: <mailto:office@example.com>")

	// The augmented entry is what got persisted.
	stored, err := q.loadQueue(context.Background(), q.client)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, entry.Headers, stored[0].Headers)
}

func TestRetryFailedExcludesExhaustedEntries(t *testing.T) {
	q := newRedisTestQueue(t, &fakeMailer{})
	now := time.Now()

	seed := []QueuedEmail{
		{ID: "exhausted", To: "a@example.com", QueuedAt: now.Unix(), Attempts: MaxAttempts, Status: StatusFailed},
		{ID: "revivable", To: "b@example.com", QueuedAt: now.Unix(), Attempts: 2, Status: StatusFailed, LastAttempt: now.Unix()},
		{ID: "pending", To: "c@example.com", QueuedAt: now.Unix(), Status: StatusPending},
	}
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, q.client.Set(context.Background(), QueueKey, data, 0).Err())

	count, err := q.RetryFailed()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := q.loadQueue(context.Background(), q.client)
	require.NoError(t, err)
	byID := make(map[string]QueuedEmail, len(stored))
	for _, e := range stored {
		byID[e.ID] = e
	}
	assert.Equal(t, StatusFailed, byID["exhausted"].Status)
	assert.Equal(t, StatusRetry, byID["revivable"].Status)
	assert.Equal(t, int64(0), byID["revivable"].LastAttempt)
	assert.Equal(t, StatusPending, byID["pending"].Status)
}

func TestClearQueue(t *testing.T) {
	q := newRedisTestQueue(t, &fakeMailer{})

	_, err := q.Enqueue("a@example.com", "Hello", "Body", nil, "notice")
	require.NoError(t, err)

	require.NoError(t, q.ClearQueue())

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestProcessQueueMailDisabledLeavesQueueUntouched(t *testing.T) {
	mailer := &fakeMailer{}
	q := newRedisTestQueue(t, mailer)

	_, err := q.Enqueue("a@example.com", "Hello", "Body", nil, "notice")
	require.NoError(t, err)

	old := env.Env
	env.Env = map[string]string{"MAIL_DISABLED": "true"}
	t.Cleanup(func() { env.Env = old })

	stats, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &PassStats{}, stats)
	assert.Empty(t, mailer.sent)

	// Nothing was delivered, dropped or rewritten.
	queueStats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Pending: 1}, queueStats)
}

func TestCorruptBlobIsNeverRewritten(t *testing.T) {
	q := newRedisTestQueue(t, &fakeMailer{})
	ctx := context.Background()

	corrupt := "{this is not json"
	require.NoError(t, q.client.Set(ctx, QueueKey, corrupt, 0).Err())

	_, err := q.ProcessQueue(ctx)
	assert.ErrorIs(t, err, ErrCorruptQueue)

	_, err = q.GetStats()
	assert.ErrorIs(t, err, ErrCorruptQueue)

	_, err = q.Enqueue("a@example.com", "Hello", "Body", nil, "notice")
	assert.ErrorIs(t, err, ErrCorruptQueue)

	// The broken blob survives untouched for manual inspection.
	raw, err := q.client.Get(ctx, QueueKey).Result()
	require.NoError(t, err)
	assert.Equal(t, corrupt, raw)
}

func TestScheduleKickDedupe(t *testing.T) {
	q := newRedisTestQueue(t, &fakeMailer{})

	kicks := 0
	q.SetKickFunc(func() { kicks++ })

	// Three enqueues inside the kick window arm exactly one pass.
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue("a@example.com", "Hello", "Body", nil, "notice")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, kicks)
}
