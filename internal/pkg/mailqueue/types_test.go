package mailqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstants(t *testing.T) {
	// Redis key constants
	assert.Equal(t, "mail_queue", QueueKey)
	assert.Equal(t, "mail_queue:kick", KickKey)

	// Queue settings constants
	assert.Equal(t, 3, MaxAttempts)
	assert.Equal(t, 7*24*time.Hour, MaxAge)
	assert.Equal(t, 10, BatchSize)
	assert.Equal(t, 300*time.Second, RetryCooldown)
	assert.Equal(t, 60*time.Second, KickDelay)
}

func TestQueuedEmailAge(t *testing.T) {
	now := time.Now()
	e := QueuedEmail{QueuedAt: now.Add(-2 * time.Hour).Unix()}

	age := e.Age(now)
	assert.InDelta(t, (2 * time.Hour).Seconds(), age.Seconds(), 1)
}

func TestQueuedEmailInCooldown(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		lastAttempt int64
		expected    bool
	}{
		{"Never attempted", 0, false},
		{"Attempted 100s ago", now.Add(-100 * time.Second).Unix(), true},
		{"Attempted 299s ago", now.Add(-299 * time.Second).Unix(), true},
		{"Attempted 301s ago", now.Add(-301 * time.Second).Unix(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := QueuedEmail{LastAttempt: tt.lastAttempt}
			assert.Equal(t, tt.expected, e.InCooldown(now))
		})
	}
}
