package mailqueue

import "time"

const (
	// Redis keys
	QueueKey = "mail_queue"
	KickKey  = "mail_queue:kick"

	// Queue settings
	MaxAttempts   = 3
	MaxAge        = 7 * 24 * time.Hour // entries older than this are purged
	BatchSize     = 10                 // delivery attempts per pass
	RetryCooldown = 300 * time.Second  // minimum gap between attempts per entry
	KickDelay     = 60 * time.Second   // one-shot catch-up pass after enqueue

	// CAS retries before a pass gives up and waits for the next tick
	casMaxRetries = 5
)

// EmailStatus defines the delivery state of a queued email
type EmailStatus string

const (
	StatusPending EmailStatus = "pending"
	StatusRetry   EmailStatus = "retry"
	StatusSent    EmailStatus = "sent"
	StatusFailed  EmailStatus = "failed"
)

// QueuedEmail is one outbound message. The whole queue is persisted as a
// single JSON-encoded list under QueueKey; insertion order is processing
// order.
type QueuedEmail struct {
	ID          string      `json:"id"`
	To          string      `json:"to"`
	Subject     string      `json:"subject"`
	Message     string      `json:"message"`
	Headers     []string    `json:"headers,omitempty"`
	Type        string      `json:"type,omitempty"`
	Attempts    int         `json:"attempts"`
	QueuedAt    int64       `json:"queued_at"`
	LastAttempt int64       `json:"last_attempt"`
	Status      EmailStatus `json:"status"`
}

// Age returns how long the entry has been queued.
func (e *QueuedEmail) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(e.QueuedAt, 0))
}

// InCooldown reports whether the entry was attempted too recently to retry.
func (e *QueuedEmail) InCooldown(now time.Time) bool {
	if e.LastAttempt <= 0 {
		return false
	}
	return now.Sub(time.Unix(e.LastAttempt, 0)) < RetryCooldown
}

// Stats is a point-in-time count of queue entries by status.
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Retry   int `json:"retry"`
	Failed  int `json:"failed"`
}

// PassStats summarizes one processing pass.
type PassStats struct {
	Processed int `json:"processed"` // delivery attempts made
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`  // attempts that did not deliver
	Dropped   int `json:"dropped"` // purged by age
	Remaining int `json:"remaining"`
}

// EnqueueHook can augment an entry before it is stored. Validation is not
// re-run afterwards.
type EnqueueHook func(*QueuedEmail)

// SendHook can mutate an entry right before delivery is attempted.
type SendHook func(*QueuedEmail)

// MetricsHook receives pass-level metrics for external observability.
type MetricsHook func(PassStats)
