package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/memberfox/memberfox/internal/pkg/cache"
	"github.com/memberfox/memberfox/internal/pkg/env"
	"github.com/memberfox/memberfox/internal/pkg/mail"
)

var (
	ErrInvalidRecipient = errors.New("recipient is not a valid email address")
	ErrEmptySubject     = errors.New("subject must not be empty")
	ErrEmptyMessage     = errors.New("message must not be empty")
	ErrCorruptQueue     = errors.New("queue data is not valid JSON")
	ErrConflict         = errors.New("queue update conflicted too often, giving up")
)

// Queue is the durable email delivery queue. The persisted queue is one
// JSON list in Redis; every read-modify-write runs under WATCH so two
// overlapping passes cannot silently undo each other's work.
type Queue struct {
	client       *redis.Client
	mailer       mail.Mailer
	validate     *validator.Validate
	enqueueHooks []EnqueueHook
	sendHooks    []SendHook
	metricsHooks []MetricsHook
	kick         func() // schedules a near-future pass, wired by the scheduler
}

// NewQueue creates a new mail queue
func NewQueue(client *redis.Client, mailer mail.Mailer) *Queue {
	if client == nil {
		client = cache.GetClient()
	}
	if mailer == nil {
		mailer = mail.NewSMTPMailer()
	}
	return &Queue{
		client:   client,
		mailer:   mailer,
		validate: validator.New(),
	}
}

// OnEnqueue registers a hook applied to entries before they are stored.
func (q *Queue) OnEnqueue(h EnqueueHook) {
	q.enqueueHooks = append(q.enqueueHooks, h)
}

// OnSend registers a hook applied to entries before delivery attempts.
func (q *Queue) OnSend(h SendHook) {
	q.sendHooks = append(q.sendHooks, h)
}

// OnPassMetrics registers a hook receiving per-pass metrics.
func (q *Queue) OnPassMetrics(h MetricsHook) {
	q.metricsHooks = append(q.metricsHooks, h)
}

// SetKickFunc wires the one-shot catch-up trigger.
func (q *Queue) SetKickFunc(f func()) {
	q.kick = f
}

// Enqueue validates and appends a new entry to the persisted queue. On
// success a near-future processing pass is scheduled so new mail is not
// stuck behind the hourly cadence.
func (q *Queue) Enqueue(to, subject, message string, headers []string, mailType string) (*QueuedEmail, error) {
	if err := q.validate.Var(to, "required,email"); err != nil {
		log.Warnf("[MailQueue] Rejected enqueue, bad recipient %q", to)
		return nil, ErrInvalidRecipient
	}
	if subject == "" {
		log.Warnf("[MailQueue] Rejected enqueue to %s, empty subject", to)
		return nil, ErrEmptySubject
	}
	if message == "" {
		log.Warnf("[MailQueue] Rejected enqueue to %s, empty message", to)
		return nil, ErrEmptyMessage
	}

	entry := &QueuedEmail{
		ID:       uuid.New().String(),
		To:       to,
		Subject:  subject,
		Message:  message,
		Headers:  headers,
		Type:     mailType,
		Attempts: 0,
		QueuedAt: time.Now().Unix(),
		Status:   StatusPending,
	}

	// Extensibility point: augment the entry before it is stored. No
	// re-validation afterwards.
	for _, h := range q.enqueueHooks {
		h(entry)
	}

	ctx := context.Background()
	err := q.withQueue(ctx, func(entries []QueuedEmail) ([]QueuedEmail, error) {
		return append(entries, *entry), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue mail: %w", err)
	}

	log.Infof("[MailQueue] Enqueued mail %s to %s (type=%s)", entry.ID, entry.To, entry.Type)
	q.scheduleKick(ctx)
	return entry, nil
}

// ProcessQueue runs one delivery pass over the persisted queue. Invoked by
// the hourly trigger, the one-shot catch-up, or an admin "process now".
func (q *Queue) ProcessQueue(ctx context.Context) (*PassStats, error) {
	if env.IsStaging() {
		log.Info("[MailQueue] Staging environment, skipping queue processing")
		return &PassStats{}, nil
	}

	var stats PassStats
	// Delivery results survive CAS retries: a mail that already went out in
	// this pass is not sent again when the rewrite has to be redone from a
	// fresh snapshot.
	delivered := make(map[string]bool)

	err := q.withQueue(ctx, func(entries []QueuedEmail) ([]QueuedEmail, error) {
		kept, passStats := q.processEntries(entries, time.Now(), delivered)
		stats = passStats
		return kept, nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[MailQueue] Pass done: %d attempted, %d sent, %d failed, %d dropped, %d remaining",
		stats.Processed, stats.Sent, stats.Failed, stats.Dropped, stats.Remaining)
	for _, h := range q.metricsHooks {
		h(stats)
	}
	return &stats, nil
}

// processEntries applies the per-entry decision rules in stored order and
// returns the rewritten queue. Rules apply in strict priority: batch cap,
// age-out, attempt ceiling, cooldown, attempt.
func (q *Queue) processEntries(entries []QueuedEmail, now time.Time, delivered map[string]bool) ([]QueuedEmail, PassStats) {
	var stats PassStats
	kept := make([]QueuedEmail, 0, len(entries))

	for _, e := range entries {
		switch {
		case stats.Processed >= BatchSize:
			// Batch cap reached: carry untouched to the next snapshot.
			kept = append(kept, e)

		case e.Age(now) > MaxAge:
			stats.Dropped++
			log.Warnf("[MailQueue] Dropping mail %s to %s, older than %s", e.ID, e.To, MaxAge)

		case e.Attempts >= MaxAttempts:
			if e.Status != StatusFailed {
				log.Warnf("[MailQueue] Mail %s to %s permanently failed after %d attempts", e.ID, e.To, e.Attempts)
			}
			e.Status = StatusFailed
			kept = append(kept, e)

		case e.InCooldown(now):
			kept = append(kept, e)

		default:
			stats.Processed++
			// Count the attempt before sending, so a crash mid-send still
			// counts against the ceiling.
			e.Attempts++
			e.LastAttempt = now.Unix()

			if q.attemptDelivery(&e, delivered) {
				stats.Sent++
				// Sent entries leave the queue.
				continue
			}
			stats.Failed++
			e.Status = StatusRetry
			kept = append(kept, e)
		}
	}

	stats.Remaining = len(kept)
	return kept, stats
}

// attemptDelivery sends one entry unless it already went out in this pass.
func (q *Queue) attemptDelivery(e *QueuedEmail, delivered map[string]bool) bool {
	if delivered[e.ID] {
		return true
	}
	for _, h := range q.sendHooks {
		h(e)
	}
	if err := q.mailer.Send(e.To, e.Subject, e.Message, e.Headers); err != nil {
		log.Errorf("[MailQueue] Delivery of %s to %s failed (attempt %d/%d): %v", e.ID, e.To, e.Attempts, MaxAttempts, err)
		return false
	}
	delivered[e.ID] = true
	log.Infof("[MailQueue] Delivered %s to %s", e.ID, e.To)
	return true
}

// GetStats returns counts by status from the persisted queue. Pure read.
func (q *Queue) GetStats() (Stats, error) {
	entries, err := q.loadQueue(context.Background(), q.client)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Total: len(entries)}
	for _, e := range entries {
		switch e.Status {
		case StatusPending:
			stats.Pending++
		case StatusRetry:
			stats.Retry++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// RetryFailed revives failed entries that have attempts left. The attempt
// ceiling is a hard limit, entries at MaxAttempts stay failed even here.
func (q *Queue) RetryFailed() (int, error) {
	ctx := context.Background()
	count := 0
	err := q.withQueue(ctx, func(entries []QueuedEmail) ([]QueuedEmail, error) {
		count = 0
		for i := range entries {
			if entries[i].Status == StatusFailed && entries[i].Attempts < MaxAttempts {
				entries[i].Status = StatusRetry
				entries[i].LastAttempt = 0
				count++
			}
		}
		return entries, nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Infof("[MailQueue] Reset %d failed mails for retry", count)
		q.scheduleKick(ctx)
	}
	return count, nil
}

// ClearQueue unconditionally empties the persisted queue. Destructive and
// irreversible.
func (q *Queue) ClearQueue() error {
	log.Warn("[MailQueue] Clearing the entire mail queue")
	return q.client.Set(context.Background(), QueueKey, "[]", 0).Err()
}

// withQueue runs fn inside an optimistic read-modify-write of the whole
// queue blob. A concurrent writer aborts the transaction and the update is
// retried from a fresh snapshot, so overlapping passes never resurrect or
// lose each other's entries.
func (q *Queue) withQueue(ctx context.Context, fn func([]QueuedEmail) ([]QueuedEmail, error)) error {
	for attempt := 0; attempt < casMaxRetries; attempt++ {
		err := q.client.Watch(ctx, func(tx *redis.Tx) error {
			entries, err := q.loadQueue(ctx, tx)
			if err != nil {
				return err
			}

			updated, err := fn(entries)
			if err != nil {
				return err
			}

			data, err := json.Marshal(updated)
			if err != nil {
				return fmt.Errorf("failed to marshal queue: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, QueueKey, data, 0)
				return nil
			})
			return err
		}, QueueKey)

		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			log.Infof("[MailQueue] Concurrent queue update detected, retrying (%d/%d)", attempt+1, casMaxRetries)
			continue
		}
		return err
	}
	log.Warnf("[MailQueue] Queue update abandoned after %d conflicts", casMaxRetries)
	return ErrConflict
}

// loadQueue reads and decodes the queue blob. A missing key is an empty
// queue; an undecodable blob is an error and is never rewritten.
func (q *Queue) loadQueue(ctx context.Context, c redis.Cmdable) ([]QueuedEmail, error) {
	raw, err := c.Get(ctx, QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []QueuedEmail
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Errorf("[MailQueue] Queue blob is corrupt: %v", err)
		return nil, ErrCorruptQueue
	}
	return entries, nil
}

// scheduleKick arranges a one-shot pass ~60s out unless one is already
// pending. The SETNX key dedupes kicks across overlapping processes.
func (q *Queue) scheduleKick(ctx context.Context) {
	if q.kick == nil {
		return
	}
	ok, err := q.client.SetNX(ctx, KickKey, "1", KickDelay).Result()
	if err != nil {
		log.Errorf("[MailQueue] Failed to arm catch-up pass: %v", err)
		return
	}
	if ok {
		q.kick()
	}
}
