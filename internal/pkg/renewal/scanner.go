package renewal

import (
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/memberfox/memberfox/app/models"
	"github.com/memberfox/memberfox/app/repository"
	"github.com/memberfox/memberfox/internal/pkg/mailqueue"
)

// ReminderOffsets are the exact days-to-expiry values that trigger a
// reminder. 29 or 31 days out trigger nothing; a missed scan day means that
// reminder is skipped for good.
var ReminderOffsets = []int{30, 14, 7, 1}

// renewalOrderOffset is the days-to-expiry at which automatic subscriptions
// get a renewal order created.
const renewalOrderOffset = 1

// Enqueuer is the slice of the mail queue the scanner needs.
type Enqueuer interface {
	Enqueue(to, subject, message string, headers []string, mailType string) (*mailqueue.QueuedEmail, error)
}

// OrderCreator creates a renewal order for an automatic subscription in the
// external order system. A zero id means no order was created.
type OrderCreator interface {
	CreateRenewalOrder(sub *models.Subscription) (uint, error)
}

// StatusChanger advances a subscription's status, firing role side effects.
type StatusChanger interface {
	ChangeStatus(subscriptionID uint, newStatus string) error
}

// Scanner runs the daily renewal job: expire overdue subscriptions, send
// reminders at the exact offsets, create renewal orders for automatic
// subscriptions about to roll over.
type Scanner struct {
	subs   repository.SubscriptionRepository
	users  repository.UserRepository
	queue  Enqueuer
	orders OrderCreator
	status StatusChanger
	now    func() time.Time
}

// NewScanner creates a renewal scanner from its collaborators. orders may be
// nil when no order system is attached.
func NewScanner(subs repository.SubscriptionRepository, users repository.UserRepository, queue Enqueuer, orders OrderCreator, status StatusChanger) *Scanner {
	return &Scanner{
		subs:   subs,
		users:  users,
		queue:  queue,
		orders: orders,
		status: status,
		now:    time.Now,
	}
}

// SetNowFunc overrides the clock. Tests only.
func (s *Scanner) SetNowFunc(now func() time.Time) {
	s.now = now
}

// ProcessMembershipRenewals is the full daily job. One subscription failing
// never aborts the scan of the rest.
func (s *Scanner) ProcessMembershipRenewals() {
	log.Info("[Renewal] Starting membership renewal scan")
	now := s.now()

	s.expireOverdue(now)

	subs, err := s.subs.FindAllActive()
	if err != nil {
		log.Errorf("[Renewal] Failed to load active subscriptions: %v", err)
		return
	}

	reminders := 0
	for i := range subs {
		sub := subs[i]
		days, ok := sub.DaysUntilExpiry(now)
		if !ok {
			// No end date, nothing to remind about.
			continue
		}

		if reminderDue(days) && s.sendReminder(&sub, days, now) {
			reminders++
		}

		if days == renewalOrderOffset && sub.RenewalType == models.RenewalAutomatic {
			s.createRenewalOrder(&sub)
		}
	}

	log.Infof("[Renewal] Scan done: %d active subscriptions, %d reminders queued", len(subs), reminders)
}

// expireOverdue transitions active subscriptions whose end date passed.
func (s *Scanner) expireOverdue(now time.Time) {
	expired, err := s.subs.FindExpired(now)
	if err != nil {
		log.Errorf("[Renewal] Failed to load expired subscriptions: %v", err)
		return
	}
	for i := range expired {
		sub := expired[i]
		if err := s.status.ChangeStatus(sub.ID, models.SubStatusExpired); err != nil {
			log.Errorf("[Renewal] Failed to expire subscription %d: %v", sub.ID, err)
			continue
		}
		log.Infof("[Renewal] Subscription %d (user %d) expired", sub.ID, sub.UserID)
	}
}

// sendReminder queues one reminder email. Returns true when a mail was queued.
func (s *Scanner) sendReminder(sub *models.Subscription, days int, now time.Time) bool {
	if alreadyReminded(sub, days, now) {
		return false
	}

	user, err := s.users.GetByID(sub.UserID)
	if err != nil {
		log.Errorf("[Renewal] Cannot resolve user %d for subscription %d: %v", sub.UserID, sub.ID, err)
		return false
	}

	subject, body := s.renderReminder(user, sub, days)
	if _, err := s.queue.Enqueue(user.Email, subject, body, nil, "renewal_reminder"); err != nil {
		log.Errorf("[Renewal] Failed to queue reminder for subscription %d: %v", sub.ID, err)
		return false
	}

	// Record the marker so an overlapping run on the same day does not
	// queue the reminder twice.
	if err := s.subs.UpdateFields(sub.ID, map[string]interface{}{
		"last_reminder_days": days,
		"last_reminder_at":   now,
	}); err != nil {
		log.Warnf("[Renewal] Failed to record reminder marker for subscription %d: %v", sub.ID, err)
	}

	log.Infof("[Renewal] Queued %d-day reminder for subscription %d (user %d, %s)", days, sub.ID, sub.UserID, sub.RenewalType)
	return true
}

// createRenewalOrder asks the order system for a renewal order.
func (s *Scanner) createRenewalOrder(sub *models.Subscription) {
	if s.orders == nil {
		return
	}
	orderID, err := s.orders.CreateRenewalOrder(sub)
	if err != nil {
		log.Errorf("[Renewal] Renewal order creation failed for subscription %d: %v", sub.ID, err)
		return
	}
	if orderID == 0 {
		log.Errorf("[Renewal] Order system returned no order for subscription %d", sub.ID)
		return
	}
	log.Infof("[Renewal] Created renewal order %d for subscription %d", orderID, sub.ID)
}

// reminderDue reports whether the exact day count matches a reminder offset.
func reminderDue(days int) bool {
	for _, offset := range ReminderOffsets {
		if days == offset {
			return true
		}
	}
	return false
}

// alreadyReminded reports whether the same offset was already recorded on
// the same calendar day. Future periods are never blocked: the marker only
// suppresses same-day duplicates.
func alreadyReminded(sub *models.Subscription, days int, now time.Time) bool {
	if sub.LastReminderDays != days || sub.LastReminderAt == nil {
		return false
	}
	last := sub.LastReminderAt.In(now.Location())
	return last.Year() == now.Year() && last.YearDay() == now.YearDay()
}
