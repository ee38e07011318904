package membership

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/memberfox/memberfox/app/models"
	"github.com/memberfox/memberfox/app/repository"
)

var (
	ErrInvalidStatus      = errors.New("invalid subscription status")
	ErrInvalidRenewalType = errors.New("invalid renewal type")
	ErrNotManual          = errors.New("subscription does not renew manually")
)

var validStatuses = map[string]bool{
	models.SubStatusActive:        true,
	models.SubStatusExpired:       true,
	models.SubStatusPendingCancel: true,
	models.SubStatusCancelled:     true,
	models.SubStatusOnHold:        true,
}

// Service provides subscription lifecycle operations on top of the stores,
// routing every status change through the transition handler.
type Service struct {
	subs    repository.SubscriptionRepository
	handler *Handler
}

// NewService creates a membership service from injected collaborators.
func NewService(subs repository.SubscriptionRepository, handler *Handler) *Service {
	return &Service{subs: subs, handler: handler}
}

// NewServiceFromDB creates a membership service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(
		repository.NewSubscriptionRepository(db),
		NewHandler(repository.NewUserRepository(db)),
	)
}

// Handler exposes the transition handler, e.g. to register event listeners.
func (s *Service) Handler() *Handler {
	return s.handler
}

// CreateSubscription starts a new membership term. Created on order
// completion or by admin action. Manual subscriptions get a renewal token.
func (s *Service) CreateSubscription(userID uint, start time.Time, end *time.Time, renewalType string) (*models.Subscription, error) {
	if renewalType != models.RenewalAutomatic && renewalType != models.RenewalManual {
		return nil, ErrInvalidRenewalType
	}

	sub := &models.Subscription{
		UserID:      userID,
		StartDate:   start,
		EndDate:     end,
		Status:      models.SubStatusActive,
		RenewalType: renewalType,
	}
	if renewalType == models.RenewalManual {
		if err := sub.GenerateRenewalToken(); err != nil {
			return nil, fmt.Errorf("failed to generate renewal token: %w", err)
		}
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := s.subs.Create(sub); err != nil {
		return nil, err
	}

	s.handler.HandleStatusChange(sub, "", models.SubStatusActive)
	return sub, nil
}

// ChangeStatus advances a subscription to a new status and fires the
// transition side effects. A no-op when the status is unchanged.
func (s *Service) ChangeStatus(subscriptionID uint, newStatus string) error {
	if !validStatuses[newStatus] {
		return ErrInvalidStatus
	}

	sub, err := s.subs.GetByID(subscriptionID)
	if err != nil {
		return err
	}
	oldStatus := sub.Status
	if oldStatus == newStatus {
		return nil
	}

	now := time.Now()
	err = s.subs.UpdateFields(sub.ID, map[string]interface{}{
		"status":            newStatus,
		"status_changed_at": now,
	})
	if err != nil {
		// The row may have vanished between read and update; treated like a
		// missing dependency, never fatal to a pass.
		return err
	}

	sub.Status = newStatus
	sub.StatusChangedAt = &now
	s.handler.HandleStatusChange(sub, oldStatus, newStatus)
	return nil
}

// Renew extends the subscription by the given period and reactivates it.
// The new term starts from the current end date, or from now when the old
// term already lapsed. The reminder marker resets for the new period.
func (s *Service) Renew(subscriptionID uint, period time.Duration) (*models.Subscription, error) {
	sub, err := s.subs.GetByID(subscriptionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	base := now
	if sub.EndDate != nil && sub.EndDate.After(now) {
		base = *sub.EndDate
	}
	newEnd := base.Add(period)

	err = s.subs.UpdateFields(sub.ID, map[string]interface{}{
		"end_date":           newEnd,
		"last_reminder_days": 0,
		"last_reminder_at":   nil,
	})
	if err != nil {
		return nil, err
	}
	sub.EndDate = &newEnd
	sub.LastReminderDays = 0
	sub.LastReminderAt = nil

	if sub.Status != models.SubStatusActive {
		if err := s.ChangeStatus(sub.ID, models.SubStatusActive); err != nil {
			return nil, err
		}
		sub.Status = models.SubStatusActive
	}
	return sub, nil
}

// Cancel moves the subscription to cancelled, firing the same role-removal
// path as expiration.
func (s *Service) Cancel(subscriptionID uint) error {
	return s.ChangeStatus(subscriptionID, models.SubStatusCancelled)
}

// RegenerateRenewalToken issues a fresh token for a manual subscription,
// invalidating previously sent renewal links.
func (s *Service) RegenerateRenewalToken(subscriptionID uint) (string, error) {
	sub, err := s.subs.GetByID(subscriptionID)
	if err != nil {
		return "", err
	}
	if sub.RenewalType != models.RenewalManual {
		return "", ErrNotManual
	}
	if err := sub.GenerateRenewalToken(); err != nil {
		return "", err
	}
	if err := s.subs.UpdateFields(sub.ID, map[string]interface{}{"renewal_token": sub.RenewalToken}); err != nil {
		return "", err
	}
	return sub.RenewalToken, nil
}
