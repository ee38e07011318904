package models

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	SubStatusActive        = "active"
	SubStatusExpired       = "expired"
	SubStatusPendingCancel = "pending-cancel"
	SubStatusCancelled     = "cancelled"
	SubStatusOnHold        = "on-hold"
)

const (
	RenewalAutomatic = "automatic"
	RenewalManual    = "manual"
)

// Subscription is one membership term for a user. EndDate may be nil for
// memberships that never expire.
type Subscription struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"not null;index" json:"user_id"`
	StartDate        time.Time  `gorm:"type:timestamp;not null" json:"start_date"`
	EndDate          *time.Time `gorm:"type:timestamp;default:null;index" json:"end_date,omitempty"`
	Status           string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status" validate:"oneof=active expired pending-cancel cancelled on-hold"`
	RenewalType      string     `gorm:"type:varchar(16);not null;default:'manual'" json:"renewal_type" validate:"oneof=automatic manual"`
	RenewalToken     string     `gorm:"type:varchar(100);index" json:"-"`
	StatusChangedAt  *time.Time `gorm:"type:timestamp;default:null" json:"status_changed_at,omitempty"`
	PausedAt         *time.Time `gorm:"type:timestamp;default:null" json:"paused_at,omitempty"`
	LastReminderDays int        `gorm:"default:0" json:"last_reminder_days"`
	LastReminderAt   *time.Time `gorm:"type:timestamp;default:null" json:"last_reminder_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

var ErrEndBeforeStart = errors.New("subscription end date must be after start date")

// Validate checks the status/renewal-type sets and the date ordering.
func (s *Subscription) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		return err
	}
	if s.EndDate != nil && !s.EndDate.After(s.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}

// IsActive reports whether the subscription is in the active status.
func (s *Subscription) IsActive() bool {
	return s.Status == SubStatusActive
}

// IsManual reports whether the subscription renews by user action.
func (s *Subscription) IsManual() bool {
	return s.RenewalType == RenewalManual
}

// DaysUntilExpiry returns the whole calendar days between now and EndDate.
// The calculation compares dates, not durations, so a subscription ending
// tomorrow at 01:00 counts as 1 day even at 23:00 today. Returns ok=false
// when no end date is set.
func (s *Subscription) DaysUntilExpiry(now time.Time) (int, bool) {
	if s.EndDate == nil {
		return 0, false
	}
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := s.EndDate.In(now.Location())
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, now.Location())
	// A midnight-to-midnight span crossing a DST change is 23h or 25h, so
	// the hour count must be rounded, not truncated.
	return int(math.Round(endDay.Sub(nowDay).Hours() / 24)), true
}

// IsExpired reports whether the end date has passed.
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.EndDate != nil && s.EndDate.Before(now)
}

// GenerateRenewalToken creates a fresh random token for manual renewal links.
func (s *Subscription) GenerateRenewalToken() error {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	s.RenewalToken = hex.EncodeToString(b)
	return nil
}
