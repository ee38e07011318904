package models

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer, float
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppSettings represents the application settings structure
type AppSettings struct {
	SiteTitle           string `json:"site_title" validate:"required,min=1,max=255"`
	MembershipRole      string `json:"membership_role"`
	DefaultRole         string `json:"default_role"`
	RoleRemovalDisabled bool   `json:"role_removal_disabled"`
	SenderEmail         string `json:"sender_email"`
	RenewalBaseURL      string `json:"renewal_base_url"`
	RenewalCronSpec     string `json:"renewal_cron_spec"`
	QueueCronSpec       string `json:"queue_cron_spec"`
	mu                  sync.RWMutex
}

// Global settings instance
var (
	appSettings *AppSettings
	settingsMu  sync.RWMutex
)

// GetAppSettings returns the current application settings
func GetAppSettings() *AppSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	if appSettings == nil {
		return defaultSettings()
	}
	return appSettings
}

func defaultSettings() *AppSettings {
	return &AppSettings{
		SiteTitle:           "MemberFox",
		MembershipRole:      ROLE_MEMBER,
		DefaultRole:         ROLE_USER,
		RoleRemovalDisabled: false,
		SenderEmail:         "",
		RenewalBaseURL:      "http://localhost:4000",
		RenewalCronSpec:     "0 2 * * *", // daily renewal scan
		QueueCronSpec:       "0 * * * *", // hourly mail queue flush
	}
}

// LoadSettings loads settings from database into memory
func LoadSettings(db *gorm.DB) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	// Initialize with defaults
	appSettings = defaultSettings()

	// Load settings from database
	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Apply loaded settings
	for _, setting := range settings {
		switch setting.Key {
		case "site_title":
			appSettings.SiteTitle = setting.Value
		case "membership_role":
			appSettings.MembershipRole = setting.Value
		case "default_role":
			appSettings.DefaultRole = setting.Value
		case "role_removal_disabled":
			appSettings.RoleRemovalDisabled = setting.Value == "true"
		case "sender_email":
			appSettings.SenderEmail = setting.Value
		case "renewal_base_url":
			appSettings.RenewalBaseURL = setting.Value
		case "renewal_cron_spec":
			appSettings.RenewalCronSpec = setting.Value
		case "queue_cron_spec":
			appSettings.QueueCronSpec = setting.Value
		}
	}

	return nil
}

// SaveSettings saves current settings to database
func SaveSettings(db *gorm.DB, settings *AppSettings) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	pairs := map[string]string{
		"site_title":            settings.SiteTitle,
		"membership_role":       settings.MembershipRole,
		"default_role":          settings.DefaultRole,
		"role_removal_disabled": fmt.Sprintf("%t", settings.RoleRemovalDisabled),
		"sender_email":          settings.SenderEmail,
		"renewal_base_url":      settings.RenewalBaseURL,
		"renewal_cron_spec":     settings.RenewalCronSpec,
		"queue_cron_spec":       settings.QueueCronSpec,
	}

	for key, value := range pairs {
		var existing Setting
		err := db.Where("setting_key = ?", key).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if err := db.Create(&Setting{Key: key, Value: value, Type: "string"}).Error; err != nil {
				return fmt.Errorf("failed to create setting %s: %w", key, err)
			}
			continue
		} else if err != nil {
			return err
		}
		existing.Value = value
		if err := db.Save(&existing).Error; err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	appSettings = settings
	return nil
}

// SetAppSettingsForTest swaps the in-memory settings. Tests only.
func SetAppSettingsForTest(s *AppSettings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	appSettings = s
}

// GetMembershipRole returns the role granted to active members.
func (s *AppSettings) GetMembershipRole() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.MembershipRole == "" {
		return ROLE_MEMBER
	}
	return s.MembershipRole
}

// GetDefaultRole returns the fallback role a user keeps when the membership
// role is revoked.
func (s *AppSettings) GetDefaultRole() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.DefaultRole == "" {
		return ROLE_USER
	}
	return s.DefaultRole
}

// IsRoleRemovalDisabled reports whether expiration keeps the membership role.
func (s *AppSettings) IsRoleRemovalDisabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RoleRemovalDisabled
}

// GetSenderEmail returns the configured From address, may be empty.
func (s *AppSettings) GetSenderEmail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SenderEmail
}

// GetRenewalBaseURL returns the base URL for manual renewal links.
func (s *AppSettings) GetRenewalBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RenewalBaseURL
}

// GetRenewalCronSpec returns the cron expression for the daily renewal scan.
func (s *AppSettings) GetRenewalCronSpec() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.RenewalCronSpec == "" {
		return "0 2 * * *"
	}
	return s.RenewalCronSpec
}

// GetQueueCronSpec returns the cron expression for the mail queue flush.
func (s *AppSettings) GetQueueCronSpec() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.QueueCronSpec == "" {
		return "0 * * * *"
	}
	return s.QueueCronSpec
}
