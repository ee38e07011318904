package repository

import (
	"time"

	"github.com/memberfox/memberfox/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// SubscriptionRepository defines the interface for subscription-related
// database operations
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetByUserID(userID uint) ([]models.Subscription, error)
	GetByRenewalToken(token string) (*models.Subscription, error)
	FindAllActive() ([]models.Subscription, error)
	FindExpired(now time.Time) ([]models.Subscription, error)
	Update(sub *models.Subscription) error
	UpdateFields(id uint, fields map[string]interface{}) error
	Delete(id uint) error
	List(offset, limit int) ([]models.Subscription, error)
	Count() (int64, error)
	CountByStatus(status string) (int64, error)
}

// SettingRepository defines the interface for setting-related database operations
type SettingRepository interface {
	Get() (*models.AppSettings, error)
	Save(settings *models.AppSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}
