package repository

import (
	"strings"
	"time"

	"github.com/memberfox/memberfox/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create creates a new subscription in the database
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// GetByID retrieves a subscription by its ID
func (r *subscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.First(&sub, id).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByUserID retrieves all subscriptions belonging to a user
func (r *subscriptionRepository) GetByUserID(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("end_date ASC").Find(&subs).Error
	return subs, err
}

// GetByRenewalToken resolves a manual renewal token to its subscription
func (r *subscriptionRepository) GetByRenewalToken(token string) (*models.Subscription, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var sub models.Subscription
	err := r.db.Where("renewal_token = ?", trimmed).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindAllActive retrieves all active subscriptions ordered by end date.
// Subscriptions without an end date sort last.
func (r *subscriptionRepository) FindAllActive() ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("status = ?", models.SubStatusActive).
		Order("end_date IS NULL, end_date ASC").
		Find(&subs).Error
	return subs, err
}

// FindExpired retrieves active subscriptions whose end date has passed
func (r *subscriptionRepository) FindExpired(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("status = ? AND end_date IS NOT NULL AND end_date < ?", models.SubStatusActive, now).
		Order("end_date ASC").
		Find(&subs).Error
	return subs, err
}

// Update updates an existing subscription
func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// UpdateFields applies a partial update to a subscription row. Keeping the
// write window small matters here, the daily scan and admin actions can
// touch the same rows.
func (r *subscriptionRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	result := r.db.Model(&models.Subscription{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a subscription by ID
func (r *subscriptionRepository) Delete(id uint) error {
	return r.db.Delete(&models.Subscription{}, id).Error
}

// List retrieves subscriptions with pagination
func (r *subscriptionRepository) List(offset, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Offset(offset).Limit(limit).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

// Count returns the total number of subscriptions
func (r *subscriptionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of subscriptions in the given status
func (r *subscriptionRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
