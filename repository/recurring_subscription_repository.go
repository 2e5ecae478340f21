// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/utils"
	"gorm.io/gorm"
)

// RecurringSubscriptionRepositoryImpl implements RecurringSubscriptionRepository interface
type RecurringSubscriptionRepositoryImpl struct {
	*BaseRepository[models.RecurringSubscription, models.RecurringSubscriptionFilter]
}

// NewRecurringSubscriptionRepository creates a new recurring subscription repository
func NewRecurringSubscriptionRepository(db *gorm.DB) RecurringSubscriptionRepository {
	return &RecurringSubscriptionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RecurringSubscription, models.RecurringSubscriptionFilter](db),
	}
}

// ActiveByContact returns an active subscription for the contact/page pair,
// optionally restricted to a topic
func (r *RecurringSubscriptionRepositoryImpl) ActiveByContact(ctx context.Context, contactID int64, pageID uint, topic *string) (*models.RecurringSubscription, error) {
	db := r.getDB(ctx)

	query := db.Where("contact_id = ? AND page_id = ? AND is_active = ?", contactID, pageID, true)
	if topic != nil {
		query = query.Where("topic = ?", *topic)
	}

	var sub models.RecurringSubscription
	err := query.Order("created_at ASC").First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &sub, nil
}

// AdvanceLastSent moves last_sent_at forward with a compare-and-set against
// the previously observed value and bumps the send counter. Returns false
// when another writer advanced the subscription first.
func (r *RecurringSubscriptionRepositoryImpl) AdvanceLastSent(ctx context.Context, id uint, prev *time.Time, at time.Time) (bool, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.RecurringSubscription{}).
		Where("id = ? AND is_active = ?", id, true)
	if prev == nil {
		query = query.Where("last_sent_at IS NULL")
	} else {
		query = query.Where("last_sent_at = ?", *prev)
	}

	res := query.Updates(map[string]any{
		"last_sent_at": at,
		"send_count":   gorm.Expr("send_count + 1"),
		"updated_at":   utils.UTCNow(),
	})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// Deactivate handles the STOP_NOTIFICATIONS opt-out signal
func (r *RecurringSubscriptionRepositoryImpl) Deactivate(ctx context.Context, token string) error {
	db := r.getDB(ctx)

	return db.Model(&models.RecurringSubscription{}).
		Where("token = ?", token).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": utils.UTCNow(),
		}).Error
}

// ByFilter retrieves subscriptions based on filter criteria
func (r *RecurringSubscriptionRepositoryImpl) ByFilter(ctx context.Context, filter models.RecurringSubscriptionFilter, orderBy string, limit, offset int) ([]*models.RecurringSubscription, error) {
	db := r.getDB(ctx)

	var subs []*models.RecurringSubscription
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&subs).Error
	if err != nil {
		return nil, err
	}

	return subs, nil
}

// Count returns the number of subscriptions matching the filter
func (r *RecurringSubscriptionRepositoryImpl) Count(ctx context.Context, filter models.RecurringSubscriptionFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := r.applyFilter(db.Model(&models.RecurringSubscription{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *RecurringSubscriptionRepositoryImpl) applyFilter(db *gorm.DB, filter models.RecurringSubscriptionFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.ContactID != nil {
		db = db.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.PageID != nil {
		db = db.Where("page_id = ?", *filter.PageID)
	}
	if filter.Topic != nil {
		db = db.Where("topic = ?", *filter.Topic)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}

	return db
}
