// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pagepulse/pagepulse/models"
	"gorm.io/gorm"
)

// OTNTokenRepositoryImpl implements OTNTokenRepository interface
type OTNTokenRepositoryImpl struct {
	*BaseRepository[models.OTNToken, models.OTNTokenFilter]
}

// NewOTNTokenRepository creates a new OTN token repository
func NewOTNTokenRepository(db *gorm.DB) OTNTokenRepository {
	return &OTNTokenRepositoryImpl{
		BaseRepository: NewBaseRepository[models.OTNToken, models.OTNTokenFilter](db),
	}
}

// UsableByContact returns the oldest unused, unexpired token for the
// contact/page pair, or nil when none exists. Oldest first so tokens nearest
// expiry get consumed before fresher ones.
func (r *OTNTokenRepositoryImpl) UsableByContact(ctx context.Context, contactID int64, pageID uint, now time.Time) (*models.OTNToken, error) {
	db := r.getDB(ctx)

	var token models.OTNToken
	err := db.Where("contact_id = ? AND page_id = ? AND is_used = ?", contactID, pageID, false).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at ASC").
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &token, nil
}

// Consume flips is_used from false to true with a compare-and-set. Returns
// false when another writer already consumed the token.
func (r *OTNTokenRepositoryImpl) Consume(ctx context.Context, id uint, at time.Time) (bool, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.OTNToken{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]any{
			"is_used": true,
			"used_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// ByFilter retrieves tokens based on filter criteria
func (r *OTNTokenRepositoryImpl) ByFilter(ctx context.Context, filter models.OTNTokenFilter, orderBy string, limit, offset int) ([]*models.OTNToken, error) {
	db := r.getDB(ctx)

	var tokens []*models.OTNToken
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

	err := query.Find(&tokens).Error
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

// Count returns the number of tokens matching the filter
func (r *OTNTokenRepositoryImpl) Count(ctx context.Context, filter models.OTNTokenFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := r.applyFilter(db.Model(&models.OTNToken{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *OTNTokenRepositoryImpl) applyFilter(db *gorm.DB, filter models.OTNTokenFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.ContactID != nil {
		db = db.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.PageID != nil {
		db = db.Where("page_id = ?", *filter.PageID)
	}
	if filter.Token != nil {
		db = db.Where("token = ?", *filter.Token)
	}
	if filter.IsUsed != nil {
		db = db.Where("is_used = ?", *filter.IsUsed)
	}

	return db
}
