// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/utils"
	"gorm.io/gorm"
)

// CampaignRunRepositoryImpl implements CampaignRunRepository interface
type CampaignRunRepositoryImpl struct {
	*BaseRepository[models.CampaignRun, models.CampaignRunFilter]
}

// NewCampaignRunRepository creates a new campaign run repository
func NewCampaignRunRepository(db *gorm.DB) CampaignRunRepository {
	return &CampaignRunRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CampaignRun, models.CampaignRunFilter](db),
	}
}

// LatestByCampaign returns the newest dispatch pass of a campaign, or nil
// when the campaign has never been launched
func (r *CampaignRunRepositoryImpl) LatestByCampaign(ctx context.Context, campaignID uint) (*models.CampaignRun, error) {
	db := r.getDB(ctx)

	var run models.CampaignRun
	err := db.Where("campaign_id = ?", campaignID).
		Order("seq DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &run, nil
}

// CountByCampaign returns how many dispatch passes the campaign has had
func (r *CampaignRunRepositoryImpl) CountByCampaign(ctx context.Context, campaignID uint) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := db.Model(&models.CampaignRun{}).
		Where("campaign_id = ?", campaignID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// UpdateCursor advances the resume cursor of an in-flight pass
func (r *CampaignRunRepositoryImpl) UpdateCursor(ctx context.Context, id uint, lastContactID int64) error {
	db := r.getDB(ctx)

	return db.Model(&models.CampaignRun{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_contact_id": lastContactID,
			"updated_at":      utils.UTCNow(),
		}).Error
}

// UpdateStatistics replaces the run's aggregated statistics snapshot
func (r *CampaignRunRepositoryImpl) UpdateStatistics(ctx context.Context, id uint, stats json.RawMessage) error {
	db := r.getDB(ctx)

	return db.Model(&models.CampaignRun{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"statistics": stats,
			"updated_at": utils.UTCNow(),
		}).Error
}

// MarkFinished stamps the pass as fully dispatched
func (r *CampaignRunRepositoryImpl) MarkFinished(ctx context.Context, id uint, at time.Time) error {
	db := r.getDB(ctx)

	return db.Model(&models.CampaignRun{}).
		Where("id = ? AND finished_at IS NULL", id).
		Updates(map[string]any{
			"finished_at": at,
			"updated_at":  at,
		}).Error
}

// ByFilter retrieves runs based on filter criteria
func (r *CampaignRunRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignRunFilter, orderBy string, limit, offset int) ([]*models.CampaignRun, error) {
	db := r.getDB(ctx)

	var runs []*models.CampaignRun
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

	err := query.Find(&runs).Error
	if err != nil {
		return nil, err
	}

	return runs, nil
}

// Count returns the number of runs matching the filter
func (r *CampaignRunRepositoryImpl) Count(ctx context.Context, filter models.CampaignRunFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := r.applyFilter(db.Model(&models.CampaignRun{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *CampaignRunRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignRunFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Seq != nil {
		db = db.Where("seq = ?", *filter.Seq)
	}

	return db
}
