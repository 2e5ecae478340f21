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

// CampaignRepositoryImpl implements CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByUUID retrieves a campaign by its UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaign models.Campaign
	err := db.Where("uuid = ?", uuid).Last(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &campaign, nil
}

// ListDue returns scheduled campaigns whose activation time has passed
func (r *CampaignRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
	query := db.Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?",
		models.CampaignStatusScheduled, now).
		Order("scheduled_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&campaigns).Error
	if err != nil {
		return nil, err
	}

	return campaigns, nil
}

// ListByStatus retrieves campaigns in the given status
func (r *CampaignRepositoryImpl) ListByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error) {
	filter := models.CampaignFilter{
		Status: &status,
	}
	return r.ByFilter(ctx, filter, "id ASC", limit, offset)
}

// TransitionStatus performs a guarded status transition. The update only
// applies while the row still holds the expected current status, so
// concurrent transitions cannot clobber each other.
func (r *CampaignRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from, to models.CampaignStatus, extra map[string]any) (bool, error) {
	db := r.getDB(ctx)

	updates := map[string]any{
		"status":     to,
		"updated_at": utils.UTCNow(),
	}
	for column, value := range extra {
		updates[column] = value
	}

	res := db.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// IncrementCounters atomically adds deltas to the campaign's outcome counters
func (r *CampaignRepositoryImpl) IncrementCounters(ctx context.Context, id uint, deltas CounterDeltas) error {
	if deltas.IsZero() {
		return nil
	}

	db := r.getDB(ctx)

	updates := map[string]any{
		"updated_at": utils.UTCNow(),
	}
	if deltas.TotalRecipients > 0 {
		updates["total_recipients"] = gorm.Expr("total_recipients + ?", deltas.TotalRecipients)
	}
	if deltas.Sent > 0 {
		updates["sent_count"] = gorm.Expr("sent_count + ?", deltas.Sent)
	}
	if deltas.Delivered > 0 {
		updates["delivered_count"] = gorm.Expr("delivered_count + ?", deltas.Delivered)
	}
	if deltas.Failed > 0 {
		updates["failed_count"] = gorm.Expr("failed_count + ?", deltas.Failed)
	}
	if deltas.Blocked > 0 {
		updates["blocked_count"] = gorm.Expr("blocked_count + ?", deltas.Blocked)
	}
	if deltas.Opened > 0 {
		updates["opened_count"] = gorm.Expr("opened_count + ?", deltas.Opened)
	}
	if deltas.Clicked > 0 {
		updates["clicked_count"] = gorm.Expr("clicked_count + ?", deltas.Clicked)
	}
	if deltas.Replied > 0 {
		updates["replied_count"] = gorm.Expr("replied_count + ?", deltas.Replied)
	}
	if deltas.Unsubscribed > 0 {
		updates["unsubscribed_count"] = gorm.Expr("unsubscribed_count + ?", deltas.Unsubscribed)
	}

	return db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateVariants persists the campaign's A/B variant counters
func (r *CampaignRepositoryImpl) UpdateVariants(ctx context.Context, id uint, variants models.ABVariants) error {
	db := r.getDB(ctx)
	return db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"variants":   variants,
			"updated_at": utils.UTCNow(),
		}).Error
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
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

	err := query.Find(&campaigns).Error
	if err != nil {
		return nil, err
	}

	return campaigns, nil
}

// Count returns the number of campaigns matching the filter
func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := r.applyFilter(db.Model(&models.Campaign{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.WorkspaceID != nil {
		db = db.Where("workspace_id = ?", *filter.WorkspaceID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.ScheduledBefore != nil {
		db = db.Where("scheduled_at < ?", *filter.ScheduledBefore)
	}
	if filter.ScheduledAfter != nil {
		db = db.Where("scheduled_at > ?", *filter.ScheduledAfter)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}

	return db
}
