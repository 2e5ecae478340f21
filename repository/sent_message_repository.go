// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/utils"
	"gorm.io/gorm"
)

// SentMessageRepositoryImpl implements SentMessageRepository interface
type SentMessageRepositoryImpl struct {
	*BaseRepository[models.SentMessage, models.SentMessageFilter]
}

// NewSentMessageRepository creates a new sent message repository
func NewSentMessageRepository(db *gorm.DB) SentMessageRepository {
	return &SentMessageRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SentMessage, models.SentMessageFilter](db),
	}
}

// ByRunAndContact retrieves the delivery record of a (run, contact) pair, or
// nil when the pair was never dispatched
func (r *SentMessageRepositoryImpl) ByRunAndContact(ctx context.Context, runID uint, contactID int64) (*models.SentMessage, error) {
	db := r.getDB(ctx)

	var msg models.SentMessage
	err := db.Where("campaign_run_id = ? AND contact_id = ?", runID, contactID).Last(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &msg, nil
}

// ByTrackingID retrieves a delivery record by its tracking identifier
func (r *SentMessageRepositoryImpl) ByTrackingID(ctx context.Context, trackingID string) (*models.SentMessage, error) {
	db := r.getDB(ctx)

	var msg models.SentMessage
	err := db.Where("tracking_id = ?", trackingID).Last(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &msg, nil
}

// MarkOutcome records the terminal outcome for a (run, contact) pair with a
// compare-and-set from the pending status. Returns false when the pair
// already reached a terminal state, which makes outcome reporting idempotent.
func (r *SentMessageRepositoryImpl) MarkOutcome(ctx context.Context, runID uint, contactID int64, status models.DeliveryStatus, platformMessageID, sendErr *string, attempts int) (bool, error) {
	db := r.getDB(ctx)

	updates := map[string]any{
		"status":     status,
		"attempts":   attempts,
		"updated_at": utils.UTCNow(),
	}
	if platformMessageID != nil {
		updates["platform_message_id"] = *platformMessageID
	}
	if sendErr != nil {
		updates["error"] = *sendErr
	}

	res := db.Model(&models.SentMessage{}).
		Where("campaign_run_id = ? AND contact_id = ? AND status = ?",
			runID, contactID, models.DeliveryStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// SetEngagement stamps a delivery/open/click/reply timestamp column for the
// record identified by tracking ID. Only the first event per column sticks.
func (r *SentMessageRepositoryImpl) SetEngagement(ctx context.Context, trackingID string, column string, at time.Time) error {
	switch column {
	case "delivered_at", "opened_at", "clicked_at", "replied_at":
	default:
		return fmt.Errorf("unknown engagement column: %s", column)
	}

	db := r.getDB(ctx)

	return db.Model(&models.SentMessage{}).
		Where("tracking_id = ?", trackingID).
		Where(column+" IS NULL").
		Updates(map[string]any{
			column:       at,
			"updated_at": utils.UTCNow(),
		}).Error
}

// ListEngagedContacts returns the contact IDs of a run whose records satisfy
// the drip condition
func (r *SentMessageRepositoryImpl) ListEngagedContacts(ctx context.Context, runID uint, condition models.DripCondition) ([]int64, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.SentMessage{}).
		Where("campaign_run_id = ?", runID)

	switch condition {
	case models.DripConditionAlways:
		query = query.Where("status = ?", models.DeliveryStatusSent)
	case models.DripConditionOpened:
		query = query.Where("opened_at IS NOT NULL")
	case models.DripConditionClicked:
		query = query.Where("clicked_at IS NOT NULL")
	case models.DripConditionReplied:
		query = query.Where("replied_at IS NOT NULL")
	default:
		return nil, fmt.Errorf("unknown drip condition: %s", condition)
	}

	var ids []int64
	err := query.Order("contact_id ASC").Pluck("contact_id", &ids).Error
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// CountTerminalByRun returns how many records of the run reached a terminal
// delivery status
func (r *SentMessageRepositoryImpl) CountTerminalByRun(ctx context.Context, runID uint) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := db.Model(&models.SentMessage{}).
		Where("campaign_run_id = ? AND status <> ?", runID, models.DeliveryStatusPending).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// ByFilter retrieves delivery records based on filter criteria
func (r *SentMessageRepositoryImpl) ByFilter(ctx context.Context, filter models.SentMessageFilter, orderBy string, limit, offset int) ([]*models.SentMessage, error) {
	db := r.getDB(ctx)

	var msgs []*models.SentMessage
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

	err := query.Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	return msgs, nil
}

// Count returns the number of delivery records matching the filter
func (r *SentMessageRepositoryImpl) Count(ctx context.Context, filter models.SentMessageFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := r.applyFilter(db.Model(&models.SentMessage{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *SentMessageRepositoryImpl) applyFilter(db *gorm.DB, filter models.SentMessageFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.CampaignRunID != nil {
		db = db.Where("campaign_run_id = ?", *filter.CampaignRunID)
	}
	if filter.ContactID != nil {
		db = db.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.PageID != nil {
		db = db.Where("page_id = ?", *filter.PageID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}

	return db
}
