// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pagepulse/pagepulse/models"
	"gorm.io/gorm"
)

// SegmentRepositoryImpl implements SegmentRepository interface
type SegmentRepositoryImpl struct {
	*BaseRepository[models.Segment, models.SegmentFilter]
}

// NewSegmentRepository creates a new segment repository
func NewSegmentRepository(db *gorm.DB) SegmentRepository {
	return &SegmentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Segment, models.SegmentFilter](db),
	}
}

// UpdateMembership replaces the cached membership set, count and calculation
// timestamp in one write
func (r *SegmentRepositoryImpl) UpdateMembership(ctx context.Context, id uint, memberIDs []int64, count int64, calculatedAt time.Time) error {
	db := r.getDB(ctx)

	return db.Model(&models.Segment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"member_ids":         pq.Int64Array(memberIDs),
			"contact_count":      count,
			"last_calculated_at": calculatedAt,
			"updated_at":         calculatedAt,
		}).Error
}

// ByFilter retrieves segments based on filter criteria
func (r *SegmentRepositoryImpl) ByFilter(ctx context.Context, filter models.SegmentFilter, orderBy string, limit, offset int) ([]*models.Segment, error) {
	db := r.getDB(ctx)

	var segments []*models.Segment
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

	err := query.Find(&segments).Error
	if err != nil {
		return nil, err
	}

	return segments, nil
}

// Count returns the number of segments matching the filter
func (r *SegmentRepositoryImpl) Count(ctx context.Context, filter models.SegmentFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := r.applyFilter(db.Model(&models.Segment{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *SegmentRepositoryImpl) applyFilter(db *gorm.DB, filter models.SegmentFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.WorkspaceID != nil {
		db = db.Where("workspace_id = ?", *filter.WorkspaceID)
	}
	if filter.Type != nil {
		db = db.Where("type = ?", *filter.Type)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}

	return db
}
