// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"

	"github.com/pagepulse/pagepulse/models"
	"gorm.io/gorm"
)

// PageRepositoryImpl implements PageRepository interface
type PageRepositoryImpl struct {
	*BaseRepository[models.Page, models.PageFilter]
}

// NewPageRepository creates a new page repository
func NewPageRepository(db *gorm.DB) PageRepository {
	return &PageRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Page, models.PageFilter](db),
	}
}

// ByExternalID retrieves a page by its platform-side identifier
func (r *PageRepositoryImpl) ByExternalID(ctx context.Context, externalID string) (*models.Page, error) {
	db := r.getDB(ctx)

	var page models.Page
	err := db.Where("external_id = ?", externalID).Last(&page).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &page, nil
}

// ListActiveByWorkspace retrieves all active pages of a workspace
func (r *PageRepositoryImpl) ListActiveByWorkspace(ctx context.Context, workspaceID uint) ([]*models.Page, error) {
	db := r.getDB(ctx)

	var pages []*models.Page
	err := db.Where("workspace_id = ? AND is_active = ?", workspaceID, true).
		Order("id ASC").
		Find(&pages).Error
	if err != nil {
		return nil, err
	}

	return pages, nil
}

// ByFilter retrieves pages based on filter criteria
func (r *PageRepositoryImpl) ByFilter(ctx context.Context, filter models.PageFilter, orderBy string, limit, offset int) ([]*models.Page, error) {
	db := r.getDB(ctx)

	var pages []*models.Page
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

	err := query.Find(&pages).Error
	if err != nil {
		return nil, err
	}

	return pages, nil
}

// Count returns the number of pages matching the filter
func (r *PageRepositoryImpl) Count(ctx context.Context, filter models.PageFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := r.applyFilter(db.Model(&models.Page{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *PageRepositoryImpl) applyFilter(db *gorm.DB, filter models.PageFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.WorkspaceID != nil {
		db = db.Where("workspace_id = ?", *filter.WorkspaceID)
	}
	if filter.ExternalID != nil {
		db = db.Where("external_id = ?", *filter.ExternalID)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}

	return db
}
