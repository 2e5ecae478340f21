// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"

	"github.com/pagepulse/pagepulse/models"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements ContactRepository interface
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, models.ContactFilter]
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Contact, models.ContactFilter](db),
	}
}

// ByContactID retrieves a contact by its 64-bit primary key
func (r *ContactRepositoryImpl) ByContactID(ctx context.Context, id int64) (*models.Contact, error) {
	db := r.getDB(ctx)

	var contact models.Contact
	err := db.Where("id = ?", id).Last(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &contact, nil
}

// ListByIDs retrieves contacts by primary key, preserving no particular order
func (r *ContactRepositoryImpl) ListByIDs(ctx context.Context, ids []int64) ([]*models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	db := r.getDB(ctx)

	var contacts []*models.Contact
	err := db.Where("id IN ?", ids).Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return contacts, nil
}

// ListSubscribedByWorkspace retrieves subscribed contacts of a workspace in
// stable ID order for paged scans
func (r *ContactRepositoryImpl) ListSubscribedByWorkspace(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.Contact, error) {
	db := r.getDB(ctx)

	var contacts []*models.Contact
	query := db.Where("workspace_id = ? AND subscribed = ?", workspaceID, true).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return contacts, nil
}

// ListSubscribedByPages retrieves subscribed contacts reachable through any of
// the given pages in stable ID order
func (r *ContactRepositoryImpl) ListSubscribedByPages(ctx context.Context, pageIDs []uint, limit, offset int) ([]*models.Contact, error) {
	if len(pageIDs) == 0 {
		return nil, nil
	}

	db := r.getDB(ctx)

	var contacts []*models.Contact
	query := db.Where("page_id IN ? AND subscribed = ?", pageIDs, true).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return contacts, nil
}

// ByFilter retrieves contacts based on filter criteria
func (r *ContactRepositoryImpl) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	db := r.getDB(ctx)

	var contacts []*models.Contact
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

	err := query.Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return contacts, nil
}

// Count returns the number of contacts matching the filter
func (r *ContactRepositoryImpl) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := r.applyFilter(db.Model(&models.Contact{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *ContactRepositoryImpl) applyFilter(db *gorm.DB, filter models.ContactFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.PageID != nil {
		db = db.Where("page_id = ?", *filter.PageID)
	}
	if filter.WorkspaceID != nil {
		db = db.Where("workspace_id = ?", *filter.WorkspaceID)
	}
	if filter.PSID != nil {
		db = db.Where("psid = ?", *filter.PSID)
	}
	if filter.Subscribed != nil {
		db = db.Where("subscribed = ?", *filter.Subscribed)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}

	return db
}
