package models

import (
	"time"

	"github.com/pagepulse/pagepulse/utils"
)

// Page represents a connected messaging-platform page. The access token is
// stored encrypted; decryption happens in the secrets collaborator, never
// here.
type Page struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	WorkspaceID uint    `gorm:"not null;index:idx_pages_workspace_id" json:"workspace_id"`
	ExternalID  string  `gorm:"size:64;not null;uniqueIndex:uk_pages_external_id" json:"external_id"`
	Name        string  `gorm:"size:255;not null" json:"name"`
	AccessToken string  `gorm:"type:text;not null" json:"-"`
	IsActive    *bool   `gorm:"default:true" json:"is_active,omitempty"`

	// Optional per-page override of the hourly send ceiling. Zero means the
	// configured default applies.
	HourlyCap int `gorm:"default:0" json:"hourly_cap"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Page) TableName() string {
	return "pages"
}

// Active reports whether the page may be used for sending
func (p *Page) Active() bool {
	return utils.IsTrue(p.IsActive)
}

// PageFilter represents filter criteria for pages
type PageFilter struct {
	ID          *uint   `json:"id,omitempty"`
	WorkspaceID *uint   `json:"workspace_id,omitempty"`
	ExternalID  *string `json:"external_id,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}
