package models

import (
	"time"

	"github.com/pagepulse/pagepulse/utils"
)

// OTNToken is a single-use one-time-notification token tied to one
// contact/page pair. IsUsed transitions false to true exactly once; once
// consumed the token is permanently unusable even if the underlying send
// later fails.
type OTNToken struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	ContactID int64   `gorm:"not null;index:idx_otn_tokens_contact_id" json:"contact_id"`
	PageID    uint    `gorm:"not null;index:idx_otn_tokens_page_id" json:"page_id"`
	Token     string  `gorm:"size:255;not null;uniqueIndex:uk_otn_tokens_token" json:"token"`
	Topic     *string `gorm:"size:64" json:"topic,omitempty"`

	IsUsed    *bool      `gorm:"not null;default:false;index:idx_otn_tokens_is_used" json:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for the model
func (OTNToken) TableName() string {
	return "otn_tokens"
}

// IsUsable reports whether the token can still legally authorize a send at
// the given instant: never consumed and not expired.
func (t *OTNToken) IsUsable(now time.Time) bool {
	if utils.IsTrue(t.IsUsed) {
		return false
	}
	if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
		return false
	}
	return true
}

// OTNTokenFilter represents filter criteria for OTN tokens
type OTNTokenFilter struct {
	ID        *uint   `json:"id,omitempty"`
	ContactID *int64  `json:"contact_id,omitempty"`
	PageID    *uint   `json:"page_id,omitempty"`
	Token     *string `json:"token,omitempty"`
	IsUsed    *bool   `json:"is_used,omitempty"`
}
