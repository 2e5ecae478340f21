package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pagepulse/pagepulse/utils"
)

// CustomFieldMap is a jsonb-backed map of per-contact custom fields
type CustomFieldMap map[string]any

// Value implements the driver.Valuer interface for CustomFieldMap
func (m CustomFieldMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for CustomFieldMap
func (m *CustomFieldMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CustomFieldMap", value)
	}

	return json.Unmarshal(bytes, m)
}

// Contact represents a messaging-platform end user reachable through a page.
// The two interaction timestamps are written by webhook ingestion; this core
// only reads them.
type Contact struct {
	ID          int64   `gorm:"primaryKey" json:"id"`
	PageID      uint    `gorm:"not null;index:idx_contacts_page_id" json:"page_id"`
	WorkspaceID uint    `gorm:"not null;index:idx_contacts_workspace_id" json:"workspace_id"`
	PSID        string  `gorm:"size:64;not null;uniqueIndex:uk_contacts_page_psid,priority:2" json:"psid"`
	FirstName   *string `gorm:"size:128" json:"first_name,omitempty"`
	LastName    *string `gorm:"size:128" json:"last_name,omitempty"`

	Subscribed           *bool      `gorm:"default:true" json:"subscribed,omitempty"`
	LastContactMessageAt *time.Time `gorm:"index:idx_contacts_last_contact_message_at" json:"last_contact_message_at,omitempty"`
	LastPageMessageAt    *time.Time `json:"last_page_message_at,omitempty"`

	CustomFields CustomFieldMap `gorm:"type:jsonb" json:"custom_fields,omitempty"`
	Tags         pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Contact) TableName() string {
	return "contacts"
}

// InMessagingWindow reports whether a free-form send is currently legal for
// this contact: the last inbound message arrived within the 24-hour window.
func (c *Contact) InMessagingWindow(now time.Time) bool {
	if c.LastContactMessageAt == nil {
		return false
	}
	return now.Sub(*c.LastContactMessageAt) <= utils.MessagingWindow
}

// IsSubscribed reports whether the contact accepts campaign messages
func (c *Contact) IsSubscribed() bool {
	return utils.IsTrue(c.Subscribed)
}

// HasTag reports whether the contact carries the given tag
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Field returns a contact attribute by name, looking at base fields first
// and falling back to the custom-field map. The second return reports
// presence.
func (c *Contact) Field(name string) (any, bool) {
	switch name {
	case "psid":
		return c.PSID, true
	case "first_name":
		if c.FirstName == nil {
			return nil, false
		}
		return *c.FirstName, true
	case "last_name":
		if c.LastName == nil {
			return nil, false
		}
		return *c.LastName, true
	case "subscribed":
		return c.IsSubscribed(), true
	case "last_contact_message_at":
		if c.LastContactMessageAt == nil {
			return nil, false
		}
		return *c.LastContactMessageAt, true
	case "last_page_message_at":
		if c.LastPageMessageAt == nil {
			return nil, false
		}
		return *c.LastPageMessageAt, true
	case "created_at":
		return c.CreatedAt, true
	}
	v, ok := c.CustomFields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ContactFilter represents filter criteria for contacts
type ContactFilter struct {
	ID            *int64     `json:"id,omitempty"`
	PageID        *uint      `json:"page_id,omitempty"`
	WorkspaceID   *uint      `json:"workspace_id,omitempty"`
	PSID          *string    `json:"psid,omitempty"`
	Subscribed    *bool      `json:"subscribed,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
