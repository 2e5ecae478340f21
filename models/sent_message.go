package models

import (
	"time"
)

// DeliveryStatus enumerates the state of a single send attempt record.
// pending is the only non-terminal state; every (campaign, contact) pair
// reaches exactly one terminal state.
type DeliveryStatus string

const (
	DeliveryStatusPending         DeliveryStatus = "pending"
	DeliveryStatusSent            DeliveryStatus = "sent"
	DeliveryStatusFailedPermanent DeliveryStatus = "failed_permanent"
	DeliveryStatusFailedExhausted DeliveryStatus = "failed_exhausted"
	DeliveryStatusBlocked         DeliveryStatus = "blocked"
)

// IsTerminal reports whether the status is a final outcome
func (s DeliveryStatus) IsTerminal() bool {
	return s != DeliveryStatusPending && s != ""
}

// IsFailure reports whether the status counts as a delivery failure.
// Blocked is a compliance outcome, not a delivery failure.
func (s DeliveryStatus) IsFailure() bool {
	return s == DeliveryStatusFailedPermanent || s == DeliveryStatusFailedExhausted
}

// SentMessage records one recipient's send attempt under a campaign run,
// including the bypass method that authorized it. The unique
// (run, contact) index is what makes outcome recording idempotent; a
// multi-pass campaign gets one record per contact per pass.
type SentMessage struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	CampaignID    uint   `gorm:"not null;index:idx_sent_messages_campaign_id" json:"campaign_id"`
	CampaignRunID uint   `gorm:"not null;uniqueIndex:uk_sent_messages_run_contact,priority:1" json:"campaign_run_id"`
	ContactID     int64  `gorm:"not null;uniqueIndex:uk_sent_messages_run_contact,priority:2" json:"contact_id"`
	PageID        uint   `gorm:"not null;index:idx_sent_messages_page_id" json:"page_id"`
	TrackingID    string `gorm:"size:64;not null;index:idx_sent_messages_tracking_id" json:"tracking_id"`

	Method     SendMethod  `gorm:"type:varchar(32);not null" json:"method"`
	MessageTag *MessageTag `gorm:"type:varchar(32)" json:"message_tag,omitempty"`

	// References to the compliance artifact that authorized the send, when
	// the method required one.
	OTNTokenID     *uint `json:"otn_token_id,omitempty"`
	SubscriptionID *uint `json:"subscription_id,omitempty"`

	Variant *string `gorm:"size:64" json:"variant,omitempty"`

	Attempts          int            `gorm:"not null;default:0" json:"attempts"`
	Status            DeliveryStatus `gorm:"type:varchar(32);not null;default:'pending';index:idx_sent_messages_status" json:"status"`
	PlatformMessageID *string        `gorm:"size:128" json:"platform_message_id,omitempty"`
	Error             *string        `gorm:"type:text" json:"error,omitempty"`

	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	OpenedAt    *time.Time `json:"opened_at,omitempty"`
	ClickedAt   *time.Time `json:"clicked_at,omitempty"`
	RepliedAt   *time.Time `json:"replied_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_sent_messages_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for the model
func (SentMessage) TableName() string {
	return "sent_messages"
}

// SentMessageFilter provides filter fields for repository queries
type SentMessageFilter struct {
	ID            *uint           `json:"id,omitempty"`
	CampaignID    *uint           `json:"campaign_id,omitempty"`
	CampaignRunID *uint           `json:"campaign_run_id,omitempty"`
	ContactID     *int64          `json:"contact_id,omitempty"`
	PageID        *uint           `json:"page_id,omitempty"`
	Status        *DeliveryStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time      `json:"created_after,omitempty"`
	CreatedBefore *time.Time      `json:"created_before,omitempty"`
}
