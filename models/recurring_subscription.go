package models

import (
	"time"

	"github.com/pagepulse/pagepulse/utils"
)

// NotificationFrequency caps how often a recurring subscription may be used
type NotificationFrequency string

const (
	FrequencyDaily   NotificationFrequency = "DAILY"
	FrequencyWeekly  NotificationFrequency = "WEEKLY"
	FrequencyMonthly NotificationFrequency = "MONTHLY"
)

// Valid checks if the frequency is valid
func (f NotificationFrequency) Valid() bool {
	return f == FrequencyDaily || f == FrequencyWeekly || f == FrequencyMonthly
}

// Interval returns the minimum spacing between sends under this frequency
func (f NotificationFrequency) Interval() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// RecurringSubscription is a standing, frequency-capped opt-in permitting
// periodic sends on a topic to one contact/page pair. LastSentAt, once set,
// only moves forward; opt-out signals from webhook ingestion deactivate the
// subscription.
type RecurringSubscription struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ContactID int64  `gorm:"not null;index:idx_recurring_subscriptions_contact_id" json:"contact_id"`
	PageID    uint   `gorm:"not null;index:idx_recurring_subscriptions_page_id" json:"page_id"`
	Topic     string `gorm:"size:64;not null" json:"topic"`
	Token     string `gorm:"size:255;not null;uniqueIndex:uk_recurring_subscriptions_token" json:"token"`

	Frequency  NotificationFrequency `gorm:"type:varchar(16);not null" json:"frequency"`
	IsActive   *bool                 `gorm:"not null;default:true;index:idx_recurring_subscriptions_is_active" json:"is_active"`
	LastSentAt *time.Time            `json:"last_sent_at,omitempty"`
	SendCount  int64                 `gorm:"not null;default:0" json:"send_count"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (RecurringSubscription) TableName() string {
	return "recurring_subscriptions"
}

// IsEligible reports whether the subscription permits a send right now:
// active, and the frequency interval has fully elapsed since the last send.
func (s *RecurringSubscription) IsEligible(now time.Time) bool {
	if !utils.IsTrue(s.IsActive) {
		return false
	}
	if s.LastSentAt == nil {
		return true
	}
	return now.Sub(*s.LastSentAt) >= s.Frequency.Interval()
}

// RecurringSubscriptionFilter represents filter criteria for subscriptions
type RecurringSubscriptionFilter struct {
	ID        *uint   `json:"id,omitempty"`
	ContactID *int64  `json:"contact_id,omitempty"`
	PageID    *uint   `json:"page_id,omitempty"`
	Topic     *string `json:"topic,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}
