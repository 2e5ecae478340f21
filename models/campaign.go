package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pagepulse/pagepulse/utils"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCancelled CampaignStatus = "cancelled"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusRunning,
		CampaignStatusPaused, CampaignStatusCancelled, CampaignStatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status permits no further transitions
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCancelled || s == CampaignStatusCompleted
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// SendMethod enumerates the legal ways a message can reach a contact under
// the platform's 24-hour contact-window policy.
type SendMethod string

const (
	SendMethodWithinWindow          SendMethod = "within_window"
	SendMethodOTNToken              SendMethod = "otn_token"
	SendMethodRecurringNotification SendMethod = "recurring_notification"
	SendMethodMessageTag            SendMethod = "message_tag"
	SendMethodSponsoredMessage      SendMethod = "sponsored_message"
	SendMethodBlocked               SendMethod = "blocked"
)

// Valid checks if the send method is valid
func (m SendMethod) Valid() bool {
	switch m {
	case SendMethodWithinWindow, SendMethodOTNToken, SendMethodRecurringNotification,
		SendMethodMessageTag, SendMethodSponsoredMessage, SendMethodBlocked:
		return true
	default:
		return false
	}
}

// MessageTag is a policy-restricted category label allowing a send outside
// the contact window for a specific, narrow purpose. Tags are never
// auto-selected; a campaign must declare one explicitly.
type MessageTag string

const (
	MessageTagConfirmedEventUpdate MessageTag = "CONFIRMED_EVENT_UPDATE"
	MessageTagPostPurchaseUpdate   MessageTag = "POST_PURCHASE_UPDATE"
	MessageTagAccountUpdate        MessageTag = "ACCOUNT_UPDATE"
	MessageTagHumanAgent           MessageTag = "HUMAN_AGENT"
)

// Valid checks if the message tag is one of the four allowed categories
func (t MessageTag) Valid() bool {
	switch t {
	case MessageTagConfirmedEventUpdate, MessageTagPostPurchaseUpdate,
		MessageTagAccountUpdate, MessageTagHumanAgent:
		return true
	default:
		return false
	}
}

// AudienceType enumerates how a campaign's recipient set is described
type AudienceType string

const (
	AudienceTypeAll     AudienceType = "all"
	AudienceTypeSegment AudienceType = "segment"
	AudienceTypePages   AudienceType = "pages"
	AudienceTypeManual  AudienceType = "manual"
	AudienceTypeCSV     AudienceType = "csv"
)

// Valid checks if the audience type is valid
func (t AudienceType) Valid() bool {
	switch t {
	case AudienceTypeAll, AudienceTypeSegment, AudienceTypePages, AudienceTypeManual, AudienceTypeCSV:
		return true
	default:
		return false
	}
}

// AudienceSpec describes the target audience of a campaign
type AudienceSpec struct {
	Type       AudienceType `json:"type"`
	SegmentID  *uint        `json:"segment_id,omitempty"`
	PageIDs    []uint       `json:"page_ids,omitempty"`
	ContactIDs []int64      `json:"contact_ids,omitempty"`
}

// Value implements the driver.Valuer interface for AudienceSpec
func (s AudienceSpec) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for AudienceSpec
func (s *AudienceSpec) Scan(value any) error {
	if value == nil {
		*s = AudienceSpec{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into AudienceSpec", value)
	}

	return json.Unmarshal(bytes, s)
}

// ScheduleType enumerates campaign scheduling modes
type ScheduleType string

const (
	ScheduleTypeOneTime   ScheduleType = "one_time"
	ScheduleTypeRecurring ScheduleType = "recurring"
	ScheduleTypeDrip      ScheduleType = "drip"
)

// DripCondition gates whether a contact receives a given drip step
type DripCondition string

const (
	DripConditionAlways  DripCondition = "always"
	DripConditionOpened  DripCondition = "opened"
	DripConditionClicked DripCondition = "clicked"
	DripConditionReplied DripCondition = "replied"
)

// DripStep is one message in a multi-step, delayed sequence
type DripStep struct {
	Content    string        `json:"content"`
	DelayHours int           `json:"delay_hours"`
	Condition  DripCondition `json:"condition,omitempty"`
}

// ScheduleSpec describes when a campaign's runs are launched
type ScheduleSpec struct {
	Type     ScheduleType `json:"type"`
	SendAt   *time.Time   `json:"send_at,omitempty"`
	CronExpr *string      `json:"cron_expr,omitempty"`
	Steps    []DripStep   `json:"steps,omitempty"`
}

// Value implements the driver.Valuer interface for ScheduleSpec
func (s ScheduleSpec) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for ScheduleSpec
func (s *ScheduleSpec) Scan(value any) error {
	if value == nil {
		*s = ScheduleSpec{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ScheduleSpec", value)
	}

	return json.Unmarshal(bytes, s)
}

// WinnerCriterion selects how an A/B test winner is determined
type WinnerCriterion string

const (
	WinnerCriterionDeliveryRate WinnerCriterion = "delivery_rate"
	WinnerCriterionResponseRate WinnerCriterion = "response_rate"
	WinnerCriterionClickRate    WinnerCriterion = "click_rate"
)

// ABVariant holds one A/B test variant and its own outcome counters
type ABVariant struct {
	Name           string `json:"name"`
	Content        string `json:"content"`
	Percent        int    `json:"percent"`
	SentCount      int64  `json:"sent_count"`
	DeliveredCount int64  `json:"delivered_count"`
	RepliedCount   int64  `json:"replied_count"`
	ClickedCount   int64  `json:"clicked_count"`
}

// ABVariants is a jsonb-backed list of A/B variants
type ABVariants []ABVariant

// Value implements the driver.Valuer interface for ABVariants
func (v ABVariants) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements the sql.Scanner interface for ABVariants
func (v *ABVariants) Scan(value any) error {
	if value == nil {
		*v = nil
		return nil
	}

	var bytes []byte
	switch val := value.(type) {
	case []byte:
		bytes = val
	case string:
		bytes = []byte(val)
	default:
		return fmt.Errorf("cannot scan %T into ABVariants", value)
	}

	return json.Unmarshal(bytes, v)
}

// Campaign represents a bulk-messaging campaign in the database.
// Counters are monotonically non-decreasing and mutated only through the
// campaign flow and the stats aggregator.
type Campaign struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	WorkspaceID uint           `gorm:"not null;index:idx_campaigns_workspace_id" json:"workspace_id"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	Status      CampaignStatus `gorm:"type:campaign_status;not null;default:'draft';index:idx_campaigns_status" json:"status"`

	Audience AudienceSpec `gorm:"type:jsonb;not null" json:"audience"`
	Schedule ScheduleSpec `gorm:"type:jsonb;not null" json:"schedule"`

	// Static bypass preference. Nil means the resolver decides per recipient.
	PreferredMethod *SendMethod `gorm:"type:varchar(32)" json:"preferred_method,omitempty"`
	MessageTag      *MessageTag `gorm:"type:varchar(32)" json:"message_tag,omitempty"`
	Topic           *string     `gorm:"size:64" json:"topic,omitempty"`
	Sponsored       *bool       `gorm:"default:false" json:"sponsored,omitempty"`

	Variants        ABVariants       `gorm:"type:jsonb" json:"variants,omitempty"`
	WinnerCriterion *WinnerCriterion `gorm:"type:varchar(32)" json:"winner_criterion,omitempty"`

	TotalRecipients   int64 `gorm:"not null;default:0" json:"total_recipients"`
	SentCount         int64 `gorm:"not null;default:0" json:"sent_count"`
	DeliveredCount    int64 `gorm:"not null;default:0" json:"delivered_count"`
	FailedCount       int64 `gorm:"not null;default:0" json:"failed_count"`
	BlockedCount      int64 `gorm:"not null;default:0" json:"blocked_count"`
	OpenedCount       int64 `gorm:"not null;default:0" json:"opened_count"`
	ClickedCount      int64 `gorm:"not null;default:0" json:"clicked_count"`
	RepliedCount      int64 `gorm:"not null;default:0" json:"replied_count"`
	UnsubscribedCount int64 `gorm:"not null;default:0" json:"unsubscribed_count"`

	ScheduledAt *time.Time `gorm:"index:idx_campaigns_scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// IsEditable checks if the campaign's message and audience can still be edited.
// Only draft campaigns accept edits.
func (c *Campaign) IsEditable() bool {
	return c.Status == CampaignStatusDraft
}

// CanTransitionTo checks if the campaign can transition to the given status
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch c.Status {
	case CampaignStatusDraft:
		return newStatus == CampaignStatusScheduled ||
			newStatus == CampaignStatusRunning ||
			newStatus == CampaignStatusCancelled
	case CampaignStatusScheduled:
		return newStatus == CampaignStatusRunning ||
			newStatus == CampaignStatusCancelled
	case CampaignStatusRunning:
		return newStatus == CampaignStatusPaused ||
			newStatus == CampaignStatusCancelled ||
			newStatus == CampaignStatusCompleted ||
			newStatus == CampaignStatusScheduled // recurring/drip: next pass re-armed
	case CampaignStatusPaused:
		return newStatus == CampaignStatusRunning ||
			newStatus == CampaignStatusCancelled
	default:
		return false
	}
}

// IsMultiRun reports whether the campaign launches more than one dispatch pass
func (c *Campaign) IsMultiRun() bool {
	return c.Schedule.Type == ScheduleTypeRecurring || c.Schedule.Type == ScheduleTypeDrip
}

// VariantForContact deterministically assigns a contact to an A/B variant
// according to the configured percentage split. Returns nil when the
// campaign has no variants.
func (c *Campaign) VariantForContact(contactID int64) *ABVariant {
	if len(c.Variants) == 0 {
		return nil
	}
	bucket := int(contactID % 100)
	if bucket < 0 {
		bucket = -bucket
	}
	acc := 0
	for i := range c.Variants {
		acc += c.Variants[i].Percent
		if bucket < acc {
			return &c.Variants[i]
		}
	}
	// Percentages not summing to 100 fall through to the last variant.
	return &c.Variants[len(c.Variants)-1]
}

// VariantByName returns the variant with the given name, or nil
func (c *Campaign) VariantByName(name string) *ABVariant {
	for i := range c.Variants {
		if c.Variants[i].Name == name {
			return &c.Variants[i]
		}
	}
	return nil
}

// WinningVariant compares variant counters under the campaign's winner
// criterion and returns the leading variant, or nil when no comparison is
// possible yet.
func (c *Campaign) WinningVariant() *ABVariant {
	if len(c.Variants) == 0 || c.WinnerCriterion == nil {
		return nil
	}
	var best *ABVariant
	bestRate := -1.0
	for i := range c.Variants {
		v := &c.Variants[i]
		if v.SentCount == 0 {
			continue
		}
		var rate float64
		switch *c.WinnerCriterion {
		case WinnerCriterionDeliveryRate:
			rate = float64(v.DeliveredCount) / float64(v.SentCount)
		case WinnerCriterionResponseRate:
			rate = float64(v.RepliedCount) / float64(v.SentCount)
		case WinnerCriterionClickRate:
			rate = float64(v.ClickedCount) / float64(v.SentCount)
		default:
			return nil
		}
		if rate > bestRate {
			bestRate = rate
			best = v
		}
	}
	return best
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID              *uint           `json:"id,omitempty"`
	UUID            *uuid.UUID      `json:"uuid,omitempty"`
	WorkspaceID     *uint           `json:"workspace_id,omitempty"`
	Status          *CampaignStatus `json:"status,omitempty"`
	ScheduledBefore *time.Time      `json:"scheduled_before,omitempty"`
	ScheduledAfter  *time.Time      `json:"scheduled_after,omitempty"`
	CreatedAfter    *time.Time      `json:"created_after,omitempty"`
	CreatedBefore   *time.Time      `json:"created_before,omitempty"`
}
