package dto

import (
	"time"

	"github.com/pagepulse/pagepulse/models"
)

// CampaignDTO represents a campaign in API responses
type CampaignDTO struct {
	UUID    string `json:"uuid"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Status  string `json:"status"`

	Audience models.AudienceSpec `json:"audience"`
	Schedule models.ScheduleSpec `json:"schedule"`

	PreferredMethod *string `json:"preferred_method,omitempty"`
	MessageTag      *string `json:"message_tag,omitempty"`
	Topic           *string `json:"topic,omitempty"`

	Variants models.ABVariants `json:"variants,omitempty"`

	TotalRecipients   int64 `json:"total_recipients"`
	SentCount         int64 `json:"sent_count"`
	DeliveredCount    int64 `json:"delivered_count"`
	FailedCount       int64 `json:"failed_count"`
	BlockedCount      int64 `json:"blocked_count"`
	OpenedCount       int64 `json:"opened_count"`
	ClickedCount      int64 `json:"clicked_count"`
	RepliedCount      int64 `json:"replied_count"`
	UnsubscribedCount int64 `json:"unsubscribed_count"`

	ScheduledAt *string `json:"scheduled_at,omitempty"`
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	WorkspaceID     uint                `json:"-"`
	Name            string              `json:"name"`
	Content         string              `json:"content"`
	Audience        models.AudienceSpec `json:"audience"`
	Schedule        models.ScheduleSpec `json:"schedule"`
	PreferredMethod *string             `json:"preferred_method,omitempty"`
	MessageTag      *string             `json:"message_tag,omitempty"`
	Topic           *string             `json:"topic,omitempty"`
	Sponsored       *bool               `json:"sponsored,omitempty"`
	Variants        models.ABVariants   `json:"variants,omitempty"`
	WinnerCriterion *string             `json:"winner_criterion,omitempty"`
}

// CreateCampaignResponse represents the response to create a new campaign
type CreateCampaignResponse struct {
	Message  string      `json:"message"`
	Campaign CampaignDTO `json:"campaign"`
}

// UpdateCampaignRequest represents the request to update a draft campaign
type UpdateCampaignRequest struct {
	UUID            string               `json:"-"`
	WorkspaceID     uint                 `json:"-"`
	Name            *string              `json:"name,omitempty"`
	Content         *string              `json:"content,omitempty"`
	Audience        *models.AudienceSpec `json:"audience,omitempty"`
	Schedule        *models.ScheduleSpec `json:"schedule,omitempty"`
	PreferredMethod *string              `json:"preferred_method,omitempty"`
	MessageTag      *string              `json:"message_tag,omitempty"`
	Topic           *string              `json:"topic,omitempty"`
	Sponsored       *bool                `json:"sponsored,omitempty"`
	Variants        models.ABVariants    `json:"variants,omitempty"`
}

// UpdateCampaignResponse represents the response to update a campaign
type UpdateCampaignResponse struct {
	Message  string      `json:"message"`
	Campaign CampaignDTO `json:"campaign"`
}

// GetCampaignRequest represents the request to get an existing campaign
type GetCampaignRequest struct {
	UUID        string `json:"-"`
	WorkspaceID uint   `json:"-"`
}

// GetCampaignResponse represents the response carrying one campaign
type GetCampaignResponse struct {
	Message  string      `json:"message"`
	Campaign CampaignDTO `json:"campaign"`
}

// ListCampaignsRequest represents the request to list campaigns
type ListCampaignsRequest struct {
	WorkspaceID uint    `json:"-"`
	Status      *string `json:"status,omitempty"`
	Page        int     `json:"page"`
	PageSize    int     `json:"page_size"`
}

// ListCampaignsResponse represents the paginated campaign list
type ListCampaignsResponse struct {
	Message   string        `json:"message"`
	Campaigns []CampaignDTO `json:"campaigns"`
	Total     int64         `json:"total"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
}

// ScheduleCampaignRequest represents the request to arm a campaign for
// activation
type ScheduleCampaignRequest struct {
	UUID        string     `json:"-"`
	WorkspaceID uint       `json:"-"`
	SendAt      *time.Time `json:"send_at,omitempty"`
}

// CampaignActionRequest represents a lifecycle action on a campaign
type CampaignActionRequest struct {
	UUID        string `json:"-"`
	WorkspaceID uint   `json:"-"`
}

// CampaignActionResponse represents the result of a lifecycle action
type CampaignActionResponse struct {
	Message string `json:"message"`
	UUID    string `json:"uuid"`
	Status  string `json:"status"`
}

// CampaignProgressResponse represents dispatch progress of a campaign
type CampaignProgressResponse struct {
	Message         string `json:"message"`
	UUID            string `json:"uuid"`
	Status          string `json:"status"`
	TotalRecipients int64  `json:"total_recipients"`
	SentCount       int64  `json:"sent_count"`
	FailedCount     int64  `json:"failed_count"`
	BlockedCount    int64  `json:"blocked_count"`
	RunSeq          *int   `json:"run_seq,omitempty"`
	RunAudienceSize int64  `json:"run_audience_size"`
	RunFinished     bool   `json:"run_finished"`
}

// EngagementWebhookRequest represents a platform webhook event applied to a
// sent message
type EngagementWebhookRequest struct {
	TrackingID string     `json:"tracking_id"`
	Event      string     `json:"event"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}
