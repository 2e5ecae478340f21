// Package businessflow contains the business logic for the application.
package businessflow

import (
	"time"

	"github.com/pagepulse/pagepulse/app/dto"
	"github.com/pagepulse/pagepulse/models"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client-related information for audit logging and request tracking
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// ToCampaignDTO converts a campaign model to its API representation
func ToCampaignDTO(campaign *models.Campaign) dto.CampaignDTO {
	d := dto.CampaignDTO{
		UUID:              campaign.UUID.String(),
		Name:              campaign.Name,
		Content:           campaign.Content,
		Status:            string(campaign.Status),
		Audience:          campaign.Audience,
		Schedule:          campaign.Schedule,
		TotalRecipients:   campaign.TotalRecipients,
		SentCount:         campaign.SentCount,
		DeliveredCount:    campaign.DeliveredCount,
		FailedCount:       campaign.FailedCount,
		BlockedCount:      campaign.BlockedCount,
		OpenedCount:       campaign.OpenedCount,
		ClickedCount:      campaign.ClickedCount,
		RepliedCount:      campaign.RepliedCount,
		UnsubscribedCount: campaign.UnsubscribedCount,
		CreatedAt:         campaign.CreatedAt.Format(time.RFC3339),
	}

	if campaign.PreferredMethod != nil {
		d.PreferredMethod = (*string)(campaign.PreferredMethod)
	}
	if campaign.MessageTag != nil {
		d.MessageTag = (*string)(campaign.MessageTag)
	}
	d.Topic = campaign.Topic
	if campaign.ScheduledAt != nil {
		s := campaign.ScheduledAt.Format(time.RFC3339)
		d.ScheduledAt = &s
	}
	if campaign.StartedAt != nil {
		s := campaign.StartedAt.Format(time.RFC3339)
		d.StartedAt = &s
	}
	if campaign.CompletedAt != nil {
		s := campaign.CompletedAt.Format(time.RFC3339)
		d.CompletedAt = &s
	}
	if len(campaign.Variants) > 0 {
		d.Variants = campaign.Variants
	}

	return d
}

// ToSegmentDTO converts a segment model to its API representation
func ToSegmentDTO(segment *models.Segment) dto.SegmentDTO {
	d := dto.SegmentDTO{
		ID:           segment.ID,
		Name:         segment.Name,
		Type:         string(segment.Type),
		Filter:       segment.Filter,
		ContactCount: segment.ContactCount,
		CreatedAt:    segment.CreatedAt.Format(time.RFC3339),
	}
	if segment.LastCalculatedAt != nil {
		s := segment.LastCalculatedAt.Format(time.RFC3339)
		d.LastCalculatedAt = &s
	}
	return d
}
