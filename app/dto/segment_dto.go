package dto

import (
	"github.com/pagepulse/pagepulse/models"
)

// SegmentDTO represents a segment in API responses
type SegmentDTO struct {
	ID               uint              `json:"id"`
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	Filter           models.FilterTree `json:"filter,omitempty"`
	ContactCount     int64             `json:"contact_count"`
	LastCalculatedAt *string           `json:"last_calculated_at,omitempty"`
	CreatedAt        string            `json:"created_at"`
}

// CreateSegmentRequest represents the request to create a new segment
type CreateSegmentRequest struct {
	WorkspaceID uint              `json:"-"`
	Name        string            `json:"name"`
	Type        string            `json:"type,omitempty"`
	Filter      models.FilterTree `json:"filter,omitempty"`
	MemberIDs   []int64           `json:"member_ids,omitempty"`
}

// CreateSegmentResponse represents the response to create a new segment
type CreateSegmentResponse struct {
	Message string     `json:"message"`
	Segment SegmentDTO `json:"segment"`
}

// UpdateSegmentRequest represents the request to update an existing segment
type UpdateSegmentRequest struct {
	ID          uint               `json:"-"`
	WorkspaceID uint               `json:"-"`
	Name        *string            `json:"name,omitempty"`
	Filter      *models.FilterTree `json:"filter,omitempty"`
	MemberIDs   []int64            `json:"member_ids,omitempty"`
}

// UpdateSegmentResponse represents the response to update a segment
type UpdateSegmentResponse struct {
	Message string     `json:"message"`
	Segment SegmentDTO `json:"segment"`
}

// ListSegmentsRequest represents the request to list segments
type ListSegmentsRequest struct {
	WorkspaceID uint `json:"-"`
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
}

// ListSegmentsResponse represents the paginated segment list
type ListSegmentsResponse struct {
	Message  string       `json:"message"`
	Segments []SegmentDTO `json:"segments"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// PreviewAudienceRequest represents the request to preview a filter tree's
// audience
type PreviewAudienceRequest struct {
	WorkspaceID uint              `json:"-"`
	Filter      models.FilterTree `json:"filter"`
}

// PreviewAudienceResponse represents the audience preview result
type PreviewAudienceResponse struct {
	Message          string  `json:"message"`
	Count            int64   `json:"count"`
	SampleContactIDs []int64 `json:"sample_contact_ids,omitempty"`
}
