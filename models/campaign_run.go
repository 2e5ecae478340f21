package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// CampaignRun is one bounded dispatch pass of a campaign: the launch of a
// one-time campaign, one recurrence interval, or one drip step. It snapshots
// the resolved audience at launch time so mid-run membership drift cannot
// change who receives the pass, and keeps a cursor for crash resume.
type CampaignRun struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	CampaignID uint `gorm:"not null;index:idx_campaign_runs_campaign_id" json:"campaign_id"`

	// Seq numbers the pass within the campaign: 0 for the first launch,
	// incrementing per recurrence or drip step.
	Seq      int  `gorm:"not null;default:0" json:"seq"`
	DripStep *int `json:"drip_step,omitempty"`

	AudienceIDs   pq.Int64Array `gorm:"type:bigint[];not null" json:"audience_ids"`
	LastContactID *int64        `json:"last_contact_id,omitempty"`

	Statistics json.RawMessage `gorm:"type:jsonb" json:"statistics,omitempty"`

	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for the model
func (CampaignRun) TableName() string {
	return "campaign_runs"
}

// Finished reports whether the pass has been fully dispatched
func (r *CampaignRun) Finished() bool {
	return r.FinishedAt != nil
}

// CampaignRunFilter provides filter fields for repository queries
type CampaignRunFilter struct {
	ID         *uint `json:"id,omitempty"`
	CampaignID *uint `json:"campaign_id,omitempty"`
	Seq        *int  `json:"seq,omitempty"`
}
