// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pagepulse/pagepulse/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Update(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// CounterDeltas carries atomic increments for a campaign's outcome counters.
// All deltas are non-negative; counters never decrease.
type CounterDeltas struct {
	TotalRecipients int64
	Sent            int64
	Delivered       int64
	Failed          int64
	Blocked         int64
	Opened          int64
	Clicked         int64
	Replied         int64
	Unsubscribed    int64
}

// IsZero reports whether no counter would change
func (d CounterDeltas) IsZero() bool {
	return d == CounterDeltas{}
}

// PageRepository defines operations for messaging pages
type PageRepository interface {
	Repository[models.Page, models.PageFilter]
	ByExternalID(ctx context.Context, externalID string) (*models.Page, error)
	ListActiveByWorkspace(ctx context.Context, workspaceID uint) ([]*models.Page, error)
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	ByContactID(ctx context.Context, id int64) (*models.Contact, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*models.Contact, error)
	ListSubscribedByWorkspace(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.Contact, error)
	ListSubscribedByPages(ctx context.Context, pageIDs []uint, limit, offset int) ([]*models.Contact, error)
}

// SegmentRepository defines operations for segments
type SegmentRepository interface {
	Repository[models.Segment, models.SegmentFilter]
	// UpdateMembership replaces the cached membership set, count and
	// calculation timestamp in one write.
	UpdateMembership(ctx context.Context, id uint, memberIDs []int64, count int64, calculatedAt time.Time) error
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	// ListDue returns scheduled campaigns whose activation time has passed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
	ListByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error)
	// TransitionStatus performs a guarded state transition: the update only
	// applies while the campaign is still in the expected current status.
	// Extra columns (timestamps, recipient totals) ride along in the same
	// write. Returns false when the campaign moved concurrently.
	TransitionStatus(ctx context.Context, id uint, from, to models.CampaignStatus, extra map[string]any) (bool, error)
	// IncrementCounters atomically adds the deltas to the campaign's
	// outcome counters.
	IncrementCounters(ctx context.Context, id uint, deltas CounterDeltas) error
	UpdateVariants(ctx context.Context, id uint, variants models.ABVariants) error
}

// OTNTokenRepository defines operations for one-time-notification tokens
type OTNTokenRepository interface {
	Repository[models.OTNToken, models.OTNTokenFilter]
	// UsableByContact returns an unused, unexpired token for the
	// contact/page pair, or nil when none exists.
	UsableByContact(ctx context.Context, contactID int64, pageID uint, now time.Time) (*models.OTNToken, error)
	// Consume flips is_used from false to true with a compare-and-set.
	// Returns false when another writer already consumed the token.
	Consume(ctx context.Context, id uint, at time.Time) (bool, error)
}

// RecurringSubscriptionRepository defines operations for recurring notification subscriptions
type RecurringSubscriptionRepository interface {
	Repository[models.RecurringSubscription, models.RecurringSubscriptionFilter]
	// ActiveByContact returns an active subscription for the contact/page
	// pair, optionally restricted to a topic.
	ActiveByContact(ctx context.Context, contactID int64, pageID uint, topic *string) (*models.RecurringSubscription, error)
	// AdvanceLastSent moves last_sent_at forward with a compare-and-set
	// against the previously observed value and bumps the send counter.
	// Returns false when another writer advanced the subscription first.
	AdvanceLastSent(ctx context.Context, id uint, prev *time.Time, at time.Time) (bool, error)
	// Deactivate handles the STOP_NOTIFICATIONS opt-out signal.
	Deactivate(ctx context.Context, token string) error
}

// CampaignRunRepository defines operations for campaign dispatch passes
type CampaignRunRepository interface {
	Repository[models.CampaignRun, models.CampaignRunFilter]
	LatestByCampaign(ctx context.Context, campaignID uint) (*models.CampaignRun, error)
	CountByCampaign(ctx context.Context, campaignID uint) (int64, error)
	UpdateCursor(ctx context.Context, id uint, lastContactID int64) error
	UpdateStatistics(ctx context.Context, id uint, stats json.RawMessage) error
	MarkFinished(ctx context.Context, id uint, at time.Time) error
}

// SentMessageRepository defines operations for per-recipient delivery records
type SentMessageRepository interface {
	Repository[models.SentMessage, models.SentMessageFilter]
	ByRunAndContact(ctx context.Context, runID uint, contactID int64) (*models.SentMessage, error)
	ByTrackingID(ctx context.Context, trackingID string) (*models.SentMessage, error)
	// MarkOutcome records the terminal outcome for a (run, contact) pair
	// with a compare-and-set from the pending status. Returns false when
	// the pair already reached a terminal state, which makes outcome
	// reporting idempotent.
	MarkOutcome(ctx context.Context, runID uint, contactID int64, status models.DeliveryStatus, platformMessageID, sendErr *string, attempts int) (bool, error)
	// SetEngagement stamps a delivery/open/click/reply timestamp column
	// for the record identified by tracking ID.
	SetEngagement(ctx context.Context, trackingID string, column string, at time.Time) error
	// ListEngagedContacts returns the contact IDs of a run whose records
	// satisfy the drip condition.
	ListEngagedContacts(ctx context.Context, runID uint, condition models.DripCondition) ([]int64, error)
	CountTerminalByRun(ctx context.Context, runID uint) (int64, error)
}
