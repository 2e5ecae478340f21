// Package businessflow contains the core business logic and use cases for campaign delivery workflows
package businessflow

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/repository"
	"github.com/pagepulse/pagepulse/utils"
)

// EngagementEvent is a webhook-reported recipient action on a sent message
type EngagementEvent string

const (
	EngagementDelivered    EngagementEvent = "delivered"
	EngagementOpened       EngagementEvent = "opened"
	EngagementClicked      EngagementEvent = "clicked"
	EngagementReplied      EngagementEvent = "replied"
	EngagementUnsubscribed EngagementEvent = "unsubscribed"
)

// DeliveryOutcome is one recipient's terminal dispatch result
type DeliveryOutcome struct {
	CampaignID        uint
	CampaignRunID     uint
	ContactID         int64
	Status            models.DeliveryStatus
	PlatformMessageID *string
	Error             *string
	Attempts          int
	Variant           *string
}

// RunStatistics is the per-pass summary persisted on the campaign run
type RunStatistics struct {
	Audience int64 `json:"audience"`
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
	Blocked  int64 `json:"blocked"`
}

// StatsFlow aggregates delivery outcomes and engagement events into campaign
// counters. All mutations are idempotent: replayed outcome reports and
// duplicate webhook events change nothing.
type StatsFlow interface {
	// RecordOutcome stores one recipient's terminal result and bumps the
	// campaign counters. Returns false when the outcome was already
	// recorded, in which case counters are untouched.
	RecordOutcome(ctx context.Context, outcome *DeliveryOutcome) (bool, error)
	// ApplyEngagement applies a webhook-reported event to the delivery
	// record identified by tracking ID.
	ApplyEngagement(ctx context.Context, trackingID string, event EngagementEvent, at time.Time) error
	// FinalizeRunIfComplete marks the run finished once every audience
	// member has a terminal outcome, persisting the pass summary.
	FinalizeRunIfComplete(ctx context.Context, run *models.CampaignRun) (bool, error)
	// CompleteCampaign moves a running campaign to completed.
	CompleteCampaign(ctx context.Context, campaignID uint) error
}

// StatsFlowImpl implements the statistics aggregation flow
type StatsFlowImpl struct {
	campaignRepo repository.CampaignRepository
	runRepo      repository.CampaignRunRepository
	sentRepo     repository.SentMessageRepository
	contactRepo  repository.ContactRepository

	// Serializes read-modify-write of the jsonb variant counters.
	variantMu sync.Mutex
}

// NewStatsFlow creates a new statistics flow instance
func NewStatsFlow(
	campaignRepo repository.CampaignRepository,
	runRepo repository.CampaignRunRepository,
	sentRepo repository.SentMessageRepository,
	contactRepo repository.ContactRepository,
) StatsFlow {
	return &StatsFlowImpl{
		campaignRepo: campaignRepo,
		runRepo:      runRepo,
		sentRepo:     sentRepo,
		contactRepo:  contactRepo,
	}
}

// RecordOutcome stores one recipient's terminal result
func (s *StatsFlowImpl) RecordOutcome(ctx context.Context, outcome *DeliveryOutcome) (bool, error) {
	if !outcome.Status.IsTerminal() {
		return false, NewBusinessError("OUTCOME_NOT_TERMINAL", "Delivery outcome must be terminal", ErrOutcomeAlreadySet)
	}

	ok, err := s.sentRepo.MarkOutcome(ctx, outcome.CampaignRunID, outcome.ContactID, outcome.Status,
		outcome.PlatformMessageID, outcome.Error, outcome.Attempts)
	if err != nil {
		return false, NewBusinessError("OUTCOME_RECORDING_FAILED", "Failed to record delivery outcome", err)
	}
	if !ok {
		// Already terminal. Counters were bumped by the first report.
		return false, nil
	}

	var deltas repository.CounterDeltas
	switch {
	case outcome.Status == models.DeliveryStatusSent:
		deltas.Sent = 1
	case outcome.Status.IsFailure():
		deltas.Failed = 1
	case outcome.Status == models.DeliveryStatusBlocked:
		deltas.Blocked = 1
	}

	if err := s.campaignRepo.IncrementCounters(ctx, outcome.CampaignID, deltas); err != nil {
		return true, NewBusinessError("COUNTER_UPDATE_FAILED", "Failed to update campaign counters", err)
	}

	if outcome.Variant != nil && outcome.Status == models.DeliveryStatusSent {
		if err := s.bumpVariant(ctx, outcome.CampaignID, *outcome.Variant, func(v *models.ABVariant) {
			v.SentCount++
		}); err != nil {
			return true, err
		}
	}

	return true, nil
}

// ApplyEngagement applies a webhook-reported event to a delivery record
func (s *StatsFlowImpl) ApplyEngagement(ctx context.Context, trackingID string, event EngagementEvent, at time.Time) error {
	msg, err := s.sentRepo.ByTrackingID(ctx, trackingID)
	if err != nil {
		return NewBusinessError("SENT_MESSAGE_LOOKUP_FAILED", "Failed to lookup sent message", err)
	}
	if msg == nil {
		return NewBusinessError("SENT_MESSAGE_NOT_FOUND", "Sent message not found", ErrSentMessageNotFound)
	}

	var deltas repository.CounterDeltas
	var column string
	var alreadySet bool

	switch event {
	case EngagementDelivered:
		column, alreadySet = "delivered_at", msg.DeliveredAt != nil
		deltas.Delivered = 1
	case EngagementOpened:
		column, alreadySet = "opened_at", msg.OpenedAt != nil
		deltas.Opened = 1
	case EngagementClicked:
		column, alreadySet = "clicked_at", msg.ClickedAt != nil
		deltas.Clicked = 1
	case EngagementReplied:
		column, alreadySet = "replied_at", msg.RepliedAt != nil
		deltas.Replied = 1
	case EngagementUnsubscribed:
		return s.applyUnsubscribe(ctx, msg)
	default:
		return NewBusinessErrorf("UNKNOWN_ENGAGEMENT_EVENT", "Unknown engagement event: %s", nil, event)
	}

	if alreadySet {
		return nil
	}

	if err := s.sentRepo.SetEngagement(ctx, trackingID, column, at); err != nil {
		return NewBusinessError("ENGAGEMENT_UPDATE_FAILED", "Failed to stamp engagement", err)
	}
	if err := s.campaignRepo.IncrementCounters(ctx, msg.CampaignID, deltas); err != nil {
		return NewBusinessError("COUNTER_UPDATE_FAILED", "Failed to update campaign counters", err)
	}

	if msg.Variant != nil {
		var bump func(*models.ABVariant)
		switch event {
		case EngagementDelivered:
			bump = func(v *models.ABVariant) { v.DeliveredCount++ }
		case EngagementClicked:
			bump = func(v *models.ABVariant) { v.ClickedCount++ }
		case EngagementReplied:
			bump = func(v *models.ABVariant) { v.RepliedCount++ }
		}
		if bump != nil {
			if err := s.bumpVariant(ctx, msg.CampaignID, *msg.Variant, bump); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *StatsFlowImpl) applyUnsubscribe(ctx context.Context, msg *models.SentMessage) error {
	contact, err := s.contactRepo.ByContactID(ctx, msg.ContactID)
	if err != nil {
		return NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to lookup contact", err)
	}
	if contact == nil {
		return NewBusinessError("CONTACT_NOT_FOUND", "Contact not found", ErrContactNotFound)
	}
	if !contact.IsSubscribed() {
		return nil
	}

	contact.Subscribed = utils.ToPtr(false)
	if err := s.contactRepo.Update(ctx, contact); err != nil {
		return NewBusinessError("CONTACT_UPDATE_FAILED", "Failed to unsubscribe contact", err)
	}

	if err := s.campaignRepo.IncrementCounters(ctx, msg.CampaignID, repository.CounterDeltas{Unsubscribed: 1}); err != nil {
		return NewBusinessError("COUNTER_UPDATE_FAILED", "Failed to update campaign counters", err)
	}

	return nil
}

// FinalizeRunIfComplete marks the run finished once every audience member has
// a terminal outcome
func (s *StatsFlowImpl) FinalizeRunIfComplete(ctx context.Context, run *models.CampaignRun) (bool, error) {
	terminal, err := s.sentRepo.CountTerminalByRun(ctx, run.ID)
	if err != nil {
		return false, NewBusinessError("RUN_PROGRESS_LOOKUP_FAILED", "Failed to count run outcomes", err)
	}
	if terminal < int64(len(run.AudienceIDs)) {
		return false, nil
	}

	stats, err := s.collectRunStatistics(ctx, run, terminal)
	if err != nil {
		return false, err
	}
	if err := s.runRepo.UpdateStatistics(ctx, run.ID, stats); err != nil {
		return false, NewBusinessError("RUN_STATISTICS_FAILED", "Failed to persist run statistics", err)
	}
	if err := s.runRepo.MarkFinished(ctx, run.ID, utils.UTCNow()); err != nil {
		return false, NewBusinessError("RUN_FINALIZE_FAILED", "Failed to finalize run", err)
	}

	return true, nil
}

// CompleteCampaign moves a running campaign to completed
func (s *StatsFlowImpl) CompleteCampaign(ctx context.Context, campaignID uint) error {
	ok, err := s.campaignRepo.TransitionStatus(ctx, campaignID,
		models.CampaignStatusRunning, models.CampaignStatusCompleted, map[string]any{
			"completed_at": utils.UTCNow(),
		})
	if err != nil {
		return NewBusinessError("CAMPAIGN_COMPLETION_FAILED", "Failed to complete campaign", err)
	}
	if !ok {
		return NewBusinessError("INVALID_STATUS_TRANSITION", "Campaign moved concurrently", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *StatsFlowImpl) collectRunStatistics(ctx context.Context, run *models.CampaignRun, terminal int64) (json.RawMessage, error) {
	stats := RunStatistics{Audience: int64(len(run.AudienceIDs))}

	counts := map[models.DeliveryStatus]*int64{
		models.DeliveryStatusSent:    &stats.Sent,
		models.DeliveryStatusBlocked: &stats.Blocked,
	}
	for status, dst := range counts {
		st := status
		n, err := s.sentRepo.Count(ctx, models.SentMessageFilter{CampaignRunID: &run.ID, Status: &st})
		if err != nil {
			return nil, NewBusinessError("RUN_STATISTICS_FAILED", "Failed to collect run statistics", err)
		}
		*dst = n
	}
	stats.Failed = terminal - stats.Sent - stats.Blocked

	return json.Marshal(stats)
}

// bumpVariant applies a counter mutation to one named variant under the
// variant mutex
func (s *StatsFlowImpl) bumpVariant(ctx context.Context, campaignID uint, name string, mutate func(*models.ABVariant)) error {
	s.variantMu.Lock()
	defer s.variantMu.Unlock()

	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}

	variant := campaign.VariantByName(name)
	if variant == nil {
		return nil
	}
	mutate(variant)

	if err := s.campaignRepo.UpdateVariants(ctx, campaignID, campaign.Variants); err != nil {
		return NewBusinessError("VARIANT_UPDATE_FAILED", "Failed to update variant counters", err)
	}

	return nil
}
