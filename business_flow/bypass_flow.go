// Package businessflow contains the core business logic and use cases for campaign delivery workflows
package businessflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/repository"
	"github.com/pagepulse/pagepulse/utils"
)

// Resolution is the outcome of resolving a send method for one recipient: the
// chosen method plus the compliance artifact backing it, when one is needed.
// A resolution holding an artifact keeps an in-process reservation on it until
// ConsumeArtifact or Release is called.
type Resolution struct {
	Method       models.SendMethod
	MessageTag   *models.MessageTag
	OTNToken     *models.OTNToken
	Subscription *models.RecurringSubscription

	// LastSentAt observed at resolution time, used as the compare-and-set
	// guard when the subscription is consumed.
	subscriptionPrev *time.Time
}

// RequiresArtifact reports whether the resolution holds a consumable artifact
func (r *Resolution) RequiresArtifact() bool {
	return r.OTNToken != nil || r.Subscription != nil
}

// BypassFlow resolves the legal send method for a contact under the 24-hour
// contact-window policy and manages consumption of single-use and
// frequency-capped artifacts.
type BypassFlow interface {
	// Resolve picks the send method for one recipient. Method priority is
	// within_window, then otn_token, then recurring_notification, then
	// message_tag, then sponsored_message; blocked when nothing applies.
	// A campaign's preferred method is tried first when set.
	Resolve(ctx context.Context, campaign *models.Campaign, contact *models.Contact, now time.Time) (*Resolution, error)
	// ConsumeArtifact permanently consumes the resolution's artifact after
	// the transport accepted the send. Within-window, tag and sponsored
	// sends consume nothing.
	ConsumeArtifact(ctx context.Context, res *Resolution, at time.Time) error
	// Release drops the reservation without consuming, making the artifact
	// available to later resolutions. Called when the send fails before
	// transport acceptance.
	Release(res *Resolution)
}

// BypassFlowImpl implements the window and bypass resolution flow
type BypassFlowImpl struct {
	otnRepo repository.OTNTokenRepository
	subRepo repository.RecurringSubscriptionRepository

	// In-process reservation registry. Guarantees a single winner when
	// concurrent resolutions race for the same artifact; the database
	// compare-and-set backs it up across processes.
	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewBypassFlow creates a new bypass resolution flow instance
func NewBypassFlow(
	otnRepo repository.OTNTokenRepository,
	subRepo repository.RecurringSubscriptionRepository,
) BypassFlow {
	return &BypassFlowImpl{
		otnRepo:  otnRepo,
		subRepo:  subRepo,
		reserved: make(map[string]struct{}),
	}
}

func otnReservationKey(id uint) string {
	return fmt.Sprintf("otn:%d", id)
}

func subReservationKey(id uint) string {
	return fmt.Sprintf("sub:%d", id)
}

// Resolve picks the send method for one recipient
func (f *BypassFlowImpl) Resolve(ctx context.Context, campaign *models.Campaign, contact *models.Contact, now time.Time) (*Resolution, error) {
	if !contact.IsSubscribed() {
		return &Resolution{Method: models.SendMethodBlocked}, nil
	}

	order := []models.SendMethod{
		models.SendMethodWithinWindow,
		models.SendMethodOTNToken,
		models.SendMethodRecurringNotification,
		models.SendMethodMessageTag,
		models.SendMethodSponsoredMessage,
	}
	if campaign.PreferredMethod != nil && campaign.PreferredMethod.Valid() {
		order = append([]models.SendMethod{*campaign.PreferredMethod}, order...)
	}

	tried := make(map[models.SendMethod]bool, len(order))
	for _, method := range order {
		if tried[method] {
			continue
		}
		tried[method] = true

		res, err := f.tryMethod(ctx, method, campaign, contact, now)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	return &Resolution{Method: models.SendMethodBlocked}, nil
}

// tryMethod attempts a single method, returning nil when it does not apply
func (f *BypassFlowImpl) tryMethod(ctx context.Context, method models.SendMethod, campaign *models.Campaign, contact *models.Contact, now time.Time) (*Resolution, error) {
	switch method {
	case models.SendMethodWithinWindow:
		// Free-form send inside the 24-hour window. Consumes nothing, so
		// tokens and subscriptions stay available for later campaigns.
		if contact.InMessagingWindow(now) {
			return &Resolution{Method: models.SendMethodWithinWindow}, nil
		}
		return nil, nil

	case models.SendMethodOTNToken:
		return f.tryOTNToken(ctx, contact, campaign, now)

	case models.SendMethodRecurringNotification:
		return f.tryRecurringSubscription(ctx, contact, campaign, now)

	case models.SendMethodMessageTag:
		// Tags are never auto-selected; the campaign must declare one.
		if campaign.MessageTag == nil || !campaign.MessageTag.Valid() {
			return nil, nil
		}
		return &Resolution{
			Method:     models.SendMethodMessageTag,
			MessageTag: campaign.MessageTag,
		}, nil

	case models.SendMethodSponsoredMessage:
		if !utils.IsTrue(campaign.Sponsored) {
			return nil, nil
		}
		return &Resolution{Method: models.SendMethodSponsoredMessage}, nil

	default:
		return nil, nil
	}
}

func (f *BypassFlowImpl) tryOTNToken(ctx context.Context, contact *models.Contact, campaign *models.Campaign, now time.Time) (*Resolution, error) {
	tokens, err := f.otnRepo.ByFilter(ctx, models.OTNTokenFilter{
		ContactID: &contact.ID,
		PageID:    &contact.PageID,
		IsUsed:    utils.ToPtr(false),
	}, "created_at ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("OTN_TOKEN_LOOKUP_FAILED", "Failed to lookup OTN tokens", err)
	}

	for _, token := range tokens {
		if !token.IsUsable(now) {
			continue
		}
		if campaign.Topic != nil && token.Topic != nil && *token.Topic != *campaign.Topic {
			continue
		}
		if !f.reserve(otnReservationKey(token.ID)) {
			continue
		}
		return &Resolution{
			Method:   models.SendMethodOTNToken,
			OTNToken: token,
		}, nil
	}

	return nil, nil
}

func (f *BypassFlowImpl) tryRecurringSubscription(ctx context.Context, contact *models.Contact, campaign *models.Campaign, now time.Time) (*Resolution, error) {
	sub, err := f.subRepo.ActiveByContact(ctx, contact.ID, contact.PageID, campaign.Topic)
	if err != nil {
		return nil, NewBusinessError("SUBSCRIPTION_LOOKUP_FAILED", "Failed to lookup recurring subscription", err)
	}
	if sub == nil || !sub.IsEligible(now) {
		return nil, nil
	}
	if !f.reserve(subReservationKey(sub.ID)) {
		return nil, nil
	}

	return &Resolution{
		Method:           models.SendMethodRecurringNotification,
		Subscription:     sub,
		subscriptionPrev: sub.LastSentAt,
	}, nil
}

// ConsumeArtifact permanently consumes the resolution's artifact after the
// transport accepted the send
func (f *BypassFlowImpl) ConsumeArtifact(ctx context.Context, res *Resolution, at time.Time) error {
	switch {
	case res.OTNToken != nil:
		defer f.unreserve(otnReservationKey(res.OTNToken.ID))

		ok, err := f.otnRepo.Consume(ctx, res.OTNToken.ID, at)
		if err != nil {
			return NewBusinessError("OTN_TOKEN_CONSUME_FAILED", "Failed to consume OTN token", err)
		}
		if !ok {
			return NewBusinessError("OTN_TOKEN_ALREADY_CONSUMED", "OTN token already consumed", ErrOTNTokenConsumed)
		}
		return nil

	case res.Subscription != nil:
		defer f.unreserve(subReservationKey(res.Subscription.ID))

		ok, err := f.subRepo.AdvanceLastSent(ctx, res.Subscription.ID, res.subscriptionPrev, at)
		if err != nil {
			return NewBusinessError("SUBSCRIPTION_ADVANCE_FAILED", "Failed to advance subscription", err)
		}
		if !ok {
			return NewBusinessError("SUBSCRIPTION_NOT_ELIGIBLE", "Subscription advanced by another writer", ErrSubscriptionNotEligible)
		}
		return nil
	}

	return nil
}

// Release drops the reservation without consuming
func (f *BypassFlowImpl) Release(res *Resolution) {
	if res == nil {
		return
	}
	if res.OTNToken != nil {
		f.unreserve(otnReservationKey(res.OTNToken.ID))
	}
	if res.Subscription != nil {
		f.unreserve(subReservationKey(res.Subscription.ID))
	}
}

func (f *BypassFlowImpl) reserve(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.reserved[key]; taken {
		return false
	}
	f.reserved[key] = struct{}{}
	return true
}

func (f *BypassFlowImpl) unreserve(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reserved, key)
}
