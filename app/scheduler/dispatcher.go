// Package scheduler
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pagepulse/pagepulse/app/services"
	businessflow "github.com/pagepulse/pagepulse/business_flow"
	"github.com/pagepulse/pagepulse/config"
	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/repository"
	"github.com/pagepulse/pagepulse/utils"
)

var (
	dispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagepulse_dispatch_outcomes_total",
		Help: "Terminal delivery outcomes by status and send method",
	}, []string{"status", "method"})

	dispatchDeferrals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagepulse_dispatch_deferrals_total",
		Help: "Sends deferred to a later hourly window by the page rate limiter",
	})

	dispatchBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagepulse_dispatch_batches_total",
		Help: "Dispatched batches",
	})
)

// stalePendingAge is how long a delivery record may sit in pending before a
// resumed run treats it as abandoned by a crashed worker and fails it
// terminally.
const stalePendingAge = 10 * time.Minute

// capWaitSlice bounds how long a fully capped-out run sleeps before
// re-checking campaign status, so pause and cancel stay responsive while
// waiting for the next hourly window.
var capWaitSlice = time.Minute

// Dispatcher drains one campaign run: it walks the audience snapshot in
// batches, resolves the send method per recipient, pushes messages through
// the transport with retry, and reports terminal outcomes to the stats flow.
type Dispatcher struct {
	campaignRepo repository.CampaignRepository
	contactRepo  repository.ContactRepository
	pageRepo     repository.PageRepository
	sentRepo     repository.SentMessageRepository
	runRepo      repository.CampaignRunRepository

	bypassFlow businessflow.BypassFlow
	statsFlow  businessflow.StatsFlow

	tokens    services.PageTokenProvider
	messenger services.MessengerClient
	limiter   *PageRateLimiter

	cfg    config.DispatcherConfig
	logger *log.Logger
}

// NewDispatcher creates a new dispatcher instance
func NewDispatcher(
	campaignRepo repository.CampaignRepository,
	contactRepo repository.ContactRepository,
	pageRepo repository.PageRepository,
	sentRepo repository.SentMessageRepository,
	runRepo repository.CampaignRunRepository,
	bypassFlow businessflow.BypassFlow,
	statsFlow businessflow.StatsFlow,
	tokens services.PageTokenProvider,
	messenger services.MessengerClient,
	limiter *PageRateLimiter,
	cfg config.DispatcherConfig,
	logger *log.Logger,
) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = utils.DefaultBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = utils.DefaultBatchDelay
	}
	if cfg.MaxSendAttempts <= 0 {
		cfg.MaxSendAttempts = utils.DefaultMaxSendAttempts
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Dispatcher{
		campaignRepo: campaignRepo,
		contactRepo:  contactRepo,
		pageRepo:     pageRepo,
		sentRepo:     sentRepo,
		runRepo:      runRepo,
		bypassFlow:   bypassFlow,
		statsFlow:    statsFlow,
		tokens:       tokens,
		messenger:    messenger,
		limiter:      limiter,
		cfg:          cfg,
		logger:       logger,
	}
}

// DispatchRun drains the run's audience. Returns true when every recipient
// reached a terminal outcome and the run was finalized; false when dispatch
// was suspended by a pause, cancellation or context shutdown.
func (d *Dispatcher) DispatchRun(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun) (bool, error) {
	remaining, err := d.remainingForRun(ctx, campaign, run)
	if err != nil {
		return false, err
	}
	d.logger.Printf("dispatcher: run id=%d campaign id=%d remaining=%d", run.ID, campaign.ID, len(remaining))

	pageCache := make(map[uint]*models.Page)

	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		// Pause and cancel are observed at batch boundaries: the status is
		// re-read from storage before each batch, and an in-flight batch
		// always completes.
		fresh, err := d.campaignRepo.ByID(ctx, campaign.ID)
		if err != nil {
			return false, fmt.Errorf("reload campaign: %w", err)
		}
		if fresh == nil {
			d.logger.Printf("dispatcher: run id=%d suspended, campaign id=%d no longer exists", run.ID, campaign.ID)
			return false, nil
		}
		if fresh.Status != models.CampaignStatusRunning {
			d.logger.Printf("dispatcher: run id=%d suspended, campaign status=%s", run.ID, fresh.Status)
			return false, nil
		}
		campaign = fresh

		end := min(d.cfg.BatchSize, len(remaining))
		batchIDs := remaining[:end]
		remaining = remaining[end:]

		contacts, err := d.contactRepo.ListByIDs(ctx, batchIDs)
		if err != nil {
			return false, fmt.Errorf("load batch contacts: %w", err)
		}
		byID := make(map[int64]*models.Contact, len(contacts))
		for _, c := range contacts {
			byID[c.ID] = c
		}

		var work []*models.Contact
		var deferred []int64
		for _, id := range batchIDs {
			contact, ok := byID[id]
			if !ok {
				// Contact deleted since the snapshot was taken.
				d.recordSkipped(ctx, campaign, run, id, 0, "contact no longer exists")
				continue
			}

			page, err := d.pageFor(ctx, pageCache, contact.PageID)
			if err != nil || page == nil || !page.Active() {
				d.recordSkipped(ctx, campaign, run, id, contact.PageID, "page unavailable or inactive")
				continue
			}

			if !d.limiter.Allow(page.ID, page.HourlyCap) {
				// Over the page's hourly ceiling. Requeue at the tail; the
				// recipient is never dropped.
				deferred = append(deferred, id)
				dispatchDeferrals.Inc()
				continue
			}
			work = append(work, contact)
		}

		if len(work) > 0 {
			d.dispatchBatch(ctx, campaign, run, work, pageCache)
			dispatchBatches.Inc()

			if len(batchIDs) > 0 {
				if err := d.runRepo.UpdateCursor(ctx, run.ID, batchIDs[len(batchIDs)-1]); err != nil {
					d.logger.Printf("dispatcher: cursor update failed for run id=%d: %v", run.ID, err)
				}
			}
		}

		remaining = append(remaining, deferred...)

		if len(work) == 0 && len(deferred) > 0 {
			// Every page in the batch is capped out. Wait for the next
			// hourly window instead of spinning, waking in slices so a
			// pause or cancel issued meanwhile is still observed.
			wait := time.Until(d.limiter.NextWindow())
			if wait > capWaitSlice {
				wait = capWaitSlice
			}
			if err := sleepFor(ctx, wait); err != nil {
				return false, err
			}
			continue
		}

		if err := sleepFor(ctx, d.cfg.BatchDelay); err != nil {
			return false, err
		}
	}

	finished, err := d.statsFlow.FinalizeRunIfComplete(ctx, run)
	if err != nil {
		return false, err
	}
	return finished, nil
}

// remainingForRun diffs the audience snapshot against already-created
// delivery records so a resumed run never re-dispatches a recipient. Records
// still pending long after creation were abandoned by a crashed worker; they
// are failed terminally here so the run can converge instead of staying
// short of its audience forever.
func (d *Dispatcher) remainingForRun(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun) ([]int64, error) {
	handled := make(map[int64]bool)
	staleBefore := utils.UTCNow().Add(-stalePendingAge)
	offset := 0
	for {
		rows, err := d.sentRepo.ByFilter(ctx, models.SentMessageFilter{CampaignRunID: &run.ID}, "id ASC", utils.DefaultBatchSize*10, offset)
		if err != nil {
			return nil, fmt.Errorf("load dispatched records: %w", err)
		}
		for _, row := range rows {
			if row.Status == models.DeliveryStatusPending && row.CreatedAt.Before(staleBefore) {
				reason := "dispatch interrupted before an outcome was recorded"
				d.reportOutcome(ctx, campaign, run, row.ContactID, &businessflow.DeliveryOutcome{
					CampaignID:    campaign.ID,
					CampaignRunID: run.ID,
					ContactID:     row.ContactID,
					Status:        models.DeliveryStatusFailedExhausted,
					Error:         &reason,
					Attempts:      row.Attempts,
					Variant:       row.Variant,
				}, string(row.Method))
			}
			handled[row.ContactID] = true
		}
		if len(rows) < utils.DefaultBatchSize*10 {
			break
		}
		offset += len(rows)
	}

	var remaining []int64
	for _, id := range run.AudienceIDs {
		if !handled[id] {
			remaining = append(remaining, id)
		}
	}
	return remaining, nil
}

// dispatchBatch sends one batch concurrently and waits for it to finish
func (d *Dispatcher) dispatchBatch(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun, contacts []*models.Contact, pageCache map[uint]*models.Page) {
	var wg sync.WaitGroup
	for _, contact := range contacts {
		wg.Add(1)
		go func(c *models.Contact) {
			defer wg.Done()
			d.dispatchContact(ctx, campaign, run, c, pageCache[c.PageID])
		}(contact)
	}
	wg.Wait()
}

// dispatchContact handles one recipient end to end: method resolution,
// pending record, transport send with retry, artifact consumption and
// outcome reporting.
func (d *Dispatcher) dispatchContact(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun, contact *models.Contact, page *models.Page) {
	now := utils.UTCNow()

	res, err := d.bypassFlow.Resolve(ctx, campaign, contact, now)
	if err != nil {
		d.logger.Printf("dispatcher: resolve failed for contact id=%d: %v", contact.ID, err)
		d.recordSkipped(ctx, campaign, run, contact.ID, contact.PageID, fmt.Sprintf("method resolution failed: %v", err))
		return
	}

	content, variantName := contentFor(campaign, run, contact)

	row := &models.SentMessage{
		CampaignID:    campaign.ID,
		CampaignRunID: run.ID,
		ContactID:     contact.ID,
		PageID:        contact.PageID,
		TrackingID:    uuid.New().String(),
		Method:        res.Method,
		MessageTag:    res.MessageTag,
		Variant:       variantName,
		Status:        models.DeliveryStatusPending,
	}
	if res.OTNToken != nil {
		row.OTNTokenID = &res.OTNToken.ID
	}
	if res.Subscription != nil {
		row.SubscriptionID = &res.Subscription.ID
	}

	if err := d.sentRepo.Save(ctx, row); err != nil {
		// Unique (run, contact) collision: another worker already owns this
		// recipient.
		d.bypassFlow.Release(res)
		d.logger.Printf("dispatcher: delivery record exists for run id=%d contact id=%d", run.ID, contact.ID)
		return
	}

	if res.Method == models.SendMethodBlocked {
		d.reportOutcome(ctx, campaign, run, contact.ID, &businessflow.DeliveryOutcome{
			CampaignID:    campaign.ID,
			CampaignRunID: run.ID,
			ContactID:     contact.ID,
			Status:        models.DeliveryStatusBlocked,
		}, string(res.Method))
		return
	}

	accessToken, err := d.tokens.AccessToken(page)
	if err != nil {
		d.bypassFlow.Release(res)
		msg := fmt.Sprintf("page token unavailable: %v", err)
		d.reportOutcome(ctx, campaign, run, contact.ID, &businessflow.DeliveryOutcome{
			CampaignID:    campaign.ID,
			CampaignRunID: run.ID,
			ContactID:     contact.ID,
			Status:        models.DeliveryStatusFailedPermanent,
			Error:         &msg,
		}, string(res.Method))
		return
	}

	sendReq := &services.SendRequest{
		PSID:       contact.PSID,
		Content:    content,
		TrackingID: row.TrackingID,
		Method:     res.Method,
		MessageTag: res.MessageTag,
	}
	if res.OTNToken != nil {
		sendReq.OTNToken = &res.OTNToken.Token
	}
	if res.Subscription != nil {
		sendReq.SubscriptionToken = &res.Subscription.Token
	}

	result, attempts, sendErr := d.sendWithRetry(ctx, accessToken, sendReq)
	if sendErr != nil {
		// The artifact was never spent on an accepted send; free it for the
		// next campaign.
		d.bypassFlow.Release(res)

		status := models.DeliveryStatusFailedPermanent
		var se *services.SendError
		if errors.As(sendErr, &se) && se.Retryable {
			status = models.DeliveryStatusFailedExhausted
		}
		msg := sendErr.Error()
		d.reportOutcome(ctx, campaign, run, contact.ID, &businessflow.DeliveryOutcome{
			CampaignID:    campaign.ID,
			CampaignRunID: run.ID,
			ContactID:     contact.ID,
			Status:        status,
			Error:         &msg,
			Attempts:      attempts,
			Variant:       variantName,
		}, string(res.Method))
		return
	}

	// Consume only after the transport accepted. A failed consumption is
	// logged but does not fail the send; the message is already out.
	if err := d.bypassFlow.ConsumeArtifact(ctx, res, utils.UTCNow()); err != nil {
		d.logger.Printf("dispatcher: artifact consumption failed for contact id=%d: %v", contact.ID, err)
	}

	d.reportOutcome(ctx, campaign, run, contact.ID, &businessflow.DeliveryOutcome{
		CampaignID:        campaign.ID,
		CampaignRunID:     run.ID,
		ContactID:         contact.ID,
		Status:            models.DeliveryStatusSent,
		PlatformMessageID: &result.PlatformMessageID,
		Attempts:          attempts,
		Variant:           variantName,
	}, string(res.Method))
}

// sendWithRetry pushes one message with exponential backoff on retryable
// transport errors
func (d *Dispatcher) sendWithRetry(ctx context.Context, accessToken string, req *services.SendRequest) (*services.SendResult, int, error) {
	var result *services.SendResult
	attempts := 0

	operation := func() error {
		attempts++
		r, err := d.messenger.SendMessage(ctx, accessToken, req)
		if err != nil {
			var se *services.SendError
			if errors.As(err, &se) && !se.Retryable {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.cfg.MaxSendAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, attempts, err
	}
	return result, attempts, nil
}

// recordSkipped writes a pending record and immediately fails it so the run
// can still reach completion when a recipient cannot be dispatched at all
func (d *Dispatcher) recordSkipped(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun, contactID int64, pageID uint, reason string) {
	row := &models.SentMessage{
		CampaignID:    campaign.ID,
		CampaignRunID: run.ID,
		ContactID:     contactID,
		PageID:        pageID,
		TrackingID:    uuid.New().String(),
		Method:        models.SendMethodBlocked,
		Status:        models.DeliveryStatusPending,
	}
	if err := d.sentRepo.Save(ctx, row); err != nil {
		return
	}
	d.reportOutcome(ctx, campaign, run, contactID, &businessflow.DeliveryOutcome{
		CampaignID:    campaign.ID,
		CampaignRunID: run.ID,
		ContactID:     contactID,
		Status:        models.DeliveryStatusFailedPermanent,
		Error:         &reason,
	}, string(models.SendMethodBlocked))
}

func (d *Dispatcher) reportOutcome(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun, contactID int64, outcome *businessflow.DeliveryOutcome, method string) {
	recorded, err := d.statsFlow.RecordOutcome(ctx, outcome)
	if err != nil {
		d.logger.Printf("dispatcher: outcome recording failed for run id=%d contact id=%d: %v", run.ID, contactID, err)
		return
	}
	if recorded {
		dispatchOutcomes.WithLabelValues(string(outcome.Status), method).Inc()
	}
}

func (d *Dispatcher) pageFor(ctx context.Context, cache map[uint]*models.Page, pageID uint) (*models.Page, error) {
	if page, ok := cache[pageID]; ok {
		return page, nil
	}
	page, err := d.pageRepo.ByID(ctx, pageID)
	if err != nil {
		return nil, err
	}
	cache[pageID] = page
	return page, nil
}

// contentFor picks the message body for one recipient: the drip step content
// for drip passes, the assigned A/B variant otherwise, falling back to the
// campaign body.
func contentFor(campaign *models.Campaign, run *models.CampaignRun, contact *models.Contact) (string, *string) {
	if run.DripStep != nil && *run.DripStep < len(campaign.Schedule.Steps) {
		return campaign.Schedule.Steps[*run.DripStep].Content, nil
	}
	if variant := campaign.VariantForContact(contact.ID); variant != nil {
		return variant.Content, &variant.Name
	}
	return campaign.Content, nil
}

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
