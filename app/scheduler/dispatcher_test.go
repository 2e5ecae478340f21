package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepulse/pagepulse/app/services"
	businessflow "github.com/pagepulse/pagepulse/business_flow"
	"github.com/pagepulse/pagepulse/config"
	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/utils"
)

type dispatcherEnv struct {
	campaignRepo *fakeCampaignRepo
	contactRepo  *fakeContactRepo
	pageRepo     *fakePageRepo
	sentRepo     *fakeSentRepo
	runRepo      *fakeRunRepo
	bypass       *stubBypassFlow
	messenger    *services.MockMessengerClient
	limiter      *PageRateLimiter

	page     *models.Page
	campaign *models.Campaign
	run      *models.CampaignRun

	dispatcher *Dispatcher
}

func newDispatcherEnv(contactIDs []int64) *dispatcherEnv {
	env := &dispatcherEnv{
		campaignRepo: newFakeCampaignRepo(),
		contactRepo:  newFakeContactRepo(),
		pageRepo:     newFakePageRepo(),
		sentRepo:     &fakeSentRepo{},
		runRepo:      newFakeRunRepo(),
		bypass:       newStubBypassFlow(),
		messenger:    services.NewMockMessengerClient(),
		limiter:      NewPageRateLimiter(1000),
	}

	env.page = &models.Page{
		ID:          1,
		WorkspaceID: 1,
		ExternalID:  "page-1",
		Name:        "Test Page",
		AccessToken: "token-1",
		IsActive:    utils.ToPtr(true),
	}
	env.pageRepo.add(env.page)

	for _, id := range contactIDs {
		env.contactRepo.add(&models.Contact{
			ID:         id,
			PageID:     env.page.ID,
			PSID:       psidFor(id),
			Subscribed: utils.ToPtr(true),
		})
	}

	env.campaign = &models.Campaign{
		WorkspaceID: 1,
		Status:      models.CampaignStatusRunning,
		Content:     "hello there",
	}
	env.campaignRepo.add(env.campaign)

	env.run = &models.CampaignRun{
		CampaignID:  env.campaign.ID,
		AudienceIDs: pq.Int64Array(contactIDs),
	}
	env.runRepo.add(env.run)

	statsFlow := businessflow.NewStatsFlow(env.campaignRepo, env.runRepo, env.sentRepo, env.contactRepo)

	env.dispatcher = NewDispatcher(
		env.campaignRepo,
		env.contactRepo,
		env.pageRepo,
		env.sentRepo,
		env.runRepo,
		env.bypass,
		statsFlow,
		services.PlainTokenProvider{},
		env.messenger,
		env.limiter,
		config.DispatcherConfig{
			BatchSize:       2,
			BatchDelay:      time.Millisecond,
			MaxSendAttempts: 3,
		},
		log.New(io.Discard, "", 0),
	)

	return env
}

func psidFor(contactID int64) string {
	return fmt.Sprintf("psid-%d", contactID)
}

func TestDispatchRunDeliversAudience(t *testing.T) {
	env := newDispatcherEnv([]int64{1, 2, 3})

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.True(t, finished)

	assert.Equal(t, 3, env.messenger.SentCount())
	assert.Equal(t, int64(3), env.campaign.SentCount)
	assert.True(t, env.run.Finished())

	for _, id := range []int64{1, 2, 3} {
		row, err := env.sentRepo.ByRunAndContact(context.Background(), env.run.ID, id)
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, models.DeliveryStatusSent, row.Status)
		assert.Equal(t, models.SendMethodWithinWindow, row.Method)
		assert.NotNil(t, row.PlatformMessageID)
	}
}

func TestDispatchRunResumeSkipsHandledContacts(t *testing.T) {
	env := newDispatcherEnv([]int64{1, 2, 3})

	// Contact 1 was dispatched before the interruption.
	require.NoError(t, env.sentRepo.Save(context.Background(), &models.SentMessage{
		CampaignID:    env.campaign.ID,
		CampaignRunID: env.run.ID,
		ContactID:     1,
		PageID:        env.page.ID,
		TrackingID:    "trk-existing",
		Method:        models.SendMethodWithinWindow,
		Status:        models.DeliveryStatusSent,
	}))

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.True(t, finished)

	assert.Equal(t, 2, env.messenger.SentCount())
	for _, send := range env.messenger.Sends {
		assert.NotEqual(t, psidFor(1), send.PSID)
	}
}

func TestDispatchRunRetriesTransientFailures(t *testing.T) {
	env := newDispatcherEnv([]int64{1})
	env.messenger.FailuresLeft[psidFor(1)] = 2

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.True(t, finished)

	row, err := env.sentRepo.ByRunAndContact(context.Background(), env.run.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, models.DeliveryStatusSent, row.Status)
	assert.Equal(t, 3, row.Attempts)
	assert.Equal(t, 1, env.messenger.SentCount())
}

func TestDispatchRunPermanentFailure(t *testing.T) {
	env := newDispatcherEnv([]int64{1})
	env.messenger.FailWith[psidFor(1)] = &services.SendError{
		Code:    551,
		Message: "user unavailable",
	}

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.True(t, finished)

	row, err := env.sentRepo.ByRunAndContact(context.Background(), env.run.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, models.DeliveryStatusFailedPermanent, row.Status)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.Error)

	assert.Equal(t, int64(1), env.campaign.FailedCount)
	assert.Equal(t, 0, env.messenger.SentCount())
	assert.Equal(t, 1, env.bypass.releasedCount())
	assert.Equal(t, 0, env.bypass.consumedCount())
}

func TestDispatchRunRetryExhaustion(t *testing.T) {
	env := newDispatcherEnv([]int64{1})
	env.dispatcher.cfg.MaxSendAttempts = 2
	env.messenger.FailuresLeft[psidFor(1)] = 10

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.True(t, finished)

	row, err := env.sentRepo.ByRunAndContact(context.Background(), env.run.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, models.DeliveryStatusFailedExhausted, row.Status)
	assert.Equal(t, 2, row.Attempts)
	assert.Equal(t, int64(1), env.campaign.FailedCount)
	assert.Equal(t, 1, env.bypass.releasedCount())
}

func TestDispatchRunBlockedContact(t *testing.T) {
	env := newDispatcherEnv([]int64{1, 2})
	env.bypass.methods[2] = models.SendMethodBlocked

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.True(t, finished)

	assert.Equal(t, 1, env.messenger.SentCount())
	assert.Equal(t, int64(1), env.campaign.SentCount)
	assert.Equal(t, int64(1), env.campaign.BlockedCount)

	row, err := env.sentRepo.ByRunAndContact(context.Background(), env.run.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, models.DeliveryStatusBlocked, row.Status)
}

func TestDispatchRunConsumesArtifactAfterSend(t *testing.T) {
	env := newDispatcherEnv([]int64{1})
	env.bypass.methods[1] = models.SendMethodOTNToken

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.True(t, finished)

	assert.Equal(t, 1, env.bypass.consumedCount())
	assert.Equal(t, 0, env.bypass.releasedCount())
}

func TestDispatchRunSuspendsWhenPaused(t *testing.T) {
	env := newDispatcherEnv([]int64{1, 2})
	env.campaign.Status = models.CampaignStatusPaused

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.False(t, finished)

	assert.Equal(t, 0, env.messenger.SentCount())
	assert.False(t, env.run.Finished())
}

func TestDispatchRunSuspendsWhenCampaignDeleted(t *testing.T) {
	env := newDispatcherEnv([]int64{1, 2})
	delete(env.campaignRepo.campaigns, env.campaign.ID)

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.False(t, finished)
	assert.Equal(t, 0, env.messenger.SentCount())
}

func TestDispatchRunFailsStalePendingOnResume(t *testing.T) {
	env := newDispatcherEnv([]int64{1, 2, 3})

	// Contact 1 got a pending record before the worker crashed, long enough
	// ago that no other worker can still own it.
	stale := &models.SentMessage{
		CampaignID:    env.campaign.ID,
		CampaignRunID: env.run.ID,
		ContactID:     1,
		PageID:        env.page.ID,
		TrackingID:    "trk-stale",
		Method:        models.SendMethodWithinWindow,
		Status:        models.DeliveryStatusPending,
		Attempts:      1,
	}
	require.NoError(t, env.sentRepo.Save(context.Background(), stale))
	stale.CreatedAt = utils.UTCNow().Add(-time.Hour)

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.True(t, finished)

	assert.Equal(t, models.DeliveryStatusFailedExhausted, stale.Status)
	assert.Equal(t, int64(1), env.campaign.FailedCount)
	assert.Equal(t, int64(2), env.campaign.SentCount)
	assert.True(t, env.run.Finished())

	// The abandoned recipient is failed, never re-sent.
	assert.Equal(t, 2, env.messenger.SentCount())
	for _, send := range env.messenger.Sends {
		assert.NotEqual(t, psidFor(1), send.PSID)
	}
}

func TestDispatchRunLeavesFreshPendingAlone(t *testing.T) {
	env := newDispatcherEnv([]int64{1, 2})

	fresh := &models.SentMessage{
		CampaignID:    env.campaign.ID,
		CampaignRunID: env.run.ID,
		ContactID:     1,
		PageID:        env.page.ID,
		TrackingID:    "trk-fresh",
		Method:        models.SendMethodWithinWindow,
		Status:        models.DeliveryStatusPending,
	}
	require.NoError(t, env.sentRepo.Save(context.Background(), fresh))
	fresh.CreatedAt = utils.UTCNow()

	// A recent pending record may still be owned by a live worker; the run
	// stays open until it either resolves or goes stale.
	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.False(t, finished)
	assert.Equal(t, models.DeliveryStatusPending, fresh.Status)
	assert.Equal(t, 1, env.messenger.SentCount())
}

func TestDispatchRunObservesPauseWhileCapped(t *testing.T) {
	oldSlice := capWaitSlice
	capWaitSlice = 10 * time.Millisecond
	defer func() { capWaitSlice = oldSlice }()

	env := newDispatcherEnv([]int64{1, 2})
	env.page.HourlyCap = 1

	type result struct {
		finished bool
		err      error
	}
	done := make(chan result, 1)
	go func() {
		finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
		done <- result{finished, err}
	}()

	deadline := time.After(5 * time.Second)
	for env.messenger.SentCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the first send")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ok, err := env.campaignRepo.TransitionStatus(context.Background(), env.campaign.ID, models.CampaignStatusRunning, models.CampaignStatusPaused, nil)
	require.NoError(t, err)
	require.True(t, ok)

	// The capped dispatcher wakes in bounded slices and notices the pause
	// well before the hourly window rolls over.
	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.False(t, res.finished)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not observe the pause while capped")
	}
	assert.Equal(t, 1, env.messenger.SentCount())
}

func TestDispatchRunFailsMissingContact(t *testing.T) {
	env := newDispatcherEnv([]int64{1, 2})
	env.contactRepo.contacts = map[int64]*models.Contact{
		2: env.contactRepo.contacts[2],
	}

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.True(t, finished)

	row, err := env.sentRepo.ByRunAndContact(context.Background(), env.run.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, models.DeliveryStatusFailedPermanent, row.Status)

	assert.Equal(t, 1, env.messenger.SentCount())
	assert.Equal(t, int64(1), env.campaign.SentCount)
	assert.Equal(t, int64(1), env.campaign.FailedCount)
}

func TestDispatchRunFailsInactivePage(t *testing.T) {
	env := newDispatcherEnv([]int64{1, 2})
	env.page.IsActive = utils.ToPtr(false)

	finished, err := env.dispatcher.DispatchRun(context.Background(), env.campaign, env.run)
	require.NoError(t, err)
	assert.True(t, finished)

	assert.Equal(t, 0, env.messenger.SentCount())
	assert.Equal(t, int64(2), env.campaign.FailedCount)
	assert.True(t, env.run.Finished())
}

func TestDispatchRunDefersOverHourlyCap(t *testing.T) {
	env := newDispatcherEnv([]int64{1, 2})
	env.page.HourlyCap = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		finished bool
		err      error
	}
	done := make(chan result, 1)
	go func() {
		finished, err := env.dispatcher.DispatchRun(ctx, env.campaign, env.run)
		done <- result{finished, err}
	}()

	// One send fits the window; the second recipient is deferred and the
	// dispatcher parks until the window rolls over.
	deadline := time.After(5 * time.Second)
	for env.messenger.SentCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the first send")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	res := <-done
	assert.Error(t, res.err)
	assert.False(t, res.finished)

	assert.Equal(t, 1, env.messenger.SentCount())
	deferredRow, err := env.sentRepo.ByRunAndContact(context.Background(), env.run.ID, 2)
	require.NoError(t, err)
	if deferredRow != nil {
		// Timing may let the first batch record contact 2 before the cap
		// kicks in, but it must never reach the transport twice.
		assert.NotEqual(t, models.DeliveryStatusSent, deferredRow.Status)
	}
	assert.False(t, env.run.Finished())
}
