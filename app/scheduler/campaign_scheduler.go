// Package scheduler
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	businessflow "github.com/pagepulse/pagepulse/business_flow"
	"github.com/pagepulse/pagepulse/config"
	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/repository"
	"github.com/pagepulse/pagepulse/utils"
)

var (
	schedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagepulse_scheduler_ticks_total",
		Help: "Scheduler activation sweeps",
	})

	schedulerActiveCampaigns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagepulse_scheduler_active_campaigns",
		Help: "Campaigns currently being dispatched",
	})

	schedulerLaunchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagepulse_scheduler_launch_errors_total",
		Help: "Campaign activation failures",
	})
)

// CampaignScheduler periodically sweeps for due campaigns, activates them and
// hands each run to the dispatcher. It also picks campaigns left in running
// back up after a restart and arms the follow-up passes of recurring and drip
// campaigns.
type CampaignScheduler struct {
	campaignRepo repository.CampaignRepository
	runRepo      repository.CampaignRunRepository
	sentRepo     repository.SentMessageRepository

	campaignFlow businessflow.CampaignFlow
	statsFlow    businessflow.StatsFlow
	dispatcher   *Dispatcher

	cfg    config.SchedulerConfig
	logger *log.Logger

	// active guards against dispatching the same campaign from two sweeps.
	mu     sync.Mutex
	active map[uint]struct{}

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewCampaignScheduler creates a new campaign scheduler instance
func NewCampaignScheduler(
	campaignRepo repository.CampaignRepository,
	runRepo repository.CampaignRunRepository,
	sentRepo repository.SentMessageRepository,
	campaignFlow businessflow.CampaignFlow,
	statsFlow businessflow.StatsFlow,
	dispatcher *Dispatcher,
	cfg config.SchedulerConfig,
	logger *log.Logger,
) *CampaignScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = utils.DefaultSchedulerInterval
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = utils.DefaultSchedulerClaimLimit
	}
	if logger == nil {
		logger = log.Default()
	}

	return &CampaignScheduler{
		campaignRepo: campaignRepo,
		runRepo:      runRepo,
		sentRepo:     sentRepo,
		campaignFlow: campaignFlow,
		statsFlow:    statsFlow,
		dispatcher:   dispatcher,
		cfg:          cfg,
		logger:       logger,
		active:       make(map[uint]struct{}),
		stop:         make(chan struct{}),
	}
}

// NewSchedulerLogger builds the scheduler's logger writing to stdout and a
// rotated log file
func NewSchedulerLogger(cfg config.SchedulerConfig) *log.Logger {
	var w io.Writer = os.Stdout
	if cfg.LogFilePath != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFilePath,
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		})
	}
	return log.New(w, "[scheduler] ", log.LstdFlags|log.LUTC)
}

// Start runs the activation loop until the context is cancelled or Stop is
// called. Blocks; run it in its own goroutine.
func (s *CampaignScheduler) Start(ctx context.Context) {
	s.logger.Printf("starting, interval=%s", s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("context cancelled, waiting for in-flight campaigns")
			s.wg.Wait()
			return
		case <-s.stop:
			s.logger.Printf("stop requested, waiting for in-flight campaigns")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// Stop asks the loop to exit after in-flight campaigns settle
func (s *CampaignScheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// runOnce performs one activation sweep
func (s *CampaignScheduler) runOnce(ctx context.Context) {
	schedulerTicks.Inc()
	now := utils.UTCNow()

	due, err := s.campaignRepo.ListDue(ctx, now, s.cfg.ClaimLimit)
	if err != nil {
		s.logger.Printf("listing due campaigns failed: %v", err)
		return
	}

	// Campaigns stuck in running have a half-dispatched pass from a previous
	// process life, or were just resumed from paused.
	running, err := s.campaignRepo.ListByStatus(ctx, models.CampaignStatusRunning, s.cfg.ClaimLimit, 0)
	if err != nil {
		s.logger.Printf("listing running campaigns failed: %v", err)
		return
	}

	for _, campaign := range append(due, running...) {
		if !s.claim(campaign.ID) {
			continue
		}
		s.wg.Add(1)
		go func(id uint) {
			defer s.wg.Done()
			defer s.release(id)
			s.process(ctx, id)
		}(campaign.ID)
	}
}

// process drives one campaign through activation and dispatch
func (s *CampaignScheduler) process(ctx context.Context, campaignID uint) {
	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil || campaign == nil {
		s.logger.Printf("campaign id=%d lookup failed: %v", campaignID, err)
		return
	}

	switch campaign.Status {
	case models.CampaignStatusScheduled:
		s.activate(ctx, campaign)
	case models.CampaignStatusRunning:
		s.resume(ctx, campaign)
	}
}

// activate launches a due campaign. Later drip passes target contacts engaged
// by the previous pass instead of re-resolving the audience.
func (s *CampaignScheduler) activate(ctx context.Context, campaign *models.Campaign) {
	if campaign.Schedule.Type == models.ScheduleTypeDrip {
		count, err := s.runRepo.CountByCampaign(ctx, campaign.ID)
		if err != nil {
			s.logger.Printf("campaign id=%d run count failed: %v", campaign.ID, err)
			return
		}
		if count > 0 {
			s.activateDripStep(ctx, campaign)
			return
		}
	}

	campaign, run, err := s.campaignFlow.Launch(ctx, campaign.ID)
	if err != nil {
		if businessflow.IsLaunchInProgress(err) {
			return
		}
		schedulerLaunchErrors.Inc()
		s.logger.Printf("campaign id=%d launch failed: %v", campaign.ID, err)
		return
	}
	s.logger.Printf("campaign id=%d launched, run seq=%d audience=%d", campaign.ID, run.Seq, len(run.AudienceIDs))

	s.dispatch(ctx, campaign, run)
}

// activateDripStep opens the next drip pass from the previous pass's
// engagement
func (s *CampaignScheduler) activateDripStep(ctx context.Context, campaign *models.Campaign) {
	prev, err := s.runRepo.LatestByCampaign(ctx, campaign.ID)
	if err != nil || prev == nil {
		s.logger.Printf("campaign id=%d previous run lookup failed: %v", campaign.ID, err)
		return
	}

	step := prev.Seq + 1
	if step >= len(campaign.Schedule.Steps) {
		s.finishEarly(ctx, campaign)
		return
	}

	condition := campaign.Schedule.Steps[step].Condition
	if condition == "" {
		condition = models.DripConditionAlways
	}
	audience, err := s.sentRepo.ListEngagedContacts(ctx, prev.ID, condition)
	if err != nil {
		s.logger.Printf("campaign id=%d engaged-contact lookup failed: %v", campaign.ID, err)
		return
	}
	if len(audience) == 0 {
		// Nobody qualified for the next step; the sequence is over.
		s.logger.Printf("campaign id=%d drip step %d has no qualifying contacts", campaign.ID, step)
		s.finishEarly(ctx, campaign)
		return
	}

	ok, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, models.CampaignStatusScheduled, models.CampaignStatusRunning, nil)
	if err != nil || !ok {
		s.logger.Printf("campaign id=%d drip activation lost: %v", campaign.ID, err)
		return
	}
	campaign.Status = models.CampaignStatusRunning

	run, err := s.campaignFlow.StartRun(ctx, campaign, &step, audience)
	if err != nil {
		s.logger.Printf("campaign id=%d drip run creation failed: %v", campaign.ID, err)
		return
	}
	s.logger.Printf("campaign id=%d drip step %d started, audience=%d", campaign.ID, step, len(audience))

	s.dispatch(ctx, campaign, run)
}

// resume continues a running campaign's latest pass
func (s *CampaignScheduler) resume(ctx context.Context, campaign *models.Campaign) {
	run, err := s.runRepo.LatestByCampaign(ctx, campaign.ID)
	if err != nil {
		s.logger.Printf("campaign id=%d run lookup failed: %v", campaign.ID, err)
		return
	}
	if run == nil {
		s.logger.Printf("campaign id=%d is running with no pass, completing", campaign.ID)
		if err := s.statsFlow.CompleteCampaign(ctx, campaign.ID); err != nil {
			s.logger.Printf("campaign id=%d completion failed: %v", campaign.ID, err)
		}
		return
	}
	if run.Finished() {
		s.afterRun(ctx, campaign, run)
		return
	}

	s.dispatch(ctx, campaign, run)
}

func (s *CampaignScheduler) dispatch(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun) {
	schedulerActiveCampaigns.Inc()
	defer schedulerActiveCampaigns.Dec()

	finished, err := s.dispatcher.DispatchRun(ctx, campaign, run)
	if err != nil {
		s.logger.Printf("campaign id=%d run seq=%d dispatch failed: %v", campaign.ID, run.Seq, err)
		return
	}
	if !finished {
		// Paused, cancelled or shutting down. A later sweep picks it back up
		// if the campaign returns to running.
		return
	}

	s.afterRun(ctx, campaign, run)
}

// afterRun advances the campaign past a finished pass: one-time campaigns
// complete, recurring campaigns re-arm on their cron schedule, drip campaigns
// re-arm for the next step's delay.
func (s *CampaignScheduler) afterRun(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun) {
	now := utils.UTCNow()

	switch campaign.Schedule.Type {
	case models.ScheduleTypeRecurring:
		sched, err := cron.ParseStandard(deref(campaign.Schedule.CronExpr))
		if err != nil {
			s.logger.Printf("campaign id=%d cron parse failed: %v", campaign.ID, err)
			s.complete(ctx, campaign)
			return
		}
		nextAt := sched.Next(now)
		if err := s.campaignFlow.RearmNextRun(ctx, campaign, nextAt); err != nil {
			s.logger.Printf("campaign id=%d re-arm failed: %v", campaign.ID, err)
			return
		}
		s.logger.Printf("campaign id=%d re-armed for %s", campaign.ID, nextAt.Format(time.RFC3339))

	case models.ScheduleTypeDrip:
		nextStep := run.Seq + 1
		if nextStep >= len(campaign.Schedule.Steps) {
			s.complete(ctx, campaign)
			return
		}
		nextAt := now.Add(time.Duration(campaign.Schedule.Steps[nextStep].DelayHours) * time.Hour)
		if err := s.campaignFlow.RearmNextRun(ctx, campaign, nextAt); err != nil {
			s.logger.Printf("campaign id=%d re-arm failed: %v", campaign.ID, err)
			return
		}
		s.logger.Printf("campaign id=%d drip step %d armed for %s", campaign.ID, nextStep, nextAt.Format(time.RFC3339))

	default:
		s.complete(ctx, campaign)
	}
}

// finishEarly completes a scheduled multi-pass campaign that has no further
// work
func (s *CampaignScheduler) finishEarly(ctx context.Context, campaign *models.Campaign) {
	ok, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, models.CampaignStatusScheduled, models.CampaignStatusRunning, nil)
	if err != nil || !ok {
		s.logger.Printf("campaign id=%d early-finish transition lost: %v", campaign.ID, err)
		return
	}
	s.complete(ctx, campaign)
}

func (s *CampaignScheduler) complete(ctx context.Context, campaign *models.Campaign) {
	if err := s.statsFlow.CompleteCampaign(ctx, campaign.ID); err != nil {
		s.logger.Printf("campaign id=%d completion failed: %v", campaign.ID, err)
		return
	}
	s.logger.Printf("campaign id=%d completed", campaign.ID)
}

func (s *CampaignScheduler) claim(campaignID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[campaignID]; busy {
		return false
	}
	s.active[campaignID] = struct{}{}
	return true
}

func (s *CampaignScheduler) release(campaignID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, campaignID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
