// Package businessflow contains the core business logic and use cases for campaign delivery workflows
package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/pagepulse/pagepulse/app/dto"
	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/repository"
	"github.com/pagepulse/pagepulse/utils"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const launchLockTTL = 30 * time.Second

// CampaignFlow handles the campaign lifecycle business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	UpdateCampaign(ctx context.Context, req *dto.UpdateCampaignRequest, metadata *ClientMetadata) (*dto.UpdateCampaignResponse, error)
	GetCampaign(ctx context.Context, req *dto.GetCampaignRequest, metadata *ClientMetadata) (*dto.GetCampaignResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest, metadata *ClientMetadata) (*dto.ListCampaignsResponse, error)
	ScheduleCampaign(ctx context.Context, req *dto.ScheduleCampaignRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error)
	PauseCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error)
	ResumeCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error)
	CancelCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error)
	GetCampaignProgress(ctx context.Context, req *dto.GetCampaignRequest, metadata *ClientMetadata) (*dto.CampaignProgressResponse, error)

	// Launch moves a due campaign into running and snapshots its audience
	// into the first dispatch pass. Called by the scheduler, not handlers.
	Launch(ctx context.Context, campaignID uint) (*models.Campaign, *models.CampaignRun, error)
	// StartRun opens a follow-up dispatch pass of a recurring or drip
	// campaign with a pre-resolved audience.
	StartRun(ctx context.Context, campaign *models.Campaign, dripStep *int, audienceIDs []int64) (*models.CampaignRun, error)
	// RearmNextRun parks a running multi-pass campaign back into scheduled
	// with the next activation time.
	RearmNextRun(ctx context.Context, campaign *models.Campaign, nextAt time.Time) error
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	runRepo      repository.CampaignRunRepository
	segmentFlow  SegmentFlow
	rc           *redis.Client
	cachePrefix  string
	db           *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	runRepo repository.CampaignRunRepository,
	segmentFlow SegmentFlow,
	rc *redis.Client,
	cachePrefix string,
	db *gorm.DB,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		runRepo:      runRepo,
		segmentFlow:  segmentFlow,
		rc:           rc,
		cachePrefix:  cachePrefix,
		db:           db,
	}
}

// CreateCampaign handles the campaign creation process
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	if err := s.validateCreateCampaignRequest(req); err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}

	campaign := &models.Campaign{
		WorkspaceID: req.WorkspaceID,
		Name:        req.Name,
		Content:     req.Content,
		Status:      models.CampaignStatusDraft,
		Audience:    req.Audience,
		Schedule:    req.Schedule,
		Variants:    req.Variants,
		Topic:       req.Topic,
		Sponsored:   req.Sponsored,
	}
	if req.PreferredMethod != nil {
		m := models.SendMethod(*req.PreferredMethod)
		campaign.PreferredMethod = &m
	}
	if req.MessageTag != nil {
		t := models.MessageTag(*req.MessageTag)
		campaign.MessageTag = &t
	}
	if req.WinnerCriterion != nil {
		c := models.WinnerCriterion(*req.WinnerCriterion)
		campaign.WinnerCriterion = &c
	}

	if err := s.campaignRepo.Save(ctx, campaign); err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	return &dto.CreateCampaignResponse{
		Message:  "Campaign created successfully",
		Campaign: ToCampaignDTO(campaign),
	}, nil
}

// UpdateCampaign handles campaign updates. Only draft campaigns accept edits.
func (s *CampaignFlowImpl) UpdateCampaign(ctx context.Context, req *dto.UpdateCampaignRequest, metadata *ClientMetadata) (*dto.UpdateCampaignResponse, error) {
	campaign, err := s.ownedCampaign(ctx, req.UUID, req.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsEditable() {
		return nil, NewBusinessError("CAMPAIGN_NOT_EDITABLE", "Campaign cannot be edited in current status", ErrCampaignNotEditable)
	}

	if req.Name != nil {
		campaign.Name = *req.Name
	}
	if req.Content != nil {
		campaign.Content = *req.Content
	}
	if req.Audience != nil {
		campaign.Audience = *req.Audience
	}
	if req.Schedule != nil {
		if err := validateSchedule(req.Schedule, false); err != nil {
			return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
		}
		campaign.Schedule = *req.Schedule
	}
	if req.PreferredMethod != nil {
		m := models.SendMethod(*req.PreferredMethod)
		if !m.Valid() {
			return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", ErrInvalidStatusTransition)
		}
		campaign.PreferredMethod = &m
	}
	if req.MessageTag != nil {
		t := models.MessageTag(*req.MessageTag)
		if !t.Valid() {
			return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", ErrMessageTagInvalid)
		}
		campaign.MessageTag = &t
	}
	if req.Topic != nil {
		campaign.Topic = req.Topic
	}
	if req.Sponsored != nil {
		campaign.Sponsored = req.Sponsored
	}
	if req.Variants != nil {
		if err := validateVariants(req.Variants); err != nil {
			return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
		}
		campaign.Variants = req.Variants
	}

	if err := s.campaignRepo.Update(ctx, campaign); err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Campaign update failed", err)
	}

	return &dto.UpdateCampaignResponse{
		Message:  "Campaign updated successfully",
		Campaign: ToCampaignDTO(campaign),
	}, nil
}

// GetCampaign retrieves a single campaign
func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, req *dto.GetCampaignRequest, metadata *ClientMetadata) (*dto.GetCampaignResponse, error) {
	campaign, err := s.ownedCampaign(ctx, req.UUID, req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	return &dto.GetCampaignResponse{
		Message:  "Campaign retrieved successfully",
		Campaign: ToCampaignDTO(campaign),
	}, nil
}

// ListCampaigns returns the workspace's campaigns
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest, metadata *ClientMetadata) (*dto.ListCampaignsResponse, error) {
	if req.Page < 1 {
		return nil, NewBusinessError("INVALID_PAGE", "Invalid page", ErrInvalidPage)
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		return nil, NewBusinessError("INVALID_PAGE_SIZE", "Invalid page size", ErrInvalidPageSize)
	}

	filter := models.CampaignFilter{WorkspaceID: &req.WorkspaceID}
	if req.Status != nil {
		status := models.CampaignStatus(*req.Status)
		if status.Valid() {
			filter.Status = &status
		}
	}

	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to count campaigns", err)
	}

	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC", req.PageSize, (req.Page-1)*req.PageSize)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}

	items := make([]dto.CampaignDTO, 0, len(campaigns))
	for _, campaign := range campaigns {
		items = append(items, ToCampaignDTO(campaign))
	}

	return &dto.ListCampaignsResponse{
		Message:   "Campaigns retrieved successfully",
		Campaigns: items,
		Total:     total,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}, nil
}

// ScheduleCampaign arms a draft campaign for activation
func (s *CampaignFlowImpl) ScheduleCampaign(ctx context.Context, req *dto.ScheduleCampaignRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error) {
	campaign, err := s.ownedCampaign(ctx, req.UUID, req.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !campaign.CanTransitionTo(models.CampaignStatusScheduled) {
		return nil, NewBusinessError("INVALID_STATUS_TRANSITION", "Campaign cannot be scheduled in current status", ErrInvalidStatusTransition)
	}

	now := utils.UTCNow()
	scheduledAt := now
	switch campaign.Schedule.Type {
	case models.ScheduleTypeOneTime:
		if req.SendAt != nil {
			scheduledAt = *req.SendAt
		} else if campaign.Schedule.SendAt != nil {
			scheduledAt = *campaign.Schedule.SendAt
		}
		if scheduledAt.Before(now.Add(-time.Minute)) {
			return nil, NewBusinessError("SCHEDULE_TIME_IN_PAST", "Schedule time is in the past", ErrScheduleTimeInPast)
		}
	case models.ScheduleTypeRecurring:
		next, err := nextCronActivation(campaign.Schedule.CronExpr, now)
		if err != nil {
			return nil, NewBusinessError("CRON_EXPRESSION_INVALID", "Cron expression is invalid", err)
		}
		scheduledAt = next
	case models.ScheduleTypeDrip:
		// First drip step launches immediately unless an explicit time is given.
		if req.SendAt != nil {
			scheduledAt = *req.SendAt
		}
	}

	ok, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, campaign.Status, models.CampaignStatusScheduled, map[string]any{
		"scheduled_at": scheduledAt,
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_SCHEDULE_FAILED", "Campaign scheduling failed", err)
	}
	if !ok {
		return nil, NewBusinessError("INVALID_STATUS_TRANSITION", "Campaign moved concurrently", ErrInvalidStatusTransition)
	}

	return &dto.CampaignActionResponse{
		Message: "Campaign scheduled successfully",
		UUID:    campaign.UUID.String(),
		Status:  string(models.CampaignStatusScheduled),
	}, nil
}

// PauseCampaign suspends dispatch of a running campaign. The dispatcher
// observes the new status at its next batch boundary; in-flight batch sends
// complete normally.
func (s *CampaignFlowImpl) PauseCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error) {
	return s.transition(ctx, req, models.CampaignStatusRunning, models.CampaignStatusPaused, nil, "Campaign paused successfully")
}

// ResumeCampaign restarts dispatch of a paused campaign from the run cursor
func (s *CampaignFlowImpl) ResumeCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error) {
	return s.transition(ctx, req, models.CampaignStatusPaused, models.CampaignStatusRunning, nil, "Campaign resumed successfully")
}

// CancelCampaign terminally stops a campaign. Accumulated statistics are
// preserved; nothing further is dispatched.
func (s *CampaignFlowImpl) CancelCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error) {
	campaign, err := s.ownedCampaign(ctx, req.UUID, req.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !campaign.CanTransitionTo(models.CampaignStatusCancelled) {
		return nil, NewBusinessError("INVALID_STATUS_TRANSITION", "Campaign cannot be cancelled in current status", ErrInvalidStatusTransition)
	}

	ok, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, campaign.Status, models.CampaignStatusCancelled, nil)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_CANCEL_FAILED", "Campaign cancellation failed", err)
	}
	if !ok {
		return nil, NewBusinessError("INVALID_STATUS_TRANSITION", "Campaign moved concurrently", ErrInvalidStatusTransition)
	}

	return &dto.CampaignActionResponse{
		Message: "Campaign cancelled successfully",
		UUID:    campaign.UUID.String(),
		Status:  string(models.CampaignStatusCancelled),
	}, nil
}

// GetCampaignProgress reports dispatch progress of the latest pass
func (s *CampaignFlowImpl) GetCampaignProgress(ctx context.Context, req *dto.GetCampaignRequest, metadata *ClientMetadata) (*dto.CampaignProgressResponse, error) {
	campaign, err := s.ownedCampaign(ctx, req.UUID, req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	resp := &dto.CampaignProgressResponse{
		Message:         "Campaign progress retrieved successfully",
		UUID:            campaign.UUID.String(),
		Status:          string(campaign.Status),
		TotalRecipients: campaign.TotalRecipients,
		SentCount:       campaign.SentCount,
		FailedCount:     campaign.FailedCount,
		BlockedCount:    campaign.BlockedCount,
	}

	run, err := s.runRepo.LatestByCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_RUN_LOOKUP_FAILED", "Failed to lookup campaign run", err)
	}
	if run != nil {
		resp.RunSeq = &run.Seq
		resp.RunAudienceSize = int64(len(run.AudienceIDs))
		resp.RunFinished = run.Finished()
	}

	return resp, nil
}

// Launch moves a due campaign into running and snapshots its audience
func (s *CampaignFlowImpl) Launch(ctx context.Context, campaignID uint) (*models.Campaign, *models.CampaignRun, error) {
	unlock, err := s.acquireLaunchLock(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	if !campaign.CanTransitionTo(models.CampaignStatusRunning) {
		return nil, nil, NewBusinessError("INVALID_STATUS_TRANSITION", "Campaign cannot be launched in current status", ErrInvalidStatusTransition)
	}

	// Resolve the audience before touching status so a failed resolution
	// leaves the campaign schedulable.
	audienceIDs, err := s.segmentFlow.ResolveAudience(ctx, campaign)
	if err != nil {
		return nil, nil, err
	}

	seq, err := s.runRepo.CountByCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, nil, NewBusinessError("CAMPAIGN_RUN_LOOKUP_FAILED", "Failed to count campaign runs", err)
	}

	extra := map[string]any{}
	if campaign.StartedAt == nil {
		extra["started_at"] = utils.UTCNow()
	}

	var dripStep *int
	if campaign.Schedule.Type == models.ScheduleTypeDrip {
		step := int(seq)
		dripStep = &step
	}

	run := &models.CampaignRun{
		CampaignID:  campaign.ID,
		Seq:         int(seq),
		DripStep:    dripStep,
		AudienceIDs: audienceIDs,
	}

	// Status flip and run creation commit together so a crash between them
	// cannot leave a running campaign with no pass to dispatch. The pass
	// audience accumulates into total_recipients so outcome counters from
	// every pass stay bounded by it.
	err = s.withTx(ctx, func(txCtx context.Context) error {
		ok, err := s.campaignRepo.TransitionStatus(txCtx, campaign.ID, campaign.Status, models.CampaignStatusRunning, extra)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidStatusTransition
		}
		if err := s.campaignRepo.IncrementCounters(txCtx, campaign.ID, repository.CounterDeltas{TotalRecipients: int64(len(audienceIDs))}); err != nil {
			return err
		}
		return s.runRepo.Save(txCtx, run)
	})
	if err != nil {
		if IsInvalidStatusTransition(err) {
			return nil, nil, NewBusinessError("INVALID_STATUS_TRANSITION", "Campaign moved concurrently", ErrInvalidStatusTransition)
		}
		return nil, nil, NewBusinessError("CAMPAIGN_LAUNCH_FAILED", "Campaign launch failed", err)
	}
	campaign.Status = models.CampaignStatusRunning

	return campaign, run, nil
}

// StartRun opens a follow-up dispatch pass with a pre-resolved audience
func (s *CampaignFlowImpl) StartRun(ctx context.Context, campaign *models.Campaign, dripStep *int, audienceIDs []int64) (*models.CampaignRun, error) {
	if len(audienceIDs) == 0 {
		return nil, NewBusinessError("EMPTY_AUDIENCE", "Resolved audience is empty", ErrEmptyAudience)
	}

	seq, err := s.runRepo.CountByCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_RUN_LOOKUP_FAILED", "Failed to count campaign runs", err)
	}

	run := &models.CampaignRun{
		CampaignID:  campaign.ID,
		Seq:         int(seq),
		DripStep:    dripStep,
		AudienceIDs: audienceIDs,
	}
	err = s.withTx(ctx, func(txCtx context.Context) error {
		if err := s.runRepo.Save(txCtx, run); err != nil {
			return err
		}
		return s.campaignRepo.IncrementCounters(txCtx, campaign.ID, repository.CounterDeltas{TotalRecipients: int64(len(audienceIDs))})
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_RUN_CREATION_FAILED", "Failed to create campaign run", err)
	}

	return run, nil
}

// RearmNextRun parks a running multi-pass campaign back into scheduled
func (s *CampaignFlowImpl) RearmNextRun(ctx context.Context, campaign *models.Campaign, nextAt time.Time) error {
	ok, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, models.CampaignStatusRunning, models.CampaignStatusScheduled, map[string]any{
		"scheduled_at": nextAt,
	})
	if err != nil {
		return NewBusinessError("CAMPAIGN_REARM_FAILED", "Failed to re-arm campaign", err)
	}
	if !ok {
		return NewBusinessError("INVALID_STATUS_TRANSITION", "Campaign moved concurrently", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *CampaignFlowImpl) transition(ctx context.Context, req *dto.CampaignActionRequest, from, to models.CampaignStatus, extra map[string]any, message string) (*dto.CampaignActionResponse, error) {
	campaign, err := s.ownedCampaign(ctx, req.UUID, req.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != from || !campaign.CanTransitionTo(to) {
		return nil, NewBusinessError("INVALID_STATUS_TRANSITION", "Campaign cannot transition in current status", ErrInvalidStatusTransition)
	}

	ok, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, from, to, extra)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_TRANSITION_FAILED", "Campaign transition failed", err)
	}
	if !ok {
		return nil, NewBusinessError("INVALID_STATUS_TRANSITION", "Campaign moved concurrently", ErrInvalidStatusTransition)
	}

	return &dto.CampaignActionResponse{
		Message: message,
		UUID:    campaign.UUID.String(),
		Status:  string(to),
	}, nil
}

func (s *CampaignFlowImpl) ownedCampaign(ctx context.Context, uuidStr string, workspaceID uint) (*models.Campaign, error) {
	if uuidStr == "" {
		return nil, NewBusinessError("CAMPAIGN_UUID_REQUIRED", "Campaign UUID is required", ErrCampaignUUIDRequired)
	}

	campaign, err := s.campaignRepo.ByUUID(ctx, uuidStr)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	if campaign.WorkspaceID != workspaceID {
		return nil, NewBusinessError("CAMPAIGN_ACCESS_DENIED", "Access denied: campaign belongs to another workspace", ErrCampaignAccessDenied)
	}

	return campaign, nil
}

// withTx runs fn inside a database transaction when one is available
func (s *CampaignFlowImpl) withTx(ctx context.Context, fn func(context.Context) error) error {
	if s.db == nil {
		return fn(ctx)
	}
	return repository.WithTransaction(ctx, s.db, fn)
}

func (s *CampaignFlowImpl) acquireLaunchLock(ctx context.Context, campaignID uint) (func(), error) {
	if s.rc == nil {
		return func() {}, nil
	}

	lockKey := fmt.Sprintf("%s:campaign_launch:%d", s.cachePrefix, campaignID)
	ok, err := s.rc.SetNX(ctx, lockKey, "1", launchLockTTL).Result()
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LAUNCH_LOCK_FAILED", "Failed to acquire launch lock", err)
	}
	if !ok {
		return nil, NewBusinessError("CAMPAIGN_LAUNCH_IN_PROGRESS", "Another worker is launching this campaign", ErrLaunchInProgress)
	}

	return func() {
		_ = s.rc.Del(context.Background(), lockKey).Err()
	}, nil
}

func (s *CampaignFlowImpl) validateCreateCampaignRequest(req *dto.CreateCampaignRequest) error {
	if req.Name == "" {
		return ErrCampaignNameRequired
	}
	if req.Content == "" && len(req.Variants) == 0 && len(req.Schedule.Steps) == 0 {
		return ErrCampaignContentRequired
	}
	if !req.Audience.Type.Valid() {
		return ErrCampaignAudienceRequired
	}
	if req.MessageTag != nil && !models.MessageTag(*req.MessageTag).Valid() {
		return ErrMessageTagInvalid
	}
	if err := validateVariants(req.Variants); err != nil {
		return err
	}
	if len(req.Variants) > 1 && req.WinnerCriterion == nil {
		return ErrWinnerCriterionRequired
	}
	return validateSchedule(&req.Schedule, false)
}

func validateSchedule(schedule *models.ScheduleSpec, requireSendAt bool) error {
	switch schedule.Type {
	case models.ScheduleTypeOneTime:
		if requireSendAt && schedule.SendAt == nil {
			return ErrScheduleTimeNotPresent
		}
		return nil
	case models.ScheduleTypeRecurring:
		if schedule.CronExpr == nil || *schedule.CronExpr == "" {
			return ErrCronExpressionRequired
		}
		if _, err := cron.ParseStandard(*schedule.CronExpr); err != nil {
			return fmt.Errorf("%w: %v", ErrCronExpressionInvalid, err)
		}
		return nil
	case models.ScheduleTypeDrip:
		if len(schedule.Steps) == 0 {
			return ErrDripStepsRequired
		}
		for _, step := range schedule.Steps {
			if step.Content == "" || step.DelayHours < 0 {
				return ErrDripStepsRequired
			}
		}
		return nil
	default:
		return ErrScheduleTimeNotPresent
	}
}

func validateVariants(variants models.ABVariants) error {
	if len(variants) == 0 {
		return nil
	}
	sum := 0
	for _, v := range variants {
		if v.Name == "" || v.Content == "" || v.Percent <= 0 {
			return ErrVariantSplitInvalid
		}
		sum += v.Percent
	}
	if sum != 100 {
		return ErrVariantSplitInvalid
	}
	return nil
}

// nextCronActivation computes the next activation instant after now
func nextCronActivation(expr *string, now time.Time) (time.Time, error) {
	if expr == nil || *expr == "" {
		return time.Time{}, ErrCronExpressionRequired
	}
	sched, err := cron.ParseStandard(*expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrCronExpressionInvalid, err)
	}
	return sched.Next(now), nil
}
