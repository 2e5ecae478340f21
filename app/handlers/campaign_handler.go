// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/pagepulse/pagepulse/app/dto"
	businessflow "github.com/pagepulse/pagepulse/business_flow"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	UpdateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	ScheduleCampaign(c fiber.Ctx) error
	PauseCampaign(c fiber.Ctx) error
	ResumeCampaign(c fiber.Ctx) error
	CancelCampaign(c fiber.Ctx) error
	GetCampaignProgress(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	validator    *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		validator:    validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateCampaign handles the campaign creation process
// @Summary Create Campaign
// @Description Create a new messaging campaign in draft status
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body dto.CreateCampaignRequest true "Campaign creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateCampaignResponse} "Campaign created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized - workspace not resolved"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Workspace ID not found in context", "MISSING_WORKSPACE_ID", nil)
	}
	req.WorkspaceID = workspaceID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.campaignFlow.CreateCampaign(h.createRequestContext(c, "/api/v1/campaigns"), &req, metadata)
	if err != nil {
		if businessflow.IsCampaignNameRequired(err) ||
			businessflow.IsCampaignContentRequired(err) ||
			businessflow.IsCampaignAudienceRequired(err) ||
			businessflow.IsMessageTagInvalid(err) ||
			businessflow.IsVariantSplitInvalid(err) ||
			businessflow.IsWinnerCriterionRequired(err) ||
			businessflow.IsCronExpressionRequired(err) ||
			businessflow.IsCronExpressionInvalid(err) ||
			businessflow.IsDripStepsRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign validation failed", "CAMPAIGN_VALIDATION_FAILED", err.Error())
		}

		log.Println("Campaign creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", fiber.Map{
		"message":  result.Message,
		"campaign": result.Campaign,
	})
}

// UpdateCampaign handles campaign updates. Only draft campaigns accept edits.
// @Summary Update Campaign
// @Description Update a draft campaign's content, audience or schedule
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.UpdateCampaignRequest true "Campaign update data"
// @Success 200 {object} dto.APIResponse{data=dto.UpdateCampaignResponse} "Campaign updated successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 403 {object} dto.APIResponse "Forbidden - access denied or campaign not editable"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{uuid} [put]
func (h *CampaignHandler) UpdateCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	var req dto.UpdateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UUID = campaignUUID

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Workspace ID not found in context", "MISSING_WORKSPACE_ID", nil)
	}
	req.WorkspaceID = workspaceID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.campaignFlow.UpdateCampaign(h.createRequestContext(c, "/api/v1/campaigns/"+campaignUUID), &req, metadata)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		if businessflow.IsCampaignAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: campaign belongs to another workspace", "CAMPAIGN_ACCESS_DENIED", nil)
		}
		if businessflow.IsCampaignNotEditable(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Campaign cannot be edited in current status", "CAMPAIGN_NOT_EDITABLE", nil)
		}
		if businessflow.IsMessageTagInvalid(err) || businessflow.IsVariantSplitInvalid(err) ||
			businessflow.IsCronExpressionInvalid(err) || businessflow.IsDripStepsRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign validation failed", "CAMPAIGN_VALIDATION_FAILED", err.Error())
		}

		log.Println("Campaign update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign update failed", "CAMPAIGN_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign updated successfully", fiber.Map{
		"message":  result.Message,
		"campaign": result.Campaign,
	})
}

// GetCampaign retrieves a single campaign
// @Summary Get Campaign
// @Description Retrieve one campaign by UUID
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetCampaignResponse}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{uuid} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	req, errResp := h.actionRequest(c)
	if errResp != nil {
		return errResp
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.campaignFlow.GetCampaign(h.createRequestContext(c, "/api/v1/campaigns/"+req.UUID), &dto.GetCampaignRequest{
		UUID:        req.UUID,
		WorkspaceID: req.WorkspaceID,
	}, metadata)
	if err != nil {
		return h.campaignLookupError(c, err, "Campaign retrieval failed", "CAMPAIGN_RETRIEVAL_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", fiber.Map{
		"message":  result.Message,
		"campaign": result.Campaign,
	})
}

// ListCampaigns returns the workspace's campaigns with pagination
// @Summary List Campaigns
// @Description Retrieve the workspace's campaigns with pagination and status filter
// @Tags Campaigns
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page (max 100)" default(10)
// @Param status query string false "Filter by status"
// @Success 200 {object} dto.APIResponse{data=dto.ListCampaignsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Workspace ID not found in context", "MISSING_WORKSPACE_ID", nil)
	}

	page := 1
	if v, err := strconv.Atoi(c.Query("page", "1")); err == nil && v > 0 {
		page = v
	}
	pageSize := 10
	if v, err := strconv.Atoi(c.Query("page_size", "10")); err == nil && v > 0 {
		pageSize = v
	}
	if pageSize > 100 {
		pageSize = 100
	}

	req := &dto.ListCampaignsRequest{
		WorkspaceID: workspaceID,
		Page:        page,
		PageSize:    pageSize,
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.campaignFlow.ListCampaigns(h.createRequestContext(c, "/api/v1/campaigns"), req, metadata)
	if err != nil {
		log.Println("List campaigns failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list campaigns", "LIST_CAMPAIGNS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", fiber.Map{
		"message":   result.Message,
		"campaigns": result.Campaigns,
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
	})
}

// ScheduleCampaign arms a draft campaign for activation
// @Summary Schedule Campaign
// @Description Move a draft campaign to scheduled with an activation time
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.ScheduleCampaignRequest false "Optional explicit send time"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignActionResponse}
// @Failure 400 {object} dto.APIResponse "Schedule time invalid"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 409 {object} dto.APIResponse "Invalid status transition"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{uuid}/schedule [post]
func (h *CampaignHandler) ScheduleCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	var req dto.ScheduleCampaignRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}
	req.UUID = campaignUUID

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Workspace ID not found in context", "MISSING_WORKSPACE_ID", nil)
	}
	req.WorkspaceID = workspaceID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.campaignFlow.ScheduleCampaign(h.createRequestContext(c, "/api/v1/campaigns/"+campaignUUID+"/schedule"), &req, metadata)
	if err != nil {
		if businessflow.IsScheduleTimeInPast(err) || businessflow.IsScheduleTimeNotPresent(err) ||
			businessflow.IsCronExpressionRequired(err) || businessflow.IsCronExpressionInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Schedule time invalid", "SCHEDULE_TIME_INVALID", err.Error())
		}
		if businessflow.IsInvalidStatusTransition(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign cannot be scheduled in current status", "INVALID_STATUS_TRANSITION", nil)
		}
		return h.campaignLookupError(c, err, "Campaign scheduling failed", "CAMPAIGN_SCHEDULE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign scheduled successfully", result)
}

// PauseCampaign suspends dispatch of a running campaign
// @Summary Pause Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignActionResponse}
// @Failure 409 {object} dto.APIResponse "Invalid status transition"
// @Router /api/v1/campaigns/{uuid}/pause [post]
func (h *CampaignHandler) PauseCampaign(c fiber.Ctx) error {
	return h.action(c, "pause", h.campaignFlow.PauseCampaign)
}

// ResumeCampaign restarts dispatch of a paused campaign
// @Summary Resume Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignActionResponse}
// @Failure 409 {object} dto.APIResponse "Invalid status transition"
// @Router /api/v1/campaigns/{uuid}/resume [post]
func (h *CampaignHandler) ResumeCampaign(c fiber.Ctx) error {
	return h.action(c, "resume", h.campaignFlow.ResumeCampaign)
}

// CancelCampaign terminally stops a campaign
// @Summary Cancel Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignActionResponse}
// @Failure 409 {object} dto.APIResponse "Invalid status transition"
// @Router /api/v1/campaigns/{uuid}/cancel [post]
func (h *CampaignHandler) CancelCampaign(c fiber.Ctx) error {
	return h.action(c, "cancel", h.campaignFlow.CancelCampaign)
}

// GetCampaignProgress reports dispatch progress of the latest pass
// @Summary Get Campaign Progress
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignProgressResponse}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{uuid}/progress [get]
func (h *CampaignHandler) GetCampaignProgress(c fiber.Ctx) error {
	req, errResp := h.actionRequest(c)
	if errResp != nil {
		return errResp
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.campaignFlow.GetCampaignProgress(h.createRequestContext(c, "/api/v1/campaigns/"+req.UUID+"/progress"), &dto.GetCampaignRequest{
		UUID:        req.UUID,
		WorkspaceID: req.WorkspaceID,
	}, metadata)
	if err != nil {
		return h.campaignLookupError(c, err, "Campaign progress retrieval failed", "CAMPAIGN_PROGRESS_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign progress retrieved successfully", result)
}

type actionFunc func(ctx context.Context, req *dto.CampaignActionRequest, metadata *businessflow.ClientMetadata) (*dto.CampaignActionResponse, error)

func (h *CampaignHandler) action(c fiber.Ctx, name string, fn actionFunc) error {
	req, errResp := h.actionRequest(c)
	if errResp != nil {
		return errResp
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := fn(h.createRequestContext(c, "/api/v1/campaigns/"+req.UUID+"/"+name), req, metadata)
	if err != nil {
		if businessflow.IsInvalidStatusTransition(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign cannot transition in current status", "INVALID_STATUS_TRANSITION", nil)
		}
		return h.campaignLookupError(c, err, "Campaign action failed", "CAMPAIGN_ACTION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

func (h *CampaignHandler) actionRequest(c fiber.Ctx) (*dto.CampaignActionRequest, error) {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}
	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return nil, h.ErrorResponse(c, fiber.StatusUnauthorized, "Workspace ID not found in context", "MISSING_WORKSPACE_ID", nil)
	}
	return &dto.CampaignActionRequest{UUID: campaignUUID, WorkspaceID: workspaceID}, nil
}

func (h *CampaignHandler) campaignLookupError(c fiber.Ctx, err error, message, code string) error {
	if businessflow.IsCampaignNotFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	}
	if businessflow.IsCampaignAccessDenied(err) {
		return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: campaign belongs to another workspace", "CAMPAIGN_ACCESS_DENIED", nil)
	}
	log.Println(message, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *CampaignHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *CampaignHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	// Add request-scoped values for observability
	ctx = context.WithValue(ctx, "request_id", c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, "user_agent", c.Get("User-Agent"))
	ctx = context.WithValue(ctx, "ip_address", c.IP())
	ctx = context.WithValue(ctx, "endpoint", endpoint)
	ctx = context.WithValue(ctx, "timeout", timeout)
	ctx = context.WithValue(ctx, "cancel_func", cancel) // Store cancel function for cleanup

	return ctx
}
