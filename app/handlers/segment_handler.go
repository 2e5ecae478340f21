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

// SegmentHandlerInterface defines the contract for segment handlers
type SegmentHandlerInterface interface {
	CreateSegment(c fiber.Ctx) error
	UpdateSegment(c fiber.Ctx) error
	ListSegments(c fiber.Ctx) error
	PreviewAudience(c fiber.Ctx) error
	RecalculateSegment(c fiber.Ctx) error
}

// SegmentHandler handles segment-related HTTP requests
type SegmentHandler struct {
	segmentFlow businessflow.SegmentFlow
	validator   *validator.Validate
}

// NewSegmentHandler creates a new segment handler
func NewSegmentHandler(segmentFlow businessflow.SegmentFlow) *SegmentHandler {
	return &SegmentHandler{
		segmentFlow: segmentFlow,
		validator:   validator.New(),
	}
}

func (h *SegmentHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SegmentHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateSegment handles segment creation
// @Summary Create Segment
// @Description Create a static or dynamic contact segment
// @Tags Segments
// @Accept json
// @Produce json
// @Param request body dto.CreateSegmentRequest true "Segment creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateSegmentResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/segments [post]
func (h *SegmentHandler) CreateSegment(c fiber.Ctx) error {
	var req dto.CreateSegmentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Workspace ID not found in context", "MISSING_WORKSPACE_ID", nil)
	}
	req.WorkspaceID = workspaceID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.segmentFlow.CreateSegment(h.createRequestContext(c, "/api/v1/segments"), &req, metadata)
	if err != nil {
		if businessflow.IsSegmentNameRequired(err) || businessflow.IsSegmentFilterInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Segment validation failed", "SEGMENT_VALIDATION_FAILED", err.Error())
		}
		log.Println("Segment creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Segment creation failed", "SEGMENT_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Segment created successfully", fiber.Map{
		"message": result.Message,
		"segment": result.Segment,
	})
}

// UpdateSegment handles segment updates
// @Summary Update Segment
// @Tags Segments
// @Accept json
// @Produce json
// @Param id path int true "Segment ID"
// @Param request body dto.UpdateSegmentRequest true "Segment update data"
// @Success 200 {object} dto.APIResponse{data=dto.UpdateSegmentResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Segment not found"
// @Router /api/v1/segments/{id} [put]
func (h *SegmentHandler) UpdateSegment(c fiber.Ctx) error {
	segmentID, errResp := h.segmentID(c)
	if errResp != nil {
		return errResp
	}

	var req dto.UpdateSegmentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.ID = segmentID

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Workspace ID not found in context", "MISSING_WORKSPACE_ID", nil)
	}
	req.WorkspaceID = workspaceID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.segmentFlow.UpdateSegment(h.createRequestContext(c, "/api/v1/segments"), &req, metadata)
	if err != nil {
		if businessflow.IsSegmentNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", "SEGMENT_NOT_FOUND", nil)
		}
		if businessflow.IsSegmentFilterInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Segment filter tree is invalid", "SEGMENT_FILTER_INVALID", err.Error())
		}
		log.Println("Segment update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Segment update failed", "SEGMENT_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Segment updated successfully", fiber.Map{
		"message": result.Message,
		"segment": result.Segment,
	})
}

// ListSegments returns the workspace's segments with pagination
// @Summary List Segments
// @Tags Segments
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page (max 100)" default(10)
// @Success 200 {object} dto.APIResponse{data=dto.ListSegmentsResponse}
// @Router /api/v1/segments [get]
func (h *SegmentHandler) ListSegments(c fiber.Ctx) error {
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

	req := &dto.ListSegmentsRequest{
		WorkspaceID: workspaceID,
		Page:        page,
		PageSize:    pageSize,
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.segmentFlow.ListSegments(h.createRequestContext(c, "/api/v1/segments"), req, metadata)
	if err != nil {
		log.Println("List segments failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list segments", "LIST_SEGMENTS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Segments retrieved successfully", fiber.Map{
		"message":   result.Message,
		"segments":  result.Segments,
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
	})
}

// PreviewAudience evaluates a filter tree and returns the match count
// @Summary Preview Audience
// @Description Evaluate a filter tree against the workspace's contacts without persisting a segment
// @Tags Segments
// @Accept json
// @Produce json
// @Param request body dto.PreviewAudienceRequest true "Filter tree to evaluate"
// @Success 200 {object} dto.APIResponse{data=dto.PreviewAudienceResponse}
// @Failure 400 {object} dto.APIResponse "Filter tree invalid"
// @Router /api/v1/segments/preview [post]
func (h *SegmentHandler) PreviewAudience(c fiber.Ctx) error {
	var req dto.PreviewAudienceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Workspace ID not found in context", "MISSING_WORKSPACE_ID", nil)
	}
	req.WorkspaceID = workspaceID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.segmentFlow.PreviewAudience(h.createRequestContext(c, "/api/v1/segments/preview"), &req, metadata)
	if err != nil {
		if businessflow.IsSegmentFilterInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Segment filter tree is invalid", "SEGMENT_FILTER_INVALID", err.Error())
		}
		log.Println("Audience preview failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Audience preview failed", "AUDIENCE_PREVIEW_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Audience preview computed", result)
}

// RecalculateSegment re-evaluates a dynamic segment's membership
// @Summary Recalculate Segment
// @Tags Segments
// @Produce json
// @Param id path int true "Segment ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse "Segment not found"
// @Router /api/v1/segments/{id}/recalculate [post]
func (h *SegmentHandler) RecalculateSegment(c fiber.Ctx) error {
	segmentID, errResp := h.segmentID(c)
	if errResp != nil {
		return errResp
	}

	count, err := h.segmentFlow.RecalculateSegment(h.createRequestContext(c, "/api/v1/segments/recalculate"), segmentID)
	if err != nil {
		if businessflow.IsSegmentNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", "SEGMENT_NOT_FOUND", nil)
		}
		log.Println("Segment recalculation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Segment recalculation failed", "SEGMENT_RECALCULATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Segment recalculated successfully", fiber.Map{
		"contact_count": count,
	})
}

func (h *SegmentHandler) segmentID(c fiber.Ctx) (uint, error) {
	idStr := c.Params("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, h.ErrorResponse(c, fiber.StatusBadRequest, "Segment ID is invalid", "INVALID_SEGMENT_ID", nil)
	}
	return uint(id), nil
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *SegmentHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, "request_id", c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, "user_agent", c.Get("User-Agent"))
	ctx = context.WithValue(ctx, "ip_address", c.IP())
	ctx = context.WithValue(ctx, "endpoint", endpoint)
	ctx = context.WithValue(ctx, "cancel_func", cancel) // Store cancel function for cleanup

	return ctx
}
