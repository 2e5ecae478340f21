// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/pagepulse/pagepulse/app/dto"
	businessflow "github.com/pagepulse/pagepulse/business_flow"
	"github.com/pagepulse/pagepulse/utils"
)

// WebhookHandlerInterface defines the contract for platform webhook handlers
type WebhookHandlerInterface interface {
	ApplyEngagement(c fiber.Ctx) error
}

// WebhookHandler ingests platform delivery and engagement events
type WebhookHandler struct {
	statsFlow businessflow.StatsFlow
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(statsFlow businessflow.StatsFlow) *WebhookHandler {
	return &WebhookHandler{statsFlow: statsFlow}
}

func (h *WebhookHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *WebhookHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ApplyEngagement records a delivery, open, click, reply or unsubscribe event
// against a sent message. Duplicate events are acknowledged without effect.
// @Summary Apply Engagement Event
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body dto.EngagementWebhookRequest true "Engagement event"
// @Success 200 {object} dto.APIResponse "Event applied"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 404 {object} dto.APIResponse "Sent message not found"
// @Router /api/v1/webhooks/engagement [post]
func (h *WebhookHandler) ApplyEngagement(c fiber.Ctx) error {
	var req dto.EngagementWebhookRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if req.TrackingID == "" || req.Event == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "tracking_id and event are required", "INVALID_REQUEST", nil)
	}

	at := utils.UTCNow()
	if req.Timestamp != nil {
		at = req.Timestamp.UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := h.statsFlow.ApplyEngagement(ctx, req.TrackingID, businessflow.EngagementEvent(req.Event), at)
	if err != nil {
		if businessflow.IsSentMessageNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Sent message not found", "SENT_MESSAGE_NOT_FOUND", nil)
		}
		log.Println("Engagement event application failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Engagement event application failed", "ENGAGEMENT_APPLY_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Engagement event applied", nil)
}
