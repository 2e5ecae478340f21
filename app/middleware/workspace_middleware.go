// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/pagepulse/pagepulse/app/dto"
	"github.com/pagepulse/pagepulse/config"
)

// WorkspaceMiddleware resolves the calling workspace for protected endpoints.
// Workspace identity arrives as the X-Workspace-ID header set by the edge
// gateway after it has authenticated the caller; this service only enforces
// the optional shared API key.
type WorkspaceMiddleware struct {
	security config.SecurityConfig
}

// NewWorkspaceMiddleware creates a new workspace resolution middleware
func NewWorkspaceMiddleware(security config.SecurityConfig) *WorkspaceMiddleware {
	return &WorkspaceMiddleware{security: security}
}

// Resolve validates the API key and stores the workspace ID in the request
// context for downstream handlers
func (m *WorkspaceMiddleware) Resolve() fiber.Handler {
	return func(c fiber.Ctx) error {
		if m.security.RequireAPIKey {
			apiKey := c.Get(m.security.APIKeyHeader)
			if apiKey == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
					Success: false,
					Message: "API key is required",
					Error:   dto.ErrorDetail{Code: "MISSING_API_KEY"},
				})
			}
			if !m.validAPIKey(apiKey) {
				return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
					Success: false,
					Message: "Invalid API key",
					Error:   dto.ErrorDetail{Code: "INVALID_API_KEY"},
				})
			}
		}

		workspaceHeader := c.Get("X-Workspace-ID")
		if workspaceHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Workspace ID header is required",
				Error:   dto.ErrorDetail{Code: "MISSING_WORKSPACE_ID"},
			})
		}
		workspaceID, err := strconv.ParseUint(workspaceHeader, 10, 32)
		if err != nil || workspaceID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Workspace ID header is invalid",
				Error:   dto.ErrorDetail{Code: "INVALID_WORKSPACE_ID"},
			})
		}

		c.Locals("workspace_id", uint(workspaceID))

		// Store RequestID for audit logging
		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

func (m *WorkspaceMiddleware) validAPIKey(key string) bool {
	for _, allowed := range m.security.AllowedAPIKeys {
		if key == allowed {
			return true
		}
	}
	return false
}
