package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"coai-backend/core/marketplace"
	"coai-backend/middleware"
	"coai-backend/models"
	"coai-backend/services"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct{}

// NewBaseHandler creates a new base handler
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// sendJSON sends a JSON response
func (h *BaseHandler) sendJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// sendError sends an error response
func (h *BaseHandler) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, models.NewErrorResponse(message, statusCode))
}

// sendSuccess sends a success response
func (h *BaseHandler) sendSuccess(w http.ResponseWriter, data any) {
	h.sendJSON(w, http.StatusOK, models.NewSuccessResponse(data))
}

// sendCreated sends a 201 success response
func (h *BaseHandler) sendCreated(w http.ResponseWriter, data any) {
	h.sendJSON(w, http.StatusCreated, models.NewSuccessResponse(data))
}

// parseJSON parses JSON from request
func (h *BaseHandler) parseJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// sendServiceError maps marketplace errors onto HTTP statuses.
func (h *BaseHandler) sendServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	var me *marketplace.Error
	if errors.As(err, &me) {
		h.sendJSON(w, status, models.NewKindErrorResponse(me, status))
		return
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
		msg = "internal server error"
	}
	h.sendError(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, marketplace.ErrSettlementFailed):
		return http.StatusBadGateway
	case errors.Is(err, marketplace.ErrSuggesterUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, marketplace.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, marketplace.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, marketplace.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, marketplace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// actor returns the authenticated caller or writes a 401.
func (h *BaseHandler) actor(w http.ResponseWriter, r *http.Request) (marketplace.User, bool) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		h.sendError(w, http.StatusUnauthorized, "Not authorized")
		return marketplace.User{}, false
	}
	return a.User, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// HealthHandler handles health check requests
type HealthHandler struct {
	*BaseHandler
	healthService *services.HealthService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthService *services.HealthService) *HealthHandler {
	return &HealthHandler{
		BaseHandler:   NewBaseHandler(),
		healthService: healthService,
	}
}

// HandleHealth handles health check requests
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /healthz [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.healthService.GetHealthStatus())
}
