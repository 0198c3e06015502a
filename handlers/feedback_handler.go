package handlers

import (
	"net/http"

	"coai-backend/core/marketplace"
)

// FeedbackHandler exposes ratings between task participants.
type FeedbackHandler struct {
	*BaseHandler
	feedback *marketplace.FeedbackService
}

// NewFeedbackHandler builds a FeedbackHandler.
func NewFeedbackHandler(feedback *marketplace.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{BaseHandler: NewBaseHandler(), feedback: feedback}
}

// HandleCreate
// @Summary Leave feedback
// @Tags Feedback
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body marketplace.FeedbackInput true "Feedback"
// @Success 201 {object} marketplace.Feedback
// @Router /api/feedback [post]
func (h *FeedbackHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body marketplace.FeedbackInput
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	fb, err := h.feedback.CreateFeedback(r.Context(), user.ID, body)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendCreated(w, fb)
}

// HandleUser
// @Summary Feedback received by a user
// @Tags Feedback
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {array} marketplace.Feedback
// @Router /api/feedback/user/{userId} [get]
func (h *FeedbackHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	list, err := h.feedback.UserFeedback(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, list)
}

// HandleTask
// @Summary Feedback left on a task
// @Tags Feedback
// @Produce json
// @Param taskId path string true "Task ID"
// @Success 200 {array} marketplace.Feedback
// @Router /api/feedback/task/{taskId} [get]
func (h *FeedbackHandler) HandleTask(w http.ResponseWriter, r *http.Request) {
	list, err := h.feedback.TaskFeedback(r.Context(), r.PathValue("taskId"))
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, list)
}
