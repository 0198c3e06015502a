package handlers

import (
	"net/http"

	"coai-backend/core/marketplace"
	"coai-backend/models"
)

// AIHandler exposes AI assistance.
type AIHandler struct {
	*BaseHandler
	assist *marketplace.AssistService
}

// NewAIHandler builds an AIHandler.
func NewAIHandler(assist *marketplace.AssistService) *AIHandler {
	return &AIHandler{BaseHandler: NewBaseHandler(), assist: assist}
}

// HandleSuggestions
// @Summary Suggestions for a task draft
// @Tags AI
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.SuggestionsRequest true "Task draft"
// @Success 200 {array} string
// @Failure 503 {object} models.APIResponse
// @Router /api/ai/suggestions [post]
func (h *AIHandler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	var body models.SuggestionsRequest
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	items, err := h.assist.Suggest(r.Context(), marketplace.SuggestionRequest{
		Title:          body.Title,
		Description:    body.Description,
		Category:       body.Category,
		RequiredSkills: body.RequiredSkills,
		Count:          body.Count,
	})
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, items)
}

// HandleContribute
// @Summary Ask the AI about a task
// @Description Creator or assignee only. The answer is stored on the task.
// @Tags AI
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Param body body models.ContributeRequest true "Question"
// @Success 200 {object} marketplace.AIContribution
// @Router /api/ai/contribute/{taskId} [post]
func (h *AIHandler) HandleContribute(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body models.ContributeRequest
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	c, err := h.assist.Contribute(r.Context(), r.PathValue("taskId"), user.ID, body.Query)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, c)
}

// HandleSkillRecommendations
// @Summary Skills to learn next
// @Tags AI
// @Produce json
// @Security BearerAuth
// @Success 200 {array} string
// @Router /api/ai/skill-recommendations [get]
func (h *AIHandler) HandleSkillRecommendations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	items, err := h.assist.SkillRecommendations(r.Context(), user.ID)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, items)
}
