package handlers

import (
	"net/http"

	"coai-backend/core/marketplace"
	"coai-backend/models"
)

// UserHandler exposes profiles, applications and stats.
type UserHandler struct {
	*BaseHandler
	users  *marketplace.UserService
	tasks  *marketplace.LifecycleManager
	settle *marketplace.SettlementService
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users *marketplace.UserService, tasks *marketplace.LifecycleManager, settle *marketplace.SettlementService) *UserHandler {
	return &UserHandler{BaseHandler: NewBaseHandler(), users: users, tasks: tasks, settle: settle}
}

// subject resolves {id}, where "me" is the caller, and requires the caller
// to be that user or an admin.
func (h *UserHandler) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := h.actor(w, r)
	if !ok {
		return "", false
	}
	id := r.PathValue("id")
	if id == "" || id == "me" {
		return user.ID, true
	}
	if id != user.ID && user.Role != marketplace.RoleAdmin {
		h.sendServiceError(w, marketplace.AuthorizationError("not allowed to view another user's account"))
		return "", false
	}
	return id, true
}

// HandleGet returns the public profile of the user with the given id.
// @Summary Public profile
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} marketplace.User
// @Router /api/users/{id} [get]
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, user)
}

// HandleByWallet returns the public profile linked to a wallet address.
// @Summary Profile by wallet
// @Tags Users
// @Produce json
// @Param walletAddress path string true "Wallet address"
// @Success 200 {object} marketplace.User
// @Router /api/users/wallet/{walletAddress} [get]
func (h *UserHandler) HandleByWallet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByWallet(r.Context(), r.PathValue("walletAddress"))
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, user)
}

// HandleList returns every account. Admin only.
// @Summary All users
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {array} marketplace.User
// @Router /api/users [get]
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, models.NewSuccessResponseWithMeta(users, map[string]any{"count": len(users)}))
}

// HandleView serves the per-user sub-resources under /api/users/{id}/.
func (h *UserHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("view") {
	case "stats":
		h.HandleStats(w, r)
	case "applications":
		h.HandleApplications(w, r)
	default:
		h.sendError(w, http.StatusNotFound, "not found")
	}
}

// HandleUpdateProfile patches the caller's own name, email, bio and skills.
// @Summary Update my profile
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.ProfileRequest true "Profile fields"
// @Success 200 {object} marketplace.User
// @Router /api/users/me [put]
// @Router /api/users/profile [put]
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body models.ProfileRequest
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	updated, err := h.users.UpdateProfile(r.Context(), user.ID, body.Patch())
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, updated)
}

// HandleApplications lists the applications a user has made. Callers may
// only view their own unless they are admins.
// @Summary Applications a user made
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID or me"
// @Success 200 {array} marketplace.UserApplication
// @Router /api/users/{id}/applications [get]
func (h *UserHandler) HandleApplications(w http.ResponseWriter, r *http.Request) {
	id, ok := h.subject(w, r)
	if !ok {
		return
	}
	apps, err := h.tasks.ListApplications(r.Context(), id)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, apps)
}

// HandleTasks lists tasks the caller created and tasks assigned to them.
// @Summary My tasks
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string][]marketplace.Task
// @Router /api/users/me/tasks [get]
func (h *UserHandler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	created, err := h.tasks.ListTasks(r.Context(), marketplace.TaskFilter{CreatorID: user.ID, Limit: marketplace.MaxPageLimit})
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	assigned, err := h.tasks.ListTasks(r.Context(), marketplace.TaskFilter{AssignedTo: user.ID, Limit: marketplace.MaxPageLimit})
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, map[string][]marketplace.Task{
		"created_tasks":  created.Tasks,
		"assigned_tasks": assigned.Tasks,
	})
}

// HandleStats reports balance and task counts for a user, with the same
// access rule as HandleApplications.
// @Summary Account statistics
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID or me"
// @Success 200 {object} marketplace.UserStats
// @Router /api/users/{id}/stats [get]
func (h *UserHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.subject(w, r)
	if !ok {
		return
	}
	stats, err := h.settle.UserStats(r.Context(), id)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, stats)
}
