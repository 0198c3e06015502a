package handlers

import (
	"net/http"
	"strconv"

	"coai-backend/core/marketplace"
	"coai-backend/models"
)

// TaskHandler exposes the task lifecycle.
type TaskHandler struct {
	*BaseHandler
	tasks *marketplace.LifecycleManager
}

// NewTaskHandler builds a TaskHandler.
func NewTaskHandler(tasks *marketplace.LifecycleManager) *TaskHandler {
	return &TaskHandler{BaseHandler: NewBaseHandler(), tasks: tasks}
}

func parseTaskFilter(r *http.Request) (marketplace.TaskFilter, error) {
	q := r.URL.Query()
	f := marketplace.TaskFilter{
		Status:     marketplace.TaskStatus(q.Get("status")),
		Category:   q.Get("category"),
		Skills:     splitList(q.Get("skills")),
		Keyword:    q.Get("search"),
		CreatorID:  q.Get("creator"),
		AssignedTo: q.Get("assignee"),
		Sort:       q.Get("sort"),
	}
	if f.Keyword == "" {
		f.Keyword = q.Get("keyword")
	}
	for name, dst := range map[string]*int{"page": &f.Page, "limit": &f.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, marketplace.ValidationError(name, "%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return f, nil
}

// HandleList lists tasks.
// @Summary List tasks
// @Description Filter by status, category, skills (comma separated), keyword, creator or assignee. Sorted newest first unless sort is given.
// @Tags Tasks
// @Produce json
// @Param status query string false "draft|open|assigned|in-progress|completed|cancelled"
// @Param category query string false "Category"
// @Param skills query string false "Comma separated skills"
// @Param search query string false "Keyword"
// @Param sort query string false "-created_at|created_at|price|-price|deadline|-deadline"
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size (default 10, max 100)"
// @Success 200 {object} marketplace.TaskPage
// @Router /api/tasks [get]
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTaskFilter(r)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	page, err := h.tasks.ListTasks(r.Context(), filter)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, models.NewSuccessResponseWithMeta(page.Tasks, map[string]any{
		"total": page.Total,
		"page":  page.Page,
		"limit": page.Limit,
		"pages": page.Pages,
	}))
}

// HandleGet returns a single task.
// @Summary Get a task
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} marketplace.Task
// @Failure 404 {object} models.APIResponse
// @Router /api/tasks/{id} [get]
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

// HandleCreate creates a task owned by the caller.
// @Summary Create a task
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.CreateTaskRequest true "Task"
// @Success 201 {object} marketplace.Task
// @Failure 400 {object} models.APIResponse
// @Router /api/tasks [post]
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body models.CreateTaskRequest
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	task, err := h.tasks.CreateTask(r.Context(), user.ID, body.Input())
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendCreated(w, task)
}

// HandleUpdate patches a task.
// @Summary Update a task
// @Description Price, skills, deadline and AI level can only change while the task is draft or open.
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Param body body models.UpdateTaskRequest true "Fields to change"
// @Success 200 {object} marketplace.Task
// @Failure 409 {object} models.APIResponse
// @Router /api/tasks/{id} [put]
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body models.UpdateTaskRequest
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	task, err := h.tasks.UpdateTask(r.Context(), r.PathValue("id"), user.ID, body.Patch())
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

// HandleDelete removes a draft or open task.
// @Summary Delete a task
// @Tags Tasks
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Success 200 {object} models.APIResponse
// @Router /api/tasks/{id} [delete]
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.tasks.DeleteTask(r.Context(), r.PathValue("id"), user.ID); err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, map[string]string{"deleted": r.PathValue("id")})
}

// HandleApply records an application by the caller.
// @Summary Apply for a task
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Param body body models.ApplyRequest true "Application"
// @Success 200 {object} marketplace.Task
// @Router /api/tasks/{id}/apply [post]
func (h *TaskHandler) HandleApply(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body models.ApplyRequest
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	task, err := h.tasks.ApplyForTask(r.Context(), r.PathValue("id"), user.ID, marketplace.ApplyInput{
		Message:          body.Message,
		ProposedPrice:    body.ProposedPrice,
		ProposedDeadline: body.ProposedDeadline,
	})
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

// HandleAccept accepts an application. The id comes from the path or the body.
// @Summary Accept an application
// @Tags Tasks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Param applicationId path string true "Application ID"
// @Success 200 {object} marketplace.Task
// @Router /api/tasks/{id}/applications/{applicationId}/accept [post]
// @Router /api/tasks/{id}/accept [post]
func (h *TaskHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	appID := r.PathValue("applicationId")
	if appID == "" {
		var body models.AcceptRequest
		if err := h.parseJSON(r, &body); err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
		appID = body.ApplicationID
	}
	if appID == "" {
		h.sendServiceError(w, marketplace.ValidationError("application_id", "application id is required"))
		return
	}
	task, err := h.tasks.AcceptApplication(r.Context(), r.PathValue("id"), user.ID, appID)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

type transitionFunc func(h *TaskHandler, r *http.Request, taskID, actorID string) (marketplace.Task, error)

// HandleTransition builds a handler for one lifecycle move:
// publish, start, complete or cancel.
// @Summary Move a task through its lifecycle
// @Tags Tasks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Success 200 {object} marketplace.Task
// @Failure 409 {object} models.APIResponse
// @Router /api/tasks/{id}/publish [post]
// @Router /api/tasks/{id}/start [post]
// @Router /api/tasks/{id}/complete [post]
// @Router /api/tasks/{id}/cancel [post]
func (h *TaskHandler) HandleTransition(move string) http.HandlerFunc {
	moves := map[string]transitionFunc{
		"publish": func(h *TaskHandler, r *http.Request, id, actor string) (marketplace.Task, error) {
			return h.tasks.PublishTask(r.Context(), id, actor)
		},
		"start": func(h *TaskHandler, r *http.Request, id, actor string) (marketplace.Task, error) {
			return h.tasks.StartTask(r.Context(), id, actor)
		},
		"complete": func(h *TaskHandler, r *http.Request, id, actor string) (marketplace.Task, error) {
			return h.tasks.ApproveTask(r.Context(), id, actor)
		},
		"cancel": func(h *TaskHandler, r *http.Request, id, actor string) (marketplace.Task, error) {
			return h.tasks.CancelTask(r.Context(), id, actor)
		},
	}
	fn, ok := moves[move]
	if !ok {
		panic("handlers: unknown task transition " + move)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.actor(w, r)
		if !ok {
			return
		}
		task, err := fn(h, r, r.PathValue("id"), user.ID)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendSuccess(w, task)
	}
}
