package marketplace

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength     = 100
	DefaultPageLimit   = 10
	MaxPageLimit       = 100
	maxTaskSuggestions = 5
)

var transitions = map[TaskStatus][]TaskStatus{
	TaskDraft:      {TaskOpen, TaskCancelled},
	TaskOpen:       {TaskAssigned, TaskCancelled},
	TaskAssigned:   {TaskInProgress, TaskCompleted, TaskCancelled},
	TaskInProgress: {TaskCompleted},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to TaskStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskDraft, TaskOpen, TaskAssigned, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// Editable reports whether price, skills, deadline and AI level may still change.
func (s TaskStatus) Editable() bool {
	return s == TaskDraft || s == TaskOpen
}

// HasAssignee reports whether a task in status s must carry an assignee.
func (s TaskStatus) HasAssignee() bool {
	return s == TaskAssigned || s == TaskInProgress || s == TaskCompleted
}

// CreateTaskInput holds the fields of a new task. A nil Price is missing.
type CreateTaskInput struct {
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Category          string            `json:"category"`
	RequiredSkills    []string          `json:"required_skills"`
	Price             *Money            `json:"price"`
	Deadline          time.Time         `json:"deadline"`
	AIAssistanceLevel AIAssistanceLevel `json:"ai_assistance_level"`
	Draft             bool              `json:"draft"`
	Metadata          Metadata          `json:"metadata"`
}

// TaskPatch is a partial update. Nil fields are left alone.
type TaskPatch struct {
	Title             *string            `json:"title,omitempty"`
	Description       *string            `json:"description,omitempty"`
	Category          *string            `json:"category,omitempty"`
	RequiredSkills    []string           `json:"required_skills,omitempty"`
	Price             *Money             `json:"price,omitempty"`
	Deadline          *time.Time         `json:"deadline,omitempty"`
	AIAssistanceLevel *AIAssistanceLevel `json:"ai_assistance_level,omitempty"`
	Metadata          Metadata           `json:"metadata,omitempty"`
}

func (p TaskPatch) restricted() []string {
	var fields []string
	if p.Price != nil {
		fields = append(fields, "price")
	}
	if p.RequiredSkills != nil {
		fields = append(fields, "required_skills")
	}
	if p.Deadline != nil {
		fields = append(fields, "deadline")
	}
	if p.AIAssistanceLevel != nil {
		fields = append(fields, "ai_assistance_level")
	}
	return fields
}

// ApplyInput is a worker's bid.
type ApplyInput struct {
	Message          string    `json:"message"`
	ProposedPrice    *Money    `json:"proposed_price"`
	ProposedDeadline time.Time `json:"proposed_deadline"`
}

// UserApplication is an application together with the task it was made on.
type UserApplication struct {
	TaskID     string     `json:"task_id"`
	TaskTitle  string     `json:"task_title"`
	TaskStatus TaskStatus `json:"task_status"`
	Application
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Pages int    `json:"pages"`
}

// LifecycleManager owns task state and field mutation rules.
type LifecycleManager struct {
	store Store
	options
}

// NewLifecycleManager creates a lifecycle manager over store.
func NewLifecycleManager(store Store, opts ...Option) *LifecycleManager {
	return &LifecycleManager{store: store, options: buildOptions(opts)}
}

// CreateTask validates in and stores a new open (or draft) task owned by ownerID.
func (m *LifecycleManager) CreateTask(ctx context.Context, ownerID string, in CreateTaskInput) (Task, error) {
	if err := m.validateCreate(in); err != nil {
		return Task{}, err
	}
	if _, err := m.store.GetUser(ctx, ownerID); err != nil {
		return Task{}, err
	}

	now := m.now()
	level := in.AIAssistanceLevel
	if level == "" {
		level = AIMedium
	}
	status := TaskOpen
	if in.Draft {
		status = TaskDraft
	}
	task := Task{
		ID:                m.newID(),
		Title:             strings.TrimSpace(in.Title),
		Description:       strings.TrimSpace(in.Description),
		Category:          strings.TrimSpace(in.Category),
		RequiredSkills:    normalizeSkills(in.RequiredSkills),
		Price:             *in.Price,
		Deadline:          in.Deadline.UTC(),
		AIAssistanceLevel: level,
		CreatorID:         ownerID,
		Status:            status,
		Applications:      []Application{},
		Metadata:          in.Metadata.Clone(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if level != AILow && m.suggester != nil {
		task.AIContributions = m.suggestionsFor(ctx, task)
	}

	err := m.store.Atomic(ctx, func(tx Tx) error {
		if err := tx.SaveTask(ctx, task); err != nil {
			return err
		}
		_, err := tx.ApplyUserDelta(ctx, ownerID, UserDelta{TotalTasksCreated: 1})
		return err
	})
	if err != nil {
		return Task{}, err
	}
	m.recorder.TaskTransition("", task.Status)
	log.Printf("task %s created by %s (status=%s price=%s)", task.ID, ownerID, task.Status, task.Price)
	return task, nil
}

func (m *LifecycleManager) suggestionsFor(ctx context.Context, t Task) []AIContribution {
	seq, err := m.suggester.Suggest(ctx, SuggestionRequest{
		Title:          t.Title,
		Description:    t.Description,
		Category:       t.Category,
		RequiredSkills: t.RequiredSkills,
		Count:          3,
	})
	if err != nil {
		m.recorder.SuggestionFailure()
		log.Printf("task %s: AI suggestions unavailable: %v", t.ID, err)
		return nil
	}
	var out []AIContribution
	for s := range seq {
		out = append(out, AIContribution{Suggestion: s, Category: ContributionRecommendation, CreatedAt: t.CreatedAt})
		if len(out) == maxTaskSuggestions {
			break
		}
	}
	return out
}

func (m *LifecycleManager) validateCreate(in CreateTaskInput) error {
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	if strings.TrimSpace(in.Description) == "" {
		return ValidationError("description", "description is required")
	}
	if in.Price == nil {
		return ValidationError("price", "price is required")
	}
	if err := validatePrice("price", *in.Price); err != nil {
		return err
	}
	if err := m.validateDeadline(in.Deadline); err != nil {
		return err
	}
	if err := validateSkills(in.RequiredSkills); err != nil {
		return err
	}
	if in.AIAssistanceLevel != "" && !in.AIAssistanceLevel.Valid() {
		return ValidationError("ai_assistance_level", "unknown AI assistance level %q", in.AIAssistanceLevel)
	}
	return in.Metadata.Validate()
}

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ValidationError("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ValidationError("title", "title cannot exceed %d characters", MaxTitleLength)
	}
	return nil
}

func validatePrice(field string, p Money) error {
	if p < 0 {
		return ValidationError(field, "%s cannot be negative", field)
	}
	if p > MaxAmount {
		return ValidationError(field, "%s cannot exceed %s", field, MaxAmount)
	}
	return nil
}

func validateSkills(skills []string) error {
	if len(normalizeSkills(skills)) == 0 {
		return ValidationError("required_skills", "at least one required skill is needed")
	}
	return nil
}

func (m *LifecycleManager) validateDeadline(d time.Time) error {
	if d.IsZero() {
		return ValidationError("deadline", "deadline is required")
	}
	if m.policy.RequireFutureDeadline && !d.After(m.now()) {
		return ValidationError("deadline", "deadline must be in the future")
	}
	return nil
}

func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// UpdateTask applies patch on behalf of the task creator.
func (m *LifecycleManager) UpdateTask(ctx context.Context, taskID, actorID string, patch TaskPatch) (Task, error) {
	var out Task
	err := m.store.Atomic(ctx, func(tx Tx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.CreatorID != actorID {
			return AuthorizationError("only the task creator can update this task")
		}
		if fields := patch.restricted(); len(fields) > 0 && !task.Status.Editable() {
			return ConflictError("cannot change %s of a task in status %s", strings.Join(fields, ", "), task.Status)
		}
		if err := m.applyPatch(&task, patch); err != nil {
			return err
		}
		task.UpdatedAt = m.now()
		out = task
		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

func (m *LifecycleManager) applyPatch(task *Task, p TaskPatch) error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
		task.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		if strings.TrimSpace(*p.Description) == "" {
			return ValidationError("description", "description cannot be empty")
		}
		task.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		task.Category = strings.TrimSpace(*p.Category)
	}
	if p.RequiredSkills != nil {
		if err := validateSkills(p.RequiredSkills); err != nil {
			return err
		}
		task.RequiredSkills = normalizeSkills(p.RequiredSkills)
	}
	if p.Price != nil {
		if err := validatePrice("price", *p.Price); err != nil {
			return err
		}
		task.Price = *p.Price
	}
	if p.Deadline != nil {
		if err := m.validateDeadline(*p.Deadline); err != nil {
			return err
		}
		task.Deadline = p.Deadline.UTC()
	}
	if p.AIAssistanceLevel != nil {
		if !p.AIAssistanceLevel.Valid() {
			return ValidationError("ai_assistance_level", "unknown AI assistance level %q", *p.AIAssistanceLevel)
		}
		task.AIAssistanceLevel = *p.AIAssistanceLevel
	}
	if p.Metadata != nil {
		if err := p.Metadata.Validate(); err != nil {
			return err
		}
		task.Metadata = p.Metadata.Clone()
	}
	return nil
}

// DeleteTask removes a draft or open task and decrements the creator's counter.
func (m *LifecycleManager) DeleteTask(ctx context.Context, taskID, actorID string) error {
	err := m.store.Atomic(ctx, func(tx Tx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.CreatorID != actorID {
			return AuthorizationError("only the task creator can delete this task")
		}
		if !task.Status.Editable() {
			return ConflictError("cannot delete a task in status %s", task.Status)
		}
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return err
		}
		_, err = tx.ApplyUserDelta(ctx, task.CreatorID, UserDelta{TotalTasksCreated: -1})
		return err
	})
	if err != nil {
		return err
	}
	log.Printf("task %s deleted by %s", taskID, actorID)
	return nil
}

// PublishTask moves a draft to open.
func (m *LifecycleManager) PublishTask(ctx context.Context, taskID, actorID string) (Task, error) {
	return m.transition(ctx, taskID, TaskOpen, func(task *Task) error {
		if task.CreatorID != actorID {
			return AuthorizationError("only the task creator can publish this task")
		}
		return nil
	})
}

// StartTask marks an assigned task as in progress. Only the assignee may start it.
func (m *LifecycleManager) StartTask(ctx context.Context, taskID, actorID string) (Task, error) {
	return m.transition(ctx, taskID, TaskInProgress, func(task *Task) error {
		if task.AssignedTo != actorID {
			return AuthorizationError("only the assignee can start this task")
		}
		return nil
	})
}

// CancelTask cancels a draft, open or assigned task on behalf of its creator.
func (m *LifecycleManager) CancelTask(ctx context.Context, taskID, actorID string) (Task, error) {
	return m.transition(ctx, taskID, TaskCancelled, func(task *Task) error {
		if task.CreatorID != actorID {
			return AuthorizationError("only the task creator can cancel this task")
		}
		task.AssignedTo = ""
		return nil
	})
}

// CompleteTask marks an assigned or in-progress task completed. Completing a
// completed task returns it unchanged.
func (m *LifecycleManager) CompleteTask(ctx context.Context, taskID string) (Task, error) {
	return m.complete(ctx, taskID, func(*Task) error { return nil })
}

// ApproveTask completes a task on behalf of its creator.
func (m *LifecycleManager) ApproveTask(ctx context.Context, taskID, actorID string) (Task, error) {
	return m.complete(ctx, taskID, func(task *Task) error {
		if task.CreatorID != actorID {
			return AuthorizationError("only the task creator can mark this task completed")
		}
		return nil
	})
}

func (m *LifecycleManager) complete(ctx context.Context, taskID string, check func(*Task) error) (Task, error) {
	var (
		out  Task
		from TaskStatus
		noop bool
	)
	err := m.store.Atomic(ctx, func(tx Tx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := check(&task); err != nil {
			return err
		}
		if task.Status == TaskCompleted {
			out, noop = task, true
			return nil
		}
		if !CanTransition(task.Status, TaskCompleted) {
			return ConflictError("cannot complete a task in status %s", task.Status)
		}
		now := m.now()
		from = task.Status
		task.Status = TaskCompleted
		task.CompletionDate = &now
		task.UpdatedAt = now
		out = task
		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return Task{}, err
	}
	if !noop {
		m.recorder.TaskTransition(from, TaskCompleted)
		log.Printf("task %s completed", taskID)
	}
	return out, nil
}

func (m *LifecycleManager) transition(ctx context.Context, taskID string, to TaskStatus, mutate func(*Task) error) (Task, error) {
	var (
		out  Task
		from TaskStatus
	)
	err := m.store.Atomic(ctx, func(tx Tx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		from = task.Status
		if err := mutate(&task); err != nil {
			return err
		}
		if !CanTransition(from, to) {
			return ConflictError("cannot move task from %s to %s", from, to)
		}
		task.Status = to
		task.UpdatedAt = m.now()
		out = task
		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return Task{}, err
	}
	m.recorder.TaskTransition(from, to)
	log.Printf("task %s: %s -> %s", taskID, from, to)
	return out, nil
}

// ApplyForTask appends a pending application from applicantID.
func (m *LifecycleManager) ApplyForTask(ctx context.Context, taskID, applicantID string, in ApplyInput) (Task, error) {
	if strings.TrimSpace(in.Message) == "" {
		return Task{}, ValidationError("message", "application message is required")
	}
	if in.ProposedPrice == nil {
		return Task{}, ValidationError("proposed_price", "proposed price is required")
	}
	if err := validatePrice("proposed_price", *in.ProposedPrice); err != nil {
		return Task{}, err
	}
	if in.ProposedDeadline.IsZero() {
		return Task{}, ValidationError("proposed_deadline", "proposed deadline is required")
	}

	var out Task
	err := m.store.Atomic(ctx, func(tx Tx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status != TaskOpen {
			return ConflictError("task is not open for applications")
		}
		if task.CreatorID == applicantID {
			return ConflictError("you cannot apply to your own task")
		}
		for _, a := range task.Applications {
			if a.ApplicantID == applicantID && a.Status != ApplicationRejected {
				return ConflictError("you have already applied for this task")
			}
		}
		if _, err := tx.GetUser(ctx, applicantID); err != nil {
			return err
		}
		now := m.now()
		task.Applications = append(task.Applications, Application{
			ID:               m.newID(),
			ApplicantID:      applicantID,
			Message:          strings.TrimSpace(in.Message),
			ProposedPrice:    *in.ProposedPrice,
			ProposedDeadline: in.ProposedDeadline.UTC(),
			Status:           ApplicationPending,
			CreatedAt:        now,
		})
		task.UpdatedAt = now
		out = task
		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return Task{}, err
	}
	log.Printf("task %s: application from %s", taskID, applicantID)
	return out, nil
}

// AcceptApplication assigns the task to the application's author and adopts
// their proposed price and deadline.
func (m *LifecycleManager) AcceptApplication(ctx context.Context, taskID, actorID, applicationID string) (Task, error) {
	var out Task
	err := m.store.Atomic(ctx, func(tx Tx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.CreatorID != actorID {
			return AuthorizationError("only the task creator can accept applications")
		}
		if task.Status != TaskOpen {
			return ConflictError("task is not open")
		}
		app, ok := task.Application(applicationID)
		if !ok {
			return ConflictError("application %s not found on task %s", applicationID, taskID)
		}
		if app.Status != ApplicationPending {
			return ConflictError("application %s is %s", applicationID, app.Status)
		}
		app.Status = ApplicationAccepted
		task.AssignedTo = app.ApplicantID
		task.Price = app.ProposedPrice
		task.Deadline = app.ProposedDeadline
		if m.policy.RejectPendingOnAccept {
			for i := range task.Applications {
				if task.Applications[i].Status == ApplicationPending {
					task.Applications[i].Status = ApplicationRejected
				}
			}
		}
		task.Status = TaskAssigned
		task.UpdatedAt = m.now()
		out = task
		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return Task{}, err
	}
	m.recorder.TaskTransition(TaskOpen, TaskAssigned)
	log.Printf("task %s assigned to %s at %s", taskID, out.AssignedTo, out.Price)
	return out, nil
}

// GetTask returns one task.
func (m *LifecycleManager) GetTask(ctx context.Context, taskID string) (Task, error) {
	return m.store.GetTask(ctx, taskID)
}

// ListTasks returns one page of matching tasks.
func (m *LifecycleManager) ListTasks(ctx context.Context, filter TaskFilter) (TaskPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return TaskPage{}, ValidationError("status", "unknown status %q", filter.Status)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageLimit
	}
	if filter.Limit > MaxPageLimit {
		filter.Limit = MaxPageLimit
	}
	tasks, total, err := m.store.ListTasks(ctx, filter)
	if err != nil {
		return TaskPage{}, fmt.Errorf("list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return TaskPage{
		Tasks: tasks,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
		Pages: (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

// ListApplications returns every application userID has made, newest first.
func (m *LifecycleManager) ListApplications(ctx context.Context, userID string) ([]UserApplication, error) {
	tasks, _, err := m.store.ListTasks(ctx, TaskFilter{Applicant: userID})
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	out := []UserApplication{}
	for _, t := range tasks {
		for _, a := range t.Applications {
			if a.ApplicantID == userID {
				out = append(out, UserApplication{TaskID: t.ID, TaskTitle: t.Title, TaskStatus: t.Status, Application: a})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b UserApplication) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}
