package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// AI contribution categories.
const (
	ContributionEnhancement    = "enhancement"
	ContributionCorrection     = "correction"
	ContributionRecommendation = "recommendation"
)

// ErrSuggesterUnavailable is returned when no suggester is configured.
var ErrSuggesterUnavailable = errors.New("AI suggestions are not configured")

// AssistService exposes the suggester outside task creation.
type AssistService struct {
	store Store
	options
}

// NewAssistService creates an assist service. Without WithSuggester every call fails
// with ErrSuggesterUnavailable.
func NewAssistService(store Store, opts ...Option) *AssistService {
	return &AssistService{store: store, options: buildOptions(opts)}
}

// Suggest returns suggestions for draft task text. Title and description are required.
func (s *AssistService) Suggest(ctx context.Context, req SuggestionRequest) ([]string, error) {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		return nil, ValidationError("title", "title and description are required")
	}
	if s.suggester == nil {
		return nil, ErrSuggesterUnavailable
	}
	if req.Count <= 0 {
		req.Count = 3
	}
	seq, err := s.suggester.Suggest(ctx, req)
	if err != nil {
		s.recorder.SuggestionFailure()
		return nil, fmt.Errorf("generate suggestions: %w", err)
	}
	out := []string{}
	for item := range seq {
		out = append(out, item)
	}
	return out, nil
}

// Contribute asks the suggester about a task and stores the answer on it.
// Only the creator or the assignee may ask.
func (s *AssistService) Contribute(ctx context.Context, taskID, actorID, query string) (AIContribution, error) {
	if strings.TrimSpace(query) == "" {
		return AIContribution{}, ValidationError("query", "query is required")
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return AIContribution{}, err
	}
	if task.CreatorID != actorID && task.AssignedTo != actorID {
		return AIContribution{}, AuthorizationError("not authorized to request AI contributions for this task")
	}
	if s.suggester == nil {
		return AIContribution{}, ErrSuggesterUnavailable
	}

	seq, err := s.suggester.Suggest(ctx, SuggestionRequest{
		Title:          task.Title,
		Description:    task.Description,
		Category:       task.Category,
		RequiredSkills: task.RequiredSkills,
		Query:          query,
	})
	if err != nil {
		s.recorder.SuggestionFailure()
		return AIContribution{}, fmt.Errorf("generate contribution: %w", err)
	}
	var parts []string
	for item := range seq {
		parts = append(parts, item)
	}
	if len(parts) == 0 {
		return AIContribution{}, fmt.Errorf("generate contribution: empty answer")
	}

	c := AIContribution{
		Suggestion: strings.Join(parts, "\n"),
		Category:   ContributionRecommendation,
		CreatedAt:  s.now(),
	}
	err = s.store.Atomic(ctx, func(tx Tx) error {
		locked, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		locked.AIContributions = append(locked.AIContributions, c)
		locked.UpdatedAt = c.CreatedAt
		return tx.SaveTask(ctx, locked)
	})
	if err != nil {
		return AIContribution{}, err
	}
	log.Printf("task %s: AI contribution added for %s", taskID, actorID)
	return c, nil
}

// SkillRecommendations suggests skills that complement the user's profile.
func (s *AssistService) SkillRecommendations(ctx context.Context, userID string) ([]string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.Skills) == 0 {
		return nil, ValidationError("skills", "add some skills to your profile first")
	}
	if s.suggester == nil {
		return nil, ErrSuggesterUnavailable
	}
	names := make([]string, 0, len(user.Skills))
	for _, sk := range user.Skills {
		names = append(names, sk.Name)
	}
	seq, err := s.suggester.Suggest(ctx, SuggestionRequest{
		Title:          "Skill development plan",
		Description:    "A user with the listed skills wants to learn complementary skills.",
		RequiredSkills: names,
		Query:          "Suggest 5 additional complementary skills that would be beneficial to learn next, each with a brief reason.",
	})
	if err != nil {
		s.recorder.SuggestionFailure()
		return nil, fmt.Errorf("generate skill recommendations: %w", err)
	}
	out := []string{}
	for item := range seq {
		out = append(out, item)
		if len(out) == 5 {
			break
		}
	}
	return out, nil
}
