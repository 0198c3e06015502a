package marketplace

import (
	"context"
	"fmt"
	"log"
	"math"
	"slices"
	"strings"
	"unicode/utf8"
)

const maxCommentLength = 500

// FeedbackInput is a rating left after a task completes.
type FeedbackInput struct {
	TaskID       string        `json:"task_id"`
	ReceiverID   string        `json:"receiver_id"`
	Rating       int           `json:"rating"`
	Comment      string        `json:"comment"`
	SkillRatings []SkillRating `json:"skill_ratings"`
}

// FeedbackService records ratings between task parties and keeps reputation current.
type FeedbackService struct {
	store Store
	options
}

// NewFeedbackService creates a feedback service.
func NewFeedbackService(store Store, opts ...Option) *FeedbackService {
	return &FeedbackService{store: store, options: buildOptions(opts)}
}

func validRating(r int) bool { return r >= 1 && r <= 5 }

// CreateFeedback stores feedback from senderID and updates the receiver's reputation.
func (s *FeedbackService) CreateFeedback(ctx context.Context, senderID string, in FeedbackInput) (Feedback, error) {
	if in.TaskID == "" {
		return Feedback{}, ValidationError("task_id", "task id is required")
	}
	if in.ReceiverID == "" {
		return Feedback{}, ValidationError("receiver_id", "receiver id is required")
	}
	if !validRating(in.Rating) {
		return Feedback{}, ValidationError("rating", "rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(in.Comment) > maxCommentLength {
		return Feedback{}, ValidationError("comment", "comment cannot exceed %d characters", maxCommentLength)
	}
	for _, sr := range in.SkillRatings {
		if strings.TrimSpace(sr.Skill) == "" || !validRating(sr.Rating) {
			return Feedback{}, ValidationError("skill_ratings", "each skill rating needs a skill and a rating between 1 and 5")
		}
	}
	if senderID == in.ReceiverID {
		return Feedback{}, ValidationError("receiver_id", "you cannot leave feedback for yourself")
	}

	var fb Feedback
	err := s.store.Atomic(ctx, func(tx Tx) error {
		task, err := tx.LockTask(ctx, in.TaskID)
		if err != nil {
			return err
		}
		if task.Status != TaskCompleted {
			return ConflictError("feedback can only be left on completed tasks")
		}
		if senderID != task.CreatorID && senderID != task.AssignedTo {
			return AuthorizationError("only task participants can leave feedback")
		}
		other := task.AssignedTo
		if senderID == task.AssignedTo {
			other = task.CreatorID
		}
		if in.ReceiverID != other {
			return ValidationError("receiver_id", "feedback can only be left for the other task participant")
		}
		prior, err := tx.ListFeedback(ctx, FeedbackFilter{TaskID: in.TaskID, SenderID: senderID, ReceiverID: in.ReceiverID})
		if err != nil {
			return fmt.Errorf("lookup feedback: %w", err)
		}
		if len(prior) > 0 {
			return ConflictError("you have already left feedback for this user on this task")
		}

		fb = Feedback{
			ID:           s.newID(),
			TaskID:       in.TaskID,
			SenderID:     senderID,
			ReceiverID:   in.ReceiverID,
			Rating:       in.Rating,
			Comment:      strings.TrimSpace(in.Comment),
			SkillRatings: in.SkillRatings,
			CreatedAt:    s.now(),
		}
		if err := tx.CreateFeedback(ctx, fb); err != nil {
			return err
		}
		return s.updateReputation(ctx, tx, fb)
	})
	if err != nil {
		return Feedback{}, err
	}
	log.Printf("feedback %s on task %s: %s -> %s (%d)", fb.ID, fb.TaskID, fb.SenderID, fb.ReceiverID, fb.Rating)
	return fb, nil
}

func (s *FeedbackService) updateReputation(ctx context.Context, tx Tx, fb Feedback) error {
	receiver, err := tx.GetUser(ctx, fb.ReceiverID)
	if err != nil {
		return err
	}
	all, err := tx.ListFeedback(ctx, FeedbackFilter{ReceiverID: fb.ReceiverID})
	if err != nil {
		return fmt.Errorf("lookup feedback: %w", err)
	}
	sum := 0
	for _, f := range all {
		sum += f.Rating
	}
	if len(all) > 0 {
		receiver.Reputation = math.Round(float64(sum)/float64(len(all))*10) / 10
	}
	receiver.Skills = rateSkills(receiver.Skills, fb.SkillRatings, all)
	return tx.SaveUser(ctx, receiver)
}

// rateSkills recomputes, from every rating in received, the average of each
// listed skill that rated names. Skills the user does not list are ignored.
func rateSkills(skills []Skill, rated []SkillRating, received []Feedback) []Skill {
	for i := range skills {
		sk := &skills[i]
		if !slices.ContainsFunc(rated, func(sr SkillRating) bool { return sameSkill(sr.Skill, sk.Name) }) {
			continue
		}
		sum, n := 0, 0
		for _, f := range received {
			for _, sr := range f.SkillRatings {
				if sameSkill(sr.Skill, sk.Name) {
					sum += sr.Rating
					n++
				}
			}
		}
		if n > 0 {
			sk.Rating = math.Round(float64(sum)/float64(n)*10) / 10
			sk.RatingCount = n
		}
	}
	return skills
}

func sameSkill(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// UserFeedback lists feedback received by userID.
func (s *FeedbackService) UserFeedback(ctx context.Context, userID string) ([]Feedback, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.list(ctx, FeedbackFilter{ReceiverID: userID})
}

// TaskFeedback lists feedback left on taskID.
func (s *FeedbackService) TaskFeedback(ctx context.Context, taskID string) ([]Feedback, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.list(ctx, FeedbackFilter{TaskID: taskID})
}

func (s *FeedbackService) list(ctx context.Context, f FeedbackFilter) ([]Feedback, error) {
	out, err := s.store.ListFeedback(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	if out == nil {
		out = []Feedback{}
	}
	return out, nil
}
