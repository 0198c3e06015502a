package marketplace

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"coai-backend/core/marketplace"
)

//go:embed fixtures.yaml
var fixturesYAML []byte

type fixtureFile struct {
	Users []struct {
		ID            string   `yaml:"id"`
		WalletAddress string   `yaml:"wallet_address"`
		Name          string   `yaml:"name"`
		Bio           string   `yaml:"bio"`
		Role          string   `yaml:"role"`
		Skills        []string `yaml:"skills"`
	} `yaml:"users"`
	Tasks []struct {
		ID                string   `yaml:"id"`
		Title             string   `yaml:"title"`
		Description       string   `yaml:"description"`
		Category          string   `yaml:"category"`
		RequiredSkills    []string `yaml:"required_skills"`
		Price             float64  `yaml:"price"`
		DeadlineDays      int      `yaml:"deadline_days"`
		AIAssistanceLevel string   `yaml:"ai_assistance_level"`
		CreatorID         string   `yaml:"creator_id"`
		Status            string   `yaml:"status"`
	} `yaml:"tasks"`
}

// SeedData decodes the embedded demo users and tasks.
func SeedData(now time.Time) ([]marketplace.User, []marketplace.Task, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(fixturesYAML, &f); err != nil {
		return nil, nil, fmt.Errorf("decode fixtures: %w", err)
	}

	users := make([]marketplace.User, 0, len(f.Users))
	for _, u := range f.Users {
		skills := make([]marketplace.Skill, 0, len(u.Skills))
		for _, s := range u.Skills {
			skills = append(skills, marketplace.Skill{Name: s})
		}
		users = append(users, marketplace.User{
			ID:            u.ID,
			WalletAddress: u.WalletAddress,
			Name:          u.Name,
			Bio:           u.Bio,
			Role:          marketplace.Role(u.Role),
			Skills:        skills,
			CreatedAt:     now,
		})
	}

	tasks := make([]marketplace.Task, 0, len(f.Tasks))
	for i, t := range f.Tasks {
		created := now.Add(time.Duration(i-len(f.Tasks)) * time.Minute)
		tasks = append(tasks, marketplace.Task{
			ID:                t.ID,
			Title:             t.Title,
			Description:       t.Description,
			Category:          t.Category,
			RequiredSkills:    t.RequiredSkills,
			Price:             marketplace.MoneyFromFloat(t.Price),
			Deadline:          now.AddDate(0, 0, t.DeadlineDays),
			AIAssistanceLevel: marketplace.AIAssistanceLevel(t.AIAssistanceLevel),
			CreatorID:         t.CreatorID,
			Status:            marketplace.TaskStatus(t.Status),
			Applications:      []marketplace.Application{},
			CreatedAt:         created,
			UpdatedAt:         created,
		})
	}
	return users, tasks, nil
}

// Seed writes the demo fixtures into store, skipping users that already exist.
func Seed(ctx context.Context, store marketplace.Store) error {
	users, tasks, err := SeedData(time.Now().UTC())
	if err != nil {
		return err
	}
	return store.Atomic(ctx, func(tx marketplace.Tx) error {
		for _, u := range users {
			if _, err := tx.GetUser(ctx, u.ID); err == nil {
				continue
			}
			if err := tx.SaveUser(ctx, u); err != nil {
				return fmt.Errorf("seed user %s: %w", u.ID, err)
			}
		}
		for _, t := range tasks {
			if _, err := tx.GetTask(ctx, t.ID); err == nil {
				continue
			}
			if err := tx.SaveTask(ctx, t); err != nil {
				return fmt.Errorf("seed task %s: %w", t.ID, err)
			}
			if _, err := tx.ApplyUserDelta(ctx, t.CreatorID, marketplace.UserDelta{TotalTasksCreated: 1}); err != nil {
				return fmt.Errorf("seed task %s: %w", t.ID, err)
			}
		}
		return nil
	})
}
