package marketplace_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"coai-backend/core/marketplace"
)

func TestSplitNumbered(t *testing.T) {
	text := "1. Break the page into sections\n2. Reuse the wallet adapter   3. Add tests\n\n"
	got := slices.Collect(marketplace.SplitNumbered(text))
	want := []string{"Break the page into sections", "Reuse the wallet adapter", "Add tests"}
	if !slices.Equal(got, want) {
		t.Errorf("SplitNumbered = %q, want %q", got, want)
	}

	for range marketplace.SplitNumbered("1. a 2. b 3. c") {
		break
	}

	if got := slices.Collect(marketplace.SplitNumbered("   ")); len(got) != 0 {
		t.Errorf("blank text = %q", got)
	}
}

func TestSuggestionPrompt(t *testing.T) {
	p := marketplace.SuggestionRequest{Title: "Logo", Description: "Vector logo", RequiredSkills: []string{"design"}, Count: 2}.Prompt()
	for _, want := range []string{"Task Title: Logo", "Task Description: Vector logo", "Required Skills: design", "provide 2 helpful"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
	q := marketplace.SuggestionRequest{Title: "Logo", Description: "Vector logo", Query: "Which colours?"}.Prompt()
	if !strings.Contains(q, "User Query: Which colours?") || strings.Contains(q, "helpful suggestions") {
		t.Errorf("query prompt:\n%s", q)
	}
}

func TestAssistService(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured", func(t *testing.T) {
		env := newEnv(t)
		svc := marketplace.NewAssistService(env.store)
		_, err := svc.Suggest(ctx, marketplace.SuggestionRequest{Title: "a", Description: "b"})
		if !errors.Is(err, marketplace.ErrSuggesterUnavailable) {
			t.Errorf("expected ErrSuggesterUnavailable, got %v", err)
		}
	})

	s := &fakeSuggester{items: []string{"Use a design system", "Ship early"}}
	env := newEnv(t)
	svc := marketplace.NewAssistService(env.store, marketplace.WithSuggester(s), marketplace.WithClock(func() time.Time { return epoch }))

	t.Run("suggest requires title and description", func(t *testing.T) {
		_, err := svc.Suggest(ctx, marketplace.SuggestionRequest{Title: "only title"})
		wantErr(t, err, marketplace.ErrValidation)
		got, err := svc.Suggest(ctx, marketplace.SuggestionRequest{Title: "Logo", Description: "Vector logo"})
		if err != nil {
			t.Fatalf("Suggest: %v", err)
		}
		if len(got) != 2 || s.last.Count != 3 {
			t.Errorf("suggestions = %q, count = %d", got, s.last.Count)
		}
	})

	task := env.assignedTask(t, 100, marketplace.AIMedium)

	t.Run("contribute by participants only", func(t *testing.T) {
		_, err := svc.Contribute(ctx, task.ID, carol, "How should I start?")
		wantErr(t, err, marketplace.ErrAuthorization)
		_, err = svc.Contribute(ctx, task.ID, bob, " ")
		wantErr(t, err, marketplace.ErrValidation)

		c, err := svc.Contribute(ctx, task.ID, bob, "How should I start?")
		if err != nil {
			t.Fatalf("Contribute: %v", err)
		}
		if c.Category != marketplace.ContributionRecommendation || c.Suggestion != "Use a design system\nShip early" {
			t.Errorf("contribution = %+v", c)
		}
		if s.last.Query != "How should I start?" {
			t.Errorf("query not forwarded: %+v", s.last)
		}
		stored := env.task(t, task.ID)
		if len(stored.AIContributions) != 1 || !stored.AIContributions[0].CreatedAt.Equal(epoch) {
			t.Errorf("stored contributions = %+v", stored.AIContributions)
		}
	})

	t.Run("skill recommendations", func(t *testing.T) {
		got, err := svc.SkillRecommendations(ctx, bob)
		if err != nil {
			t.Fatalf("SkillRecommendations: %v", err)
		}
		if len(got) != 2 || !slices.Equal(s.last.RequiredSkills, []string{"go", "react"}) {
			t.Errorf("recommendations = %q for %v", got, s.last.RequiredSkills)
		}
		_, err = svc.SkillRecommendations(ctx, carol)
		wantErr(t, err, marketplace.ErrValidation)
	})
}

func TestUserService(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	t.Run("login creates account", func(t *testing.T) {
		u, err := env.users.Login(ctx, "wallet-new")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if u.ID == "" || u.Role != marketplace.RoleUser || u.LastLogin == nil {
			t.Errorf("user = %+v", u)
		}
		again, err := env.users.Login(ctx, "wallet-new")
		if err != nil {
			t.Fatalf("second Login: %v", err)
		}
		if again.ID != u.ID {
			t.Errorf("second login created %s, want %s", again.ID, u.ID)
		}
		_, err = env.users.Login(ctx, "")
		wantErr(t, err, marketplace.ErrValidation)
	})

	t.Run("admin wallets", func(t *testing.T) {
		u, err := env.users.Login(ctx, "wallet-admin")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if u.ID != admin || u.Role != marketplace.RoleAdmin {
			t.Errorf("user = %+v", u)
		}
	})

	t.Run("update profile keeps ratings", func(t *testing.T) {
		err := env.store.Atomic(ctx, func(tx marketplace.Tx) error {
			u, err := tx.GetUser(ctx, bob)
			if err != nil {
				return err
			}
			u.Skills[0].Rating, u.Skills[0].RatingCount = 4.5, 2
			return tx.SaveUser(ctx, u)
		})
		if err != nil {
			t.Fatalf("seed rating: %v", err)
		}
		u, err := env.users.UpdateProfile(ctx, bob, marketplace.ProfilePatch{
			Name:   ptr("Bob Builder"),
			Skills: []string{"Go", "solana"},
		})
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		if u.Name != "Bob Builder" || len(u.Skills) != 2 {
			t.Fatalf("user = %+v", u)
		}
		if u.Skills[0].Rating != 4.5 || u.Skills[1].Name != "solana" || u.Skills[1].RatingCount != 0 {
			t.Errorf("skills = %+v", u.Skills)
		}

		_, err = env.users.UpdateProfile(ctx, bob, marketplace.ProfilePatch{Email: ptr("not-an-email")})
		wantErr(t, err, marketplace.ErrValidation)
	})
}
