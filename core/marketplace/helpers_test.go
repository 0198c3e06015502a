package marketplace_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coai-backend/core/marketplace"
	storage "coai-backend/storage/marketplace"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// stepClock advances one second per reading.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type testEnv struct {
	store    *storage.MemoryStore
	chain    *marketplace.SimulatedChain
	tasks    *marketplace.LifecycleManager
	settle   *marketplace.SettlementService
	feedback *marketplace.FeedbackService
	users    *marketplace.UserService
}

const (
	alice = "user-alice"
	bob   = "user-bob"
	carol = "user-carol"
	admin = "user-admin"
)

func newEnv(t *testing.T, opts ...marketplace.Option) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	clock := &stepClock{t: epoch}
	all := append([]marketplace.Option{marketplace.WithClock(clock.Now)}, opts...)
	chain := marketplace.NewSimulatedChain()
	env := &testEnv{
		store:    store,
		chain:    chain,
		tasks:    marketplace.NewLifecycleManager(store, all...),
		settle:   marketplace.NewSettlementService(store, chain, all...),
		feedback: marketplace.NewFeedbackService(store, all...),
		users:    marketplace.NewUserService(store, []string{"wallet-admin"}, all...),
	}
	err := store.Atomic(context.Background(), func(tx marketplace.Tx) error {
		for _, u := range []marketplace.User{
			{ID: alice, WalletAddress: "wallet-alice", Role: marketplace.RoleUser, Skills: []marketplace.Skill{{Name: "product"}}},
			{ID: bob, WalletAddress: "wallet-bob", Role: marketplace.RoleUser, Skills: []marketplace.Skill{{Name: "go"}, {Name: "react"}}},
			{ID: carol, WalletAddress: "wallet-carol", Role: marketplace.RoleUser},
			{ID: admin, WalletAddress: "wallet-admin", Role: marketplace.RoleAdmin},
		} {
			if err := tx.SaveUser(context.Background(), u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed users: %v", err)
	}
	return env
}

func ptr[T any](v T) *T { return &v }

func taskInput(price float64, level marketplace.AIAssistanceLevel) marketplace.CreateTaskInput {
	return marketplace.CreateTaskInput{
		Title:             "Build a landing page",
		Description:       "Responsive page with wallet connect",
		Category:          "web-development",
		RequiredSkills:    []string{"react", "solana"},
		Price:             ptr(marketplace.MoneyFromFloat(price)),
		Deadline:          epoch.Add(14 * 24 * time.Hour),
		AIAssistanceLevel: level,
	}
}

func (e *testEnv) createTask(t *testing.T, price float64, level marketplace.AIAssistanceLevel) marketplace.Task {
	t.Helper()
	task, err := e.tasks.CreateTask(context.Background(), alice, taskInput(price, level))
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

func (e *testEnv) apply(t *testing.T, taskID, applicant string, price float64) marketplace.Application {
	t.Helper()
	task, err := e.tasks.ApplyForTask(context.Background(), taskID, applicant, marketplace.ApplyInput{
		Message:          "I can do this",
		ProposedPrice:    ptr(marketplace.MoneyFromFloat(price)),
		ProposedDeadline: epoch.Add(10 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ApplyForTask(%s): %v", applicant, err)
	}
	return task.Applications[len(task.Applications)-1]
}

// assignedTask creates a task owned by alice and assigns it to bob at price.
func (e *testEnv) assignedTask(t *testing.T, price float64, level marketplace.AIAssistanceLevel) marketplace.Task {
	t.Helper()
	task := e.createTask(t, price, level)
	app := e.apply(t, task.ID, bob, price)
	task, err := e.tasks.AcceptApplication(context.Background(), task.ID, alice, app.ID)
	if err != nil {
		t.Fatalf("AcceptApplication: %v", err)
	}
	return task
}

func (e *testEnv) user(t *testing.T, id string) marketplace.User {
	t.Helper()
	u, err := e.store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUser(%s): %v", id, err)
	}
	return u
}

func (e *testEnv) task(t *testing.T, id string) marketplace.Task {
	t.Helper()
	task, err := e.store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask(%s): %v", id, err)
	}
	return task
}

func wantErr(t *testing.T, err error, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func checkAssignee(t *testing.T, task marketplace.Task) {
	t.Helper()
	if task.Status.HasAssignee() != (task.AssignedTo != "") {
		t.Fatalf("task %s in status %s has assigned_to %q", task.ID, task.Status, task.AssignedTo)
	}
}
