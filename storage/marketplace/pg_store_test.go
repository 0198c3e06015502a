package marketplace

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"coai-backend/core/marketplace"
)

// Requires docker. Run with COAI_PG_TESTS=1.
func newTestPGStore(t *testing.T) *PGStore {
	t.Helper()
	if os.Getenv("COAI_PG_TESTS") != "1" {
		t.Skip("set COAI_PG_TESTS=1 to run postgres store tests")
	}
	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("coai"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	store, err := NewPGStore(ctx, dsn, true)
	if err != nil {
		t.Fatalf("failed to create PG store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestPGStoreLifecycle(t *testing.T) {
	store := newTestPGStore(t)
	ctx := context.Background()
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	opts := []marketplace.Option{marketplace.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})}
	tasks := marketplace.NewLifecycleManager(store, opts...)
	settle := marketplace.NewSettlementService(store, marketplace.NewSimulatedChain(), opts...)

	price := marketplace.MoneyFromFloat(300)
	task, err := tasks.CreateTask(ctx, "user-alice", marketplace.CreateTaskInput{
		Title:          "Integration task",
		Description:    "Exercise the postgres store",
		RequiredSkills: []string{"go"},
		Price:          &price,
		Deadline:       clock.Add(72 * time.Hour),
		Metadata:       marketplace.Metadata{"k": "v"},
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	proposed := marketplace.MoneyFromFloat(250)
	applied, err := tasks.ApplyForTask(ctx, task.ID, "user-bob", marketplace.ApplyInput{
		Message:          "On it",
		ProposedPrice:    &proposed,
		ProposedDeadline: clock.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ApplyForTask: %v", err)
	}
	_, err = tasks.ApplyForTask(ctx, task.ID, "user-bob", marketplace.ApplyInput{
		Message:          "Again",
		ProposedPrice:    &proposed,
		ProposedDeadline: clock.Add(48 * time.Hour),
	})
	if !errors.Is(err, marketplace.ErrConflict) {
		t.Fatalf("second application: %v", err)
	}

	assigned, err := tasks.AcceptApplication(ctx, task.ID, "user-alice", applied.Applications[0].ID)
	if err != nil {
		t.Fatalf("AcceptApplication: %v", err)
	}
	if assigned.Price != proposed || assigned.AssignedTo != "user-bob" {
		t.Fatalf("assigned = %+v", assigned)
	}

	if _, err := settle.CreateEscrow(ctx, task.ID, "user-alice"); err != nil {
		t.Fatalf("CreateEscrow: %v", err)
	}
	if _, err := tasks.CompleteTask(ctx, task.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	res, err := settle.ReleasePayment(ctx, task.ID, "user-alice")
	if err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}
	if res.NetPayment.String() != "212.50" {
		t.Errorf("net = %s, want 212.50", res.NetPayment)
	}
	if _, err := settle.ReleasePayment(ctx, task.ID, "user-alice"); !errors.Is(err, marketplace.ErrConflict) {
		t.Errorf("second release: %v", err)
	}

	bob, err := store.GetUser(ctx, "user-bob")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if bob.Balance != res.NetPayment || bob.TotalTasksCompleted != 1 {
		t.Errorf("bob = %+v", bob)
	}

	stored, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(stored.Transactions) != 2 || stored.Metadata["k"] != "v" || stored.CompletionDate == nil {
		t.Errorf("stored task = %+v", stored)
	}

	page, total, err := store.ListTasks(ctx, marketplace.TaskFilter{Applicant: "user-bob"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if total != 1 || page[0].ID != task.ID {
		t.Errorf("applicant filter = %d tasks", total)
	}
	skilled, _, err := store.ListTasks(ctx, marketplace.TaskFilter{Skills: []string{"REACT"}, Keyword: "wallet"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(skilled) != 1 || skilled[0].ID != "task-landing-page" {
		t.Errorf("skill filter = %+v", skilled)
	}
}

func TestPGStoreRollback(t *testing.T) {
	store := newTestPGStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := store.Atomic(ctx, func(tx marketplace.Tx) error {
		if _, err := tx.ApplyUserDelta(ctx, "user-bob", marketplace.UserDelta{Balance: 999}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic: %v", err)
	}
	bob, err := store.GetUser(ctx, "user-bob")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if bob.Balance != 0 {
		t.Errorf("balance = %s after rollback", bob.Balance)
	}
	if _, err := store.GetTask(ctx, "missing"); !errors.Is(err, marketplace.ErrNotFound) {
		t.Errorf("missing task: %v", err)
	}
}

func TestPGStoreSaveUserKeepsLedger(t *testing.T) {
	assertSaveUserKeepsLedger(t, newTestPGStore(t))
}

func TestPGStoreListUsers(t *testing.T) {
	assertListUsers(t, newTestPGStore(t))
}
