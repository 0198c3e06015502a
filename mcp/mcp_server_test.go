package mcp

import (
	"context"
	"encoding/json"
	"iter"
	"slices"
	"strings"
	"testing"
	"time"

	"coai-backend/core/marketplace"
	"coai-backend/storage/auth"
	storage "coai-backend/storage/marketplace"

	"github.com/mark3labs/mcp-go/mcp"
)

type stubSuggester struct{}

func (stubSuggester) Suggest(context.Context, marketplace.SuggestionRequest) (iter.Seq[string], error) {
	return slices.Values([]string{"Sketch the layout", "Wire the wallet adapter"}), nil
}

type fixture struct {
	server   *MCPServer
	sessions *auth.MemorySessionStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := storage.Seed(ctx, store); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	opts := []marketplace.Option{marketplace.WithSuggester(stubSuggester{})}
	sessions := auth.NewMemorySessionStore(time.Hour)
	s := NewMCPServer(
		marketplace.NewLifecycleManager(store, opts...),
		marketplace.NewSettlementService(store, marketplace.NewSimulatedChain(), opts...),
		marketplace.NewAssistService(store, opts...),
		marketplace.NewUserService(store, nil, opts...),
		sessions,
	)
	return fixture{server: s, sessions: sessions}
}

func (f fixture) token(t *testing.T, userID string) string {
	t.Helper()
	sess, err := f.sessions.Issue(context.Background(), userID, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return sess.Token
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content %T", res.Content[0])
	}
	return text.Text
}

func TestToolsRegistered(t *testing.T) {
	f := newFixture(t)
	msg := f.server.GetMCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, name := range []string{"list_tasks", "get_task", "quote_fees", "suggest_task_ideas", "apply_for_task", "task_transactions", "my_stats"} {
		if !strings.Contains(string(b), `"`+name+`"`) {
			t.Errorf("tool %s not listed", name)
		}
	}
}

func TestListAndGetTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.server.handleListTasks(ctx, callRequest("list_tasks", map[string]any{
		"status": "open",
		"skills": []any{"react"},
	}))
	if err != nil {
		t.Fatalf("list_tasks: %v", err)
	}
	var page marketplace.TaskPage
	if err := json.Unmarshal([]byte(resultText(t, res)), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || page.Tasks[0].ID != "task-landing-page" {
		t.Errorf("page = %+v", page)
	}

	res, _ = f.server.handleGetTask(ctx, callRequest("get_task", map[string]any{"task_id": "task-blog-series"}))
	if res.IsError || !strings.Contains(resultText(t, res), `"price": 120.50`) {
		t.Errorf("get_task = %s", resultText(t, res))
	}

	res, _ = f.server.handleGetTask(ctx, callRequest("get_task", map[string]any{"task_id": "missing"}))
	if !res.IsError {
		t.Errorf("missing task should be a tool error")
	}
	res, _ = f.server.handleGetTask(ctx, callRequest("get_task", map[string]any{}))
	if !res.IsError {
		t.Errorf("missing task_id should be a tool error")
	}
}

func TestQuoteFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, _ := f.server.handleQuoteFees(ctx, callRequest("quote_fees", map[string]any{
		"price":               float64(100),
		"ai_assistance_level": "High",
	}))
	var quote marketplace.FeeBreakdown
	if err := json.Unmarshal([]byte(resultText(t, res)), &quote); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if quote.PlatformFee != 500 || quote.AIContributionFee != 1500 || quote.NetPayment != 8000 {
		t.Errorf("quote = %+v", quote)
	}

	res, _ = f.server.handleQuoteFees(ctx, callRequest("quote_fees", map[string]any{"price": float64(-1)}))
	if !res.IsError {
		t.Errorf("negative price should fail")
	}
	res, _ = f.server.handleQuoteFees(ctx, callRequest("quote_fees", map[string]any{"price": float64(10), "ai_assistance_level": "Extreme"}))
	if !res.IsError {
		t.Errorf("unknown level should fail")
	}
}

func TestSessionTools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.token(t, "user-bob")
	deadline := time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339)

	res, _ := f.server.handleApplyForTask(ctx, callRequest("apply_for_task", map[string]any{
		"session_token":     "bogus",
		"task_id":           "task-landing-page",
		"message":           "I can do it",
		"proposed_price":    float64(280),
		"proposed_deadline": deadline,
	}))
	if !res.IsError {
		t.Fatalf("invalid session accepted")
	}

	res, _ = f.server.handleApplyForTask(ctx, callRequest("apply_for_task", map[string]any{
		"session_token":     bob,
		"task_id":           "task-landing-page",
		"message":           "I can do it",
		"proposed_price":    float64(280),
		"proposed_deadline": deadline,
	}))
	if res.IsError {
		t.Fatalf("apply_for_task: %s", resultText(t, res))
	}
	var applied struct {
		Success       bool   `json:"success"`
		ApplicationID string `json:"application_id"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &applied); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !applied.Success || applied.ApplicationID == "" {
		t.Errorf("applied = %+v", applied)
	}

	res, _ = f.server.handleApplyForTask(ctx, callRequest("apply_for_task", map[string]any{
		"session_token":     bob,
		"task_id":           "task-landing-page",
		"message":           "Again",
		"proposed_price":    float64(280),
		"proposed_deadline": "next week",
	}))
	if !res.IsError {
		t.Errorf("bad deadline accepted")
	}

	res, _ = f.server.handleTaskTransactions(ctx, callRequest("task_transactions", map[string]any{
		"session_token": bob,
		"task_id":       "task-landing-page",
	}))
	if !res.IsError {
		t.Errorf("non-party saw task transactions: %s", resultText(t, res))
	}
	res, _ = f.server.handleTaskTransactions(ctx, callRequest("task_transactions", map[string]any{
		"session_token": f.token(t, "user-alice"),
		"task_id":       "task-landing-page",
	}))
	if res.IsError || !strings.Contains(resultText(t, res), `"total": 0`) {
		t.Errorf("creator transactions = %s", resultText(t, res))
	}

	res, _ = f.server.handleMyStats(ctx, callRequest("my_stats", map[string]any{"session_token": bob}))
	if res.IsError || !strings.Contains(resultText(t, res), `"user_id": "user-bob"`) {
		t.Errorf("my_stats = %s", resultText(t, res))
	}
}

func TestSuggestTaskIdeas(t *testing.T) {
	f := newFixture(t)
	res, _ := f.server.handleSuggestTaskIdeas(context.Background(), callRequest("suggest_task_ideas", map[string]any{
		"title":       "Landing page",
		"description": "Wallet connect and pricing",
		"skills":      "react, solana",
	}))
	if res.IsError || !strings.Contains(resultText(t, res), "Sketch the layout") {
		t.Errorf("suggestions = %s", resultText(t, res))
	}
	res, _ = f.server.handleSuggestTaskIdeas(context.Background(), callRequest("suggest_task_ideas", map[string]any{"title": "only"}))
	if !res.IsError {
		t.Errorf("missing description accepted")
	}
}
