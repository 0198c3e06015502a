package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coai-backend/core/marketplace"
	"coai-backend/storage/auth"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the marketplace to AI agents as MCP tools.
type MCPServer struct {
	mcpServer *server.MCPServer
	tasks     *marketplace.LifecycleManager
	settle    *marketplace.SettlementService
	assist    *marketplace.AssistService
	users     *marketplace.UserService
	sessions  auth.SessionStore
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(
	tasks *marketplace.LifecycleManager,
	settle *marketplace.SettlementService,
	assist *marketplace.AssistService,
	users *marketplace.UserService,
	sessions auth.SessionStore,
) *MCPServer {
	mcpServer := server.NewMCPServer(
		"CoAI MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer: mcpServer,
		tasks:     tasks,
		settle:    settle,
		assist:    assist,
		users:     users,
		sessions:  sessions,
	}
	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *MCPServer) registerTools() {
	// Browsing
	s.registerListTasksTool()
	s.registerGetTaskTool()
	s.registerQuoteFeesTool()
	s.registerSuggestTaskIdeasTool()

	// Session-bound
	s.registerApplyForTaskTool()
	s.registerTaskTransactionsTool()
	s.registerMyStatsTool()
}

// caller resolves the session_token argument to a user.
func (s *MCPServer) caller(ctx context.Context, request mcp.CallToolRequest) (marketplace.User, error) {
	token, err := request.RequireString("session_token")
	if err != nil {
		return marketplace.User{}, err
	}
	sess, err := s.sessions.Lookup(ctx, strings.TrimSpace(token))
	if err != nil {
		return marketplace.User{}, fmt.Errorf("invalid session: %w", err)
	}
	return s.users.GetUser(ctx, sess.UserID)
}

func (s *MCPServer) registerListTasksTool() {
	tool := mcp.NewTool("list_tasks",
		mcp.WithDescription("List marketplace tasks with optional filters"),
		mcp.WithString("status", mcp.Description("Filter by status (draft, open, assigned, in_progress, completed, cancelled)")),
		mcp.WithString("category", mcp.Description("Filter by category")),
		mcp.WithArray("skills", mcp.Description("Filter by required skills")),
		mcp.WithString("keyword", mcp.Description("Search title and description")),
		mcp.WithString("sort", mcp.Description("Sort order, e.g. -created_at, price, deadline")),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 1")),
		mcp.WithNumber("limit", mcp.Description("Tasks per page (max 100)")),
	)
	s.mcpServer.AddTool(tool, s.handleListTasks)
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	filter := marketplace.TaskFilter{
		Status:   marketplace.TaskStatus(toString(args["status"])),
		Category: toString(args["category"]),
		Skills:   toStringSlice(args["skills"]),
		Keyword:  toString(args["keyword"]),
		Sort:     toString(args["sort"]),
		Page:     toInt(args["page"]),
		Limit:    toInt(args["limit"]),
	}
	page, err := s.tasks.ListTasks(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %v", err)), nil
	}
	return jsonResult(page), nil
}

func (s *MCPServer) registerGetTaskTool() {
	tool := mcp.NewTool("get_task",
		mcp.WithDescription("Get details of a specific task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task to retrieve")),
	)
	s.mcpServer.AddTool(tool, s.handleGetTask)
}

func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
	}
	return jsonResult(task), nil
}

func (s *MCPServer) registerQuoteFeesTool() {
	tool := mcp.NewTool("quote_fees",
		mcp.WithDescription("Preview the platform fee, AI contribution fee and net payment for a price"),
		mcp.WithNumber("price", mcp.Required(), mcp.Description("Task price in tokens")),
		mcp.WithString("ai_assistance_level", mcp.Description("Low, Medium (default) or High")),
	)
	s.mcpServer.AddTool(tool, s.handleQuoteFees)
}

func (s *MCPServer) handleQuoteFees(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	raw := toString(args["price"])
	if raw == "" {
		return mcp.NewToolResultError("price is required"), nil
	}
	price, err := marketplace.ParseMoney(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	level := marketplace.AIAssistanceLevel(toString(args["ai_assistance_level"]))
	quote, err := s.settle.QuoteFees(price, level)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to quote fees: %v", err)), nil
	}
	return jsonResult(quote), nil
}

func (s *MCPServer) registerSuggestTaskIdeasTool() {
	tool := mcp.NewTool("suggest_task_ideas",
		mcp.WithDescription("Ask the AI assistant for suggestions on how to approach a task"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Task description")),
		mcp.WithString("category", mcp.Description("Task category")),
		mcp.WithArray("skills", mcp.Description("Required skills")),
		mcp.WithNumber("count", mcp.Description("Number of suggestions (default 3)")),
	)
	s.mcpServer.AddTool(tool, s.handleSuggestTaskIdeas)
}

func (s *MCPServer) handleSuggestTaskIdeas(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	items, err := s.assist.Suggest(ctx, marketplace.SuggestionRequest{
		Title:          toString(args["title"]),
		Description:    toString(args["description"]),
		Category:       toString(args["category"]),
		RequiredSkills: toStringSlice(args["skills"]),
		Count:          toInt(args["count"]),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get suggestions: %v", err)), nil
	}
	return jsonResult(map[string]any{"suggestions": items}), nil
}

func (s *MCPServer) registerApplyForTaskTool() {
	tool := mcp.NewTool("apply_for_task",
		mcp.WithDescription("Apply for an open task on behalf of the session's user"),
		mcp.WithString("session_token", mcp.Required(), mcp.Description("Session token from wallet login")),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task to apply for")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Cover message for the task creator")),
		mcp.WithNumber("proposed_price", mcp.Required(), mcp.Description("Proposed price in tokens")),
		mcp.WithString("proposed_deadline", mcp.Required(), mcp.Description("Proposed deadline (RFC 3339)")),
	)
	s.mcpServer.AddTool(tool, s.handleApplyForTask)
}

func (s *MCPServer) handleApplyForTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.caller(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()

	in := marketplace.ApplyInput{Message: toString(args["message"])}
	if raw := toString(args["proposed_price"]); raw != "" {
		price, err := marketplace.ParseMoney(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		in.ProposedPrice = &price
	}
	if raw := toString(args["proposed_deadline"]); raw != "" {
		deadline, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("proposed_deadline must be RFC 3339: %v", err)), nil
		}
		in.ProposedDeadline = deadline
	}

	task, err := s.tasks.ApplyForTask(ctx, taskID, user.ID, in)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to apply for task: %v", err)), nil
	}
	app := task.Applications[len(task.Applications)-1]
	return jsonResult(map[string]any{
		"success":        true,
		"task_id":        task.ID,
		"application_id": app.ID,
		"message":        "Application submitted. The task creator will review it.",
	}), nil
}

func (s *MCPServer) registerTaskTransactionsTool() {
	tool := mcp.NewTool("task_transactions",
		mcp.WithDescription("List escrow and payment transactions of a task you take part in"),
		mcp.WithString("session_token", mcp.Required(), mcp.Description("Session token from wallet login")),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the task")),
	)
	s.mcpServer.AddTool(tool, s.handleTaskTransactions)
}

func (s *MCPServer) handleTaskTransactions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.caller(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	txns, err := s.settle.TaskTransactions(ctx, taskID, user)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}
	return jsonResult(map[string]any{"transactions": txns, "total": len(txns)}), nil
}

func (s *MCPServer) registerMyStatsTool() {
	tool := mcp.NewTool("my_stats",
		mcp.WithDescription("Show earnings, spending and task counts for the session's user"),
		mcp.WithString("session_token", mcp.Required(), mcp.Description("Session token from wallet login")),
	)
	s.mcpServer.AddTool(tool, s.handleMyStats)
}

func (s *MCPServer) handleMyStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.caller(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, err := s.settle.UserStats(ctx, user.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}
	return jsonResult(stats), nil
}
