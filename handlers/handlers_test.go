package handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"coai-backend/core/marketplace"
	"coai-backend/middleware"
	"coai-backend/models"
	"coai-backend/services"
	auth "coai-backend/storage/auth"
	storage "coai-backend/storage/marketplace"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type stubSuggester struct{}

func (stubSuggester) Suggest(context.Context, marketplace.SuggestionRequest) (iter.Seq[string], error) {
	return slices.Values([]string{"Start with a wireframe", "Reuse components"}), nil
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	chain   *marketplace.SimulatedChain
	store   *storage.MemoryStore
}

type envelope struct {
	Success bool                  `json:"success"`
	Data    json.RawMessage       `json:"data"`
	Error   *models.ErrorResponse `json:"error"`
	Meta    map[string]any        `json:"meta"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	chain := marketplace.NewSimulatedChain()
	opts := []marketplace.Option{marketplace.WithSuggester(stubSuggester{})}

	tasks := marketplace.NewLifecycleManager(store, opts...)
	settle := marketplace.NewSettlementService(store, chain, opts...)
	users := marketplace.NewUserService(store, nil, opts...)
	sessions := auth.NewMemorySessionStore(time.Hour)

	h := Handlers{
		Health:       NewHealthHandler(services.NewHealthService("memory")),
		Auth:         NewAuthHandler(auth.NewChallengeStore(time.Minute), sessions, users),
		Tasks:        NewTaskHandler(tasks),
		Wallet:       NewWalletHandler(settle, tasks, services.NewQRCodeService("Escrow111111111111111111111111111111111111")),
		Transactions: NewTransactionHandler(settle),
		Feedback:     NewFeedbackHandler(marketplace.NewFeedbackService(store, opts...)),
		AI:           NewAIHandler(marketplace.NewAssistService(store, opts...)),
		Users:        NewUserHandler(users, tasks, settle),
	}
	mux := NewRouter(h, RouteOptions{Protect: middleware.RequireSession(sessions, users)})
	return &testServer{t: t, handler: mux, chain: chain, store: store}
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

func (s *testServer) must(method, path, token string, body any, out any) {
	s.t.Helper()
	code, env := s.do(method, path, token, body)
	if code/100 != 2 || !env.Success {
		s.t.Fatalf("%s %s = %d %+v", method, path, code, env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			s.t.Fatalf("%s %s: decode data: %v", method, path, err)
		}
	}
}

type account struct {
	token string
	user  marketplace.User
}

// login runs the challenge/verify flow with a fresh ed25519 key.
func (s *testServer) login() account {
	s.t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		s.t.Fatalf("GenerateKey: %v", err)
	}
	wallet := auth.EncodeWallet(pub)

	var ch auth.Challenge
	s.must(http.MethodPost, "/api/auth/challenge", "", models.ChallengeRequest{WalletAddress: wallet}, &ch)
	if !strings.HasPrefix(ch.Message, "Sign this message to authenticate with CoAI: ") {
		s.t.Fatalf("challenge message = %q", ch.Message)
	}
	var resp models.LoginResponse
	s.must(http.MethodPost, "/api/auth/verify", "", models.VerifyRequest{
		WalletAddress: wallet,
		Message:       ch.Message,
		Signature:     auth.EncodeSignature(ed25519.Sign(priv, []byte(ch.Message))),
	}, &resp)
	return account{token: resp.Token, user: resp.User}
}

// promote grants the admin role to a logged-in account.
func (s *testServer) promote(a account) {
	s.t.Helper()
	ctx := context.Background()
	err := s.store.Atomic(ctx, func(tx marketplace.Tx) error {
		u, err := tx.GetUser(ctx, a.user.ID)
		if err != nil {
			return err
		}
		u.Role = marketplace.RoleAdmin
		return tx.SaveUser(ctx, u)
	})
	if err != nil {
		s.t.Fatalf("promote %s: %v", a.user.ID, err)
	}
}

func taskBody(price float64) map[string]any {
	return map[string]any{
		"title":               "Landing page",
		"description":         "Responsive landing page",
		"category":            "web-development",
		"required_skills":     []string{"react"},
		"price":               price,
		"deadline":            time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"ai_assistance_level": "Medium",
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{marketplace.ValidationError("title", "required"), http.StatusBadRequest},
		{marketplace.AuthorizationError("nope"), http.StatusForbidden},
		{marketplace.ConflictError("busy"), http.StatusConflict},
		{marketplace.NotFoundError("task", "x"), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", marketplace.ConflictError("busy")), http.StatusConflict},
		{fmt.Errorf("%w: deposit: %w", marketplace.ErrSettlementFailed, errors.New("rpc down")), http.StatusBadGateway},
		{marketplace.ErrSuggesterUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	acct := s.login()
	if acct.token == "" || acct.user.ID == "" || acct.user.LastLogin == nil {
		t.Fatalf("login = %+v", acct)
	}

	var me marketplace.User
	s.must(http.MethodGet, "/api/auth/me", acct.token, nil, &me)
	if me.ID != acct.user.ID {
		t.Errorf("me = %s, want %s", me.ID, acct.user.ID)
	}

	s.must(http.MethodPost, "/api/auth/logout", acct.token, nil, nil)
	if code, _ := s.do(http.MethodGet, "/api/auth/me", acct.token, nil); code != http.StatusUnauthorized {
		t.Errorf("me after logout = %d", code)
	}

	if code, _ := s.do(http.MethodGet, "/api/auth/nonce/not-a-wallet", "", nil); code != http.StatusBadRequest {
		t.Errorf("invalid wallet nonce = %d", code)
	}
	code, env := s.do(http.MethodPost, "/api/auth/verify", "", models.VerifyRequest{WalletAddress: acct.user.WalletAddress, Message: "x", Signature: "y"})
	if code != http.StatusUnauthorized || env.Success {
		t.Errorf("verify without challenge = %d", code)
	}
}

func TestTaskAndSettlementFlow(t *testing.T) {
	s := newTestServer(t)
	creator, worker, outsider := s.login(), s.login(), s.login()

	if code, _ := s.do(http.MethodPost, "/api/tasks", "", taskBody(300)); code != http.StatusUnauthorized {
		t.Fatalf("anonymous create = %d", code)
	}

	var task marketplace.Task
	s.must(http.MethodPost, "/api/tasks", creator.token, taskBody(300), &task)
	if task.Status != marketplace.TaskOpen || task.Price != 30000 || len(task.AIContributions) != 2 {
		t.Fatalf("created = %+v", task)
	}

	code, env := s.do(http.MethodPost, "/api/tasks", creator.token, map[string]any{"title": "no description"})
	if code != http.StatusBadRequest || env.Error == nil || env.Error.Kind != "validation" {
		t.Errorf("invalid create = %d %+v", code, env.Error)
	}

	code, env = s.do(http.MethodGet, "/api/tasks?status=open&skills=REACT", "", nil)
	if code != http.StatusOK || env.Meta["total"] != float64(1) {
		t.Errorf("list = %d meta %v", code, env.Meta)
	}
	if code, _ := s.do(http.MethodGet, "/api/tasks?limit=abc", "", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit = %d", code)
	}

	if code, _ := s.do(http.MethodPost, "/api/wallet/escrow/"+task.ID, creator.token, nil); code != http.StatusConflict {
		t.Errorf("escrow on open task = %d", code)
	}

	apply := map[string]any{
		"message":           "I can do this",
		"proposed_price":    250,
		"proposed_deadline": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	}
	var applied marketplace.Task
	s.must(http.MethodPost, "/api/tasks/"+task.ID+"/apply", worker.token, apply, &applied)
	if code, _ := s.do(http.MethodPost, "/api/tasks/"+task.ID+"/apply", worker.token, apply); code != http.StatusConflict {
		t.Errorf("second application = %d", code)
	}
	appID := applied.Applications[0].ID

	accept := "/api/tasks/" + task.ID + "/applications/" + appID + "/accept"
	if code, _ := s.do(http.MethodPost, accept, worker.token, nil); code != http.StatusForbidden {
		t.Errorf("accept by non-creator = %d", code)
	}
	var assigned marketplace.Task
	s.must(http.MethodPost, accept, creator.token, nil, &assigned)
	if assigned.Status != marketplace.TaskAssigned || assigned.AssignedTo != worker.user.ID || assigned.Price != 25000 {
		t.Fatalf("assigned = %+v", assigned)
	}

	code, env = s.do(http.MethodPut, "/api/tasks/"+task.ID, creator.token, map[string]any{"price": 999})
	if code != http.StatusConflict || env.Error.Kind != "conflict" {
		t.Errorf("price change after assignment = %d", code)
	}

	var escrow models.EscrowResponse
	s.must(http.MethodPost, "/api/wallet/escrow/"+task.ID, creator.token, nil, &escrow)
	if escrow.Transaction.Status != marketplace.TxCompleted || !strings.Contains(escrow.PaymentRequest, "amount=250.00") {
		t.Errorf("escrow = %+v", escrow)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/wallet/escrow/"+task.ID+"/qrcode", nil)
	req.Header.Set("Authorization", "Bearer "+creator.token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("qrcode = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}

	if code, _ := s.do(http.MethodPost, "/api/wallet/release-payment/"+task.ID, creator.token, nil); code != http.StatusConflict {
		t.Errorf("release before completion = %d", code)
	}

	s.must(http.MethodPost, "/api/tasks/"+task.ID+"/start", worker.token, nil, nil)
	if code, _ := s.do(http.MethodPost, "/api/tasks/"+task.ID+"/complete", worker.token, nil); code != http.StatusForbidden {
		t.Errorf("complete by assignee = %d", code)
	}
	s.must(http.MethodPost, "/api/tasks/"+task.ID+"/complete", creator.token, nil, nil)

	var res marketplace.ReleaseResult
	s.must(http.MethodPost, "/api/wallet/release-payment/"+task.ID, creator.token, nil, &res)
	if res.NetPayment != 21250 || res.PlatformFee != 1250 || res.AIContributionFee != 2500 {
		t.Errorf("release = %+v", res)
	}
	if code, _ := s.do(http.MethodPost, "/api/wallet/release-payment/"+task.ID, creator.token, nil); code != http.StatusConflict {
		t.Errorf("second release = %d", code)
	}

	var bal models.BalanceResponse
	s.must(http.MethodGet, "/api/wallet/token-balance/"+worker.user.WalletAddress, "", nil, &bal)
	if bal.Balance != 21250 {
		t.Errorf("worker balance = %s", bal.Balance)
	}

	var txns []marketplace.Transaction
	s.must(http.MethodGet, "/api/transactions/task/"+task.ID, worker.token, nil, &txns)
	if len(txns) != 2 || txns[0].Type != marketplace.TxEscrowRelease {
		t.Errorf("task transactions = %+v", txns)
	}
	if code, _ := s.do(http.MethodGet, "/api/transactions/task/"+task.ID, outsider.token, nil); code != http.StatusForbidden {
		t.Errorf("outsider task transactions = %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/api/transactions/"+txns[0].ID, outsider.token, nil); code != http.StatusForbidden {
		t.Errorf("outsider transaction = %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/api/transactions", creator.token, nil); code != http.StatusForbidden {
		t.Errorf("non-admin list = %d", code)
	}

	var stats marketplace.UserStats
	s.must(http.MethodGet, "/api/users/me/stats", worker.token, nil, &stats)
	if stats.TotalEarnings != 21250 || stats.TotalTasksCompleted != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if code, _ := s.do(http.MethodGet, "/api/users/"+worker.user.ID+"/stats", outsider.token, nil); code != http.StatusForbidden {
		t.Errorf("stats of another user = %d", code)
	}

	var fb marketplace.Feedback
	s.must(http.MethodPost, "/api/feedback", creator.token, map[string]any{
		"task_id": task.ID, "receiver_id": worker.user.ID, "rating": 5, "comment": "Great",
	}, &fb)
	var profile marketplace.User
	s.must(http.MethodGet, "/api/users/"+worker.user.ID, "", nil, &profile)
	if profile.Reputation != 5 {
		t.Errorf("reputation = %v", profile.Reputation)
	}

	var apps []marketplace.UserApplication
	s.must(http.MethodGet, "/api/users/me/applications", worker.token, nil, &apps)
	if len(apps) != 1 || apps[0].TaskID != task.ID || apps[0].Status != marketplace.ApplicationAccepted {
		t.Errorf("applications = %+v", apps)
	}
}

func TestSettlementFailureMapsToBadGateway(t *testing.T) {
	s := newTestServer(t)
	creator, worker := s.login(), s.login()

	var task marketplace.Task
	s.must(http.MethodPost, "/api/tasks", creator.token, taskBody(100), &task)
	var applied marketplace.Task
	s.must(http.MethodPost, "/api/tasks/"+task.ID+"/apply", worker.token, map[string]any{
		"message": "me", "proposed_price": 100, "proposed_deadline": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}, &applied)
	s.must(http.MethodPost, "/api/tasks/"+task.ID+"/accept", creator.token, models.AcceptRequest{ApplicationID: applied.Applications[0].ID}, nil)

	s.chain.FailWith(errors.New("rpc unavailable"))
	if code, _ := s.do(http.MethodPost, "/api/wallet/escrow/"+task.ID, creator.token, nil); code != http.StatusBadGateway {
		t.Errorf("escrow with failing chain = %d", code)
	}
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t)

	var fees marketplace.FeeBreakdown
	s.must(http.MethodGet, "/api/wallet/fees?price=100&ai_assistance_level=High", "", nil, &fees)
	if fees.PlatformFee != 500 || fees.AIContributionFee != 1500 || fees.NetPayment != 8000 {
		t.Errorf("fees = %+v", fees)
	}
	if code, _ := s.do(http.MethodGet, "/api/wallet/fees?price=abc", "", nil); code != http.StatusBadRequest {
		t.Errorf("bad price = %d", code)
	}

	var health models.HealthResponse
	s.must(http.MethodGet, "/healthz", "", nil, &health)
	if health.Status != "healthy" {
		t.Errorf("health = %+v", health)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/docs/swagger.json", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("swagger doc is not JSON: %v", err)
	}
	if doc["swagger"] != "2.0" {
		t.Errorf("swagger = %v", doc["swagger"])
	}

	if code, _ := s.do(http.MethodGet, "/api/tasks/missing", "", nil); code != http.StatusNotFound {
		t.Errorf("missing task = %d", code)
	}
}

func TestAIEndpoints(t *testing.T) {
	s := newTestServer(t)
	acct := s.login()

	var items []string
	s.must(http.MethodPost, "/api/ai/suggestions", acct.token, models.SuggestionsRequest{Title: "Logo", Description: "Vector"}, &items)
	if len(items) != 2 {
		t.Errorf("suggestions = %q", items)
	}
	if code, _ := s.do(http.MethodPost, "/api/ai/suggestions", acct.token, models.SuggestionsRequest{Title: "Logo"}); code != http.StatusBadRequest {
		t.Errorf("missing description = %d", code)
	}
	// No skills on a fresh account.
	if code, _ := s.do(http.MethodGet, "/api/ai/skill-recommendations", acct.token, nil); code != http.StatusBadRequest {
		t.Errorf("skill recommendations without skills = %d", code)
	}
	var u marketplace.User
	s.must(http.MethodPut, "/api/users/me", acct.token, map[string]any{"skills": []string{"go"}}, &u)
	s.must(http.MethodGet, "/api/ai/skill-recommendations", acct.token, nil, &items)
}

func TestUserDirectory(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.login(), s.login()

	var byWallet marketplace.User
	s.must(http.MethodGet, "/api/users/wallet/"+bob.user.WalletAddress, "", nil, &byWallet)
	if byWallet.ID != bob.user.ID {
		t.Errorf("wallet lookup = %s, want %s", byWallet.ID, bob.user.ID)
	}
	if code, _ := s.do(http.MethodGet, "/api/users/wallet/UnknownWa11et", "", nil); code != http.StatusNotFound {
		t.Errorf("unknown wallet = %d", code)
	}

	var stats marketplace.UserStats
	s.must(http.MethodGet, "/api/users/me/stats", bob.token, nil, &stats)
	var apps []marketplace.UserApplication
	s.must(http.MethodGet, "/api/users/"+bob.user.ID+"/applications", bob.token, nil, &apps)
	if code, _ := s.do(http.MethodGet, "/api/users/"+bob.user.ID+"/stats", alice.token, nil); code != http.StatusForbidden {
		t.Errorf("stats of another user = %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/api/users/me/stats", "", nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous stats = %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/api/users/me/avatar", bob.token, nil); code != http.StatusNotFound {
		t.Errorf("unknown view = %d", code)
	}

	if code, _ := s.do(http.MethodGet, "/api/users", "", nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous user list = %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/api/users", alice.token, nil); code != http.StatusForbidden {
		t.Errorf("non-admin user list = %d", code)
	}

	s.promote(alice)
	code, env := s.do(http.MethodGet, "/api/users", alice.token, nil)
	if code != http.StatusOK {
		t.Fatalf("admin user list = %d %+v", code, env.Error)
	}
	var users []marketplace.User
	if err := json.Unmarshal(env.Data, &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 2 || env.Meta["count"] != float64(2) {
		t.Errorf("users = %d, meta = %v", len(users), env.Meta)
	}
	s.must(http.MethodGet, "/api/users/"+bob.user.ID+"/stats", alice.token, nil, &stats)
}
