package container

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"coai-backend/config"
	"coai-backend/core/marketplace"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Addr: ":0", RequestTimeout: 5 * time.Second, AuthRateLimit: 5, AuthRateWindow: time.Minute},
		Store:  config.StoreConfig{Driver: "memory", Seed: true},
		Auth:   config.AuthConfig{ChallengeTTL: time.Minute, SessionTTL: time.Hour, AdminWallets: []string{"AdminWa11et"}},
		Escrow: config.EscrowConfig{Address: "Escrow111111111111111111111111111111111111"},
	}
}

func TestNewContainerMemory(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, testConfig())
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close()

	page, err := c.Lifecycle.ListTasks(ctx, marketplace.TaskFilter{Status: marketplace.TaskOpen})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("seeded open tasks = %d, want 2", page.Total)
	}

	admin, err := c.Users.Login(ctx, "AdminWa11et")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if admin.Role != marketplace.RoleAdmin {
		t.Errorf("configured admin wallet got role %q", admin.Role)
	}
	if c.MCPServer().GetMCPServer() == nil {
		t.Error("mcp server not built")
	}
}

func TestRouterStack(t *testing.T) {
	c, err := NewContainer(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	var health struct {
		Data struct {
			Status string `json:"status"`
			Store  string `json:"store"`
		} `json:"data"`
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp.StatusCode != http.StatusOK || health.Data.Status != "healthy" || health.Data.Store != "memory" {
		t.Errorf("health = %d %+v", resp.StatusCode, health)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	resp, err = http.Get(srv.URL + "/api/transactions")
	if err != nil {
		t.Fatalf("GET /api/transactions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated transactions = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `route="GET /healthz"`) {
		t.Errorf("request metrics missing:\n%s", body)
	}
}

func TestStartSweeper(t *testing.T) {
	c, err := NewContainer(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.StartSweeper(ctx, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	cancel()
}
