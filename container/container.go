package container

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"coai-backend/config"
	"coai-backend/core/marketplace"
	"coai-backend/handlers"
	"coai-backend/mcp"
	"coai-backend/metrics"
	"coai-backend/middleware"
	"coai-backend/services"
	"coai-backend/storage/auth"
	storage "coai-backend/storage/marketplace"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config

	// Storage
	Store      marketplace.Store
	Challenges *auth.ChallengeStore
	Sessions   auth.SessionStore

	// Services
	Lifecycle  *marketplace.LifecycleManager
	Settlement *marketplace.SettlementService
	Feedback   *marketplace.FeedbackService
	Assist     *marketplace.AssistService
	Users      *marketplace.UserService
	Chain      *marketplace.SimulatedChain
	QRCode     *services.QRCodeService
	Health     *services.HealthService
	Metrics    *metrics.Metrics

	// Handlers
	Handlers handlers.Handlers
}

// NewContainer builds every dependency described by cfg.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg, Metrics: metrics.New()}

	switch cfg.Store.Driver {
	case "postgres":
		pg, err := storage.NewPGStore(ctx, cfg.Store.PGDSN, cfg.Store.Seed)
		if err != nil {
			return nil, err
		}
		sessions, err := auth.NewPGSessionStore(ctx, pg.Pool(), cfg.Auth.SessionTTL)
		if err != nil {
			pg.Close()
			return nil, err
		}
		c.Store, c.Sessions = pg, sessions
	default:
		mem := storage.NewMemoryStore()
		if cfg.Store.Seed {
			if err := storage.Seed(ctx, mem); err != nil {
				return nil, fmt.Errorf("seed fixtures: %w", err)
			}
		}
		c.Store, c.Sessions = mem, auth.NewMemorySessionStore(cfg.Auth.SessionTTL)
	}
	c.Challenges = auth.NewChallengeStore(cfg.Auth.ChallengeTTL)

	opts := []marketplace.Option{
		marketplace.WithRecorder(c.Metrics),
		marketplace.WithPolicy(marketplace.Policy{
			RequireFutureDeadline: cfg.Policy.RequireFutureDeadline,
			RejectPendingOnAccept: cfg.Policy.RejectPendingOnAccept,
		}),
	}
	if cfg.AI.APIKey != "" {
		opts = append(opts, marketplace.WithSuggester(services.NewAIService(services.AIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})))
	} else {
		log.Printf("AI suggestions disabled: no api key configured")
	}

	c.Chain = marketplace.NewSimulatedChain()
	c.Lifecycle = marketplace.NewLifecycleManager(c.Store, opts...)
	c.Settlement = marketplace.NewSettlementService(c.Store, c.Chain, opts...)
	c.Feedback = marketplace.NewFeedbackService(c.Store, opts...)
	c.Assist = marketplace.NewAssistService(c.Store, opts...)
	c.Users = marketplace.NewUserService(c.Store, cfg.Auth.AdminWallets, opts...)
	c.QRCode = services.NewQRCodeService(cfg.Escrow.Address)
	c.Health = services.NewHealthService(cfg.Store.Driver)

	c.Handlers = handlers.Handlers{
		Health:       handlers.NewHealthHandler(c.Health),
		Auth:         handlers.NewAuthHandler(c.Challenges, c.Sessions, c.Users),
		Tasks:        handlers.NewTaskHandler(c.Lifecycle),
		Wallet:       handlers.NewWalletHandler(c.Settlement, c.Lifecycle, c.QRCode),
		Transactions: handlers.NewTransactionHandler(c.Settlement),
		Feedback:     handlers.NewFeedbackHandler(c.Feedback),
		AI:           handlers.NewAIHandler(c.Assist),
		Users:        handlers.NewUserHandler(c.Users, c.Lifecycle, c.Settlement),
	}
	return c, nil
}

// Router returns the HTTP handler with the full middleware stack.
func (c *Container) Router() http.Handler {
	mux := handlers.NewRouter(c.Handlers, handlers.RouteOptions{
		Protect:   middleware.RequireSession(c.Sessions, c.Users),
		AuthLimit: middleware.RateLimit(c.Config.Server.AuthRateLimit, c.Config.Server.AuthRateWindow),
		Metrics:   c.Metrics.Handler(),
	})
	return middleware.Chain(mux,
		middleware.Recovery,
		middleware.Logging,
		middleware.Metrics(c.Metrics),
		middleware.CORS,
		middleware.SecurityHeaders,
		middleware.Timeout(c.Config.Server.RequestTimeout),
	)
}

// MCPServer exposes the marketplace services as MCP tools.
func (c *Container) MCPServer() *mcp.MCPServer {
	return mcp.NewMCPServer(c.Lifecycle, c.Settlement, c.Assist, c.Users, c.Sessions)
}

// StartSweeper prunes expired login challenges until ctx is done.
func (c *Container) StartSweeper(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Challenges.Sweep(); n > 0 {
					log.Printf("swept %d expired login challenges", n)
				}
				if pg, ok := c.Sessions.(*auth.PGSessionStore); ok {
					if _, err := pg.Purge(ctx); err != nil {
						log.Printf("purge sessions: %v", err)
					}
				}
			}
		}
	}()
}

// Close releases the store.
func (c *Container) Close() {
	c.Store.Close()
}
