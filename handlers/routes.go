package handlers

import (
	"net/http"

	"github.com/swaggo/swag"

	"coai-backend/docs"
	"coai-backend/middleware"
)

// Handlers groups every HTTP handler the API serves.
type Handlers struct {
	Health       *HealthHandler
	Auth         *AuthHandler
	Tasks        *TaskHandler
	Wallet       *WalletHandler
	Transactions *TransactionHandler
	Feedback     *FeedbackHandler
	AI           *AIHandler
	Users        *UserHandler
}

// RouteOptions carries the cross-cutting pieces route registration needs.
type RouteOptions struct {
	// Protect authenticates the caller.
	Protect func(http.Handler) http.Handler
	// AuthLimit throttles the unauthenticated login endpoints. Optional.
	AuthLimit func(http.Handler) http.Handler
	Metrics   http.Handler
}

// NewRouter registers every route on a fresh ServeMux.
func NewRouter(h Handlers, opts RouteOptions) *http.ServeMux {
	mux := http.NewServeMux()
	identity := func(next http.Handler) http.Handler { return next }
	limit := opts.AuthLimit
	if limit == nil {
		limit = identity
	}

	route := func(pattern string, fn http.Handler, wrap ...func(http.Handler) http.Handler) {
		var handler http.Handler = fn
		for i := len(wrap) - 1; i >= 0; i-- {
			handler = wrap[i](handler)
		}
		mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middleware.SetRoute(r, pattern)
			handler.ServeHTTP(w, r)
		}))
	}
	public := func(pattern string, fn http.HandlerFunc) { route(pattern, fn) }
	private := func(pattern string, fn http.HandlerFunc) { route(pattern, fn, opts.Protect) }

	public("GET /healthz", h.Health.HandleHealth)
	if opts.Metrics != nil {
		route("GET /metrics", opts.Metrics)
	}
	public("GET /api/docs/swagger.json", handleSwagger)

	route("GET /api/auth/nonce/{walletAddress}", http.HandlerFunc(h.Auth.HandleNonce), limit)
	route("POST /api/auth/challenge", http.HandlerFunc(h.Auth.HandleChallenge), limit)
	route("POST /api/auth/verify", http.HandlerFunc(h.Auth.HandleVerify), limit)
	private("GET /api/auth/me", h.Auth.HandleMe)
	private("POST /api/auth/logout", h.Auth.HandleLogout)

	public("GET /api/tasks", h.Tasks.HandleList)
	public("GET /api/tasks/{id}", h.Tasks.HandleGet)
	private("POST /api/tasks", h.Tasks.HandleCreate)
	private("PUT /api/tasks/{id}", h.Tasks.HandleUpdate)
	private("DELETE /api/tasks/{id}", h.Tasks.HandleDelete)
	private("POST /api/tasks/{id}/apply", h.Tasks.HandleApply)
	private("POST /api/tasks/{id}/accept", h.Tasks.HandleAccept)
	private("POST /api/tasks/{id}/applications/{applicationId}/accept", h.Tasks.HandleAccept)
	for _, move := range []string{"publish", "start", "complete", "cancel"} {
		private("POST /api/tasks/{id}/"+move, h.Tasks.HandleTransition(move))
	}

	private("POST /api/wallet/escrow/{taskId}", h.Wallet.HandleEscrow)
	private("GET /api/wallet/escrow/{taskId}/qrcode", h.Wallet.HandleEscrowQRCode)
	private("POST /api/wallet/release-payment/{taskId}", h.Wallet.HandleRelease)
	private("POST /api/wallet/refund/{taskId}", h.Wallet.HandleRefund)
	public("GET /api/wallet/fees", h.Wallet.HandleFees)
	public("GET /api/wallet/token-balance/{walletAddress}", h.Wallet.HandleTokenBalance)
	public("GET /api/wallet/balance/{walletAddress}", h.Wallet.HandleTokenBalance)

	route("GET /api/transactions", http.HandlerFunc(h.Transactions.HandleList), opts.Protect, middleware.RequireAdmin)
	private("GET /api/transactions/user", h.Transactions.HandleUser)
	private("GET /api/transactions/task/{taskId}", h.Transactions.HandleTask)
	private("GET /api/transactions/{id}", h.Transactions.HandleGet)

	private("POST /api/feedback", h.Feedback.HandleCreate)
	public("GET /api/feedback/user/{userId}", h.Feedback.HandleUser)
	public("GET /api/feedback/task/{taskId}", h.Feedback.HandleTask)

	private("POST /api/ai/suggestions", h.AI.HandleSuggestions)
	private("POST /api/ai/contribute/{taskId}", h.AI.HandleContribute)
	private("GET /api/ai/skill-recommendations", h.AI.HandleSkillRecommendations)

	route("GET /api/users", http.HandlerFunc(h.Users.HandleList), opts.Protect, middleware.RequireAdmin)
	public("GET /api/users/{id}", h.Users.HandleGet)
	public("GET /api/users/wallet/{walletAddress}", h.Users.HandleByWallet)
	private("PUT /api/users/me", h.Users.HandleUpdateProfile)
	private("PUT /api/users/profile", h.Users.HandleUpdateProfile)
	private("GET /api/users/me/tasks", h.Users.HandleTasks)
	// {id}/{view} rather than one pattern per view: wallet/{walletAddress}
	// would otherwise overlap {id}/stats with neither more specific.
	private("GET /api/users/{id}/{view}", h.Users.HandleView)

	return mux
}

func handleSwagger(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(doc))
}
