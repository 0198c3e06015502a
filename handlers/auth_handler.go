package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"coai-backend/core/marketplace"
	"coai-backend/middleware"
	"coai-backend/models"
	auth "coai-backend/storage/auth"
)

// AuthHandler runs the wallet challenge/verify login flow.
type AuthHandler struct {
	*BaseHandler
	challenges *auth.ChallengeStore
	sessions   auth.SessionStore
	users      *marketplace.UserService
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(challenges *auth.ChallengeStore, sessions auth.SessionStore, users *marketplace.UserService) *AuthHandler {
	return &AuthHandler{BaseHandler: NewBaseHandler(), challenges: challenges, sessions: sessions, users: users}
}

// HandleChallenge issues a nonce for wallet verification.
// Request: {"wallet_address":"..."}
// Response: {"nonce":"...","message":"Sign this message to authenticate with CoAI: ...","expires_at":"..."}
// @Summary Issue a wallet login challenge
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body models.ChallengeRequest true "Wallet"
// @Success 200 {object} auth.Challenge
// @Router /api/auth/challenge [post]
func (h *AuthHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	var body models.ChallengeRequest
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.issue(w, body.WalletAddress)
}

// HandleNonce is the GET form of HandleChallenge.
// @Summary Issue a wallet login challenge
// @Tags Auth
// @Produce json
// @Param walletAddress path string true "Wallet address"
// @Success 200 {object} auth.Challenge
// @Router /api/auth/nonce/{walletAddress} [get]
func (h *AuthHandler) HandleNonce(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r.PathValue("walletAddress"))
}

func (h *AuthHandler) issue(w http.ResponseWriter, wallet string) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		h.sendError(w, http.StatusBadRequest, "wallet_address required")
		return
	}
	ch, err := h.challenges.Issue(wallet)
	if errors.Is(err, auth.ErrInvalidWallet) {
		h.sendError(w, http.StatusBadRequest, "Invalid wallet address")
		return
	}
	if err != nil {
		log.Printf("issue challenge: %v", err)
		h.sendError(w, http.StatusInternalServerError, "failed to issue challenge")
		return
	}
	h.sendSuccess(w, ch)
}

// HandleVerify checks the signed challenge, logs the wallet in and issues a session token.
// @Summary Verify a signed challenge
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body models.VerifyRequest true "Signed challenge"
// @Success 200 {object} models.LoginResponse
// @Failure 401 {object} models.APIResponse
// @Router /api/auth/verify [post]
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var body models.VerifyRequest
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json")
		return
	}
	wallet := strings.TrimSpace(body.WalletAddress)
	if wallet == "" || body.Signature == "" || body.Message == "" {
		h.sendError(w, http.StatusBadRequest, "Please provide wallet_address, signature and message")
		return
	}

	switch err := h.challenges.Verify(wallet, body.Message, body.Signature); {
	case err == nil:
	case errors.Is(err, auth.ErrChallengeMismatch):
		h.sendError(w, http.StatusBadRequest, "Invalid message")
		return
	case errors.Is(err, auth.ErrTooManyAttempts):
		h.sendError(w, http.StatusTooManyRequests, err.Error())
		return
	default:
		h.sendError(w, http.StatusUnauthorized, "Signature verification failed: "+err.Error())
		return
	}

	user, err := h.users.Login(r.Context(), wallet)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	sess, err := h.sessions.Issue(r.Context(), user.ID, user.WalletAddress)
	if err != nil {
		log.Printf("issue session for %s: %v", user.ID, err)
		h.sendError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	h.sendSuccess(w, models.LoginResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: user})
}

// HandleMe returns the authenticated user.
// @Summary Current user
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} marketplace.User
// @Router /api/auth/me [get]
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.sendSuccess(w, user)
}

// HandleLogout revokes the caller's session token.
// @Summary Log out
// @Tags Auth
// @Security BearerAuth
// @Success 200 {object} models.APIResponse
// @Router /api/auth/logout [post]
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		h.sendError(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	if err := h.sessions.Revoke(r.Context(), a.Session.Token); err != nil {
		log.Printf("revoke session: %v", err)
		h.sendError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	h.sendSuccess(w, map[string]string{"message": "Logged out successfully"})
}
