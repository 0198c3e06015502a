package handlers

import (
	"net/http"

	"coai-backend/core/marketplace"
	"coai-backend/models"
	"coai-backend/services"
)

// WalletHandler exposes escrow settlement.
type WalletHandler struct {
	*BaseHandler
	settle *marketplace.SettlementService
	tasks  *marketplace.LifecycleManager
	qr     *services.QRCodeService
}

// NewWalletHandler builds a WalletHandler.
func NewWalletHandler(settle *marketplace.SettlementService, tasks *marketplace.LifecycleManager, qr *services.QRCodeService) *WalletHandler {
	return &WalletHandler{BaseHandler: NewBaseHandler(), settle: settle, tasks: tasks, qr: qr}
}

// HandleEscrow funds escrow for an assigned task.
// @Summary Create escrow
// @Description Deposits the task price into escrow. The task must be assigned.
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Success 200 {object} models.EscrowResponse
// @Failure 409 {object} models.APIResponse
// @Failure 502 {object} models.APIResponse
// @Router /api/wallet/escrow/{taskId} [post]
func (h *WalletHandler) HandleEscrow(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	taskID := r.PathValue("taskId")
	txn, err := h.settle.CreateEscrow(r.Context(), taskID, user.ID)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	task, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, models.EscrowResponse{Transaction: txn, PaymentRequest: h.qr.PaymentRequest(task)})
}

// HandleEscrowQRCode renders the escrow payment request as a PNG.
// @Summary Escrow payment QR code
// @Tags Wallet
// @Produce png
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Success 200 {file} binary
// @Router /api/wallet/escrow/{taskId}/qrcode [get]
func (h *WalletHandler) HandleEscrowQRCode(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.GetTask(r.Context(), r.PathValue("taskId"))
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	if task.CreatorID != user.ID {
		h.sendServiceError(w, marketplace.AuthorizationError("only the task creator can fund escrow"))
		return
	}
	png, err := h.qr.EscrowQRCode(task)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// HandleRelease pays the assignee from escrow.
// @Summary Release payment
// @Description Releases escrow to the assignee of a completed task, net of platform and AI contribution fees.
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Success 200 {object} marketplace.ReleaseResult
// @Failure 404 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /api/wallet/release-payment/{taskId} [post]
func (h *WalletHandler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	res, err := h.settle.ReleasePayment(r.Context(), r.PathValue("taskId"), user.ID)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, res)
}

// HandleRefund returns escrow to the creator of a cancelled task.
// @Summary Refund escrow
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Success 200 {object} marketplace.Transaction
// @Router /api/wallet/refund/{taskId} [post]
func (h *WalletHandler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	txn, err := h.settle.Refund(r.Context(), r.PathValue("taskId"), user.ID)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, txn)
}

// HandleFees previews the fee breakdown for a price.
// @Summary Fee preview
// @Tags Wallet
// @Produce json
// @Param price query number true "Task price"
// @Param ai_assistance_level query string false "Low|Medium|High (default Medium)"
// @Success 200 {object} marketplace.FeeBreakdown
// @Router /api/wallet/fees [get]
func (h *WalletHandler) HandleFees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	price, err := marketplace.ParseMoney(q.Get("price"))
	if err != nil {
		h.sendServiceError(w, marketplace.ValidationError("price", "price must be a number"))
		return
	}
	fees, err := h.settle.QuoteFees(price, marketplace.AIAssistanceLevel(q.Get("ai_assistance_level")))
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, fees)
}

// HandleTokenBalance reports the marketplace balance held for a wallet.
// @Summary Token balance
// @Tags Wallet
// @Produce json
// @Param walletAddress path string true "Wallet address"
// @Success 200 {object} models.BalanceResponse
// @Router /api/wallet/token-balance/{walletAddress} [get]
// @Router /api/wallet/balance/{walletAddress} [get]
func (h *WalletHandler) HandleTokenBalance(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("walletAddress")
	user, err := h.settle.BalanceByWallet(r.Context(), wallet)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, models.BalanceResponse{WalletAddress: wallet, Balance: user.Balance})
}
