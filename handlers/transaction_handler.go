package handlers

import (
	"net/http"
	"strconv"

	"coai-backend/core/marketplace"
)

// TransactionHandler exposes the ledger.
type TransactionHandler struct {
	*BaseHandler
	settle *marketplace.SettlementService
}

// NewTransactionHandler builds a TransactionHandler.
func NewTransactionHandler(settle *marketplace.SettlementService) *TransactionHandler {
	return &TransactionHandler{BaseHandler: NewBaseHandler(), settle: settle}
}

// HandleList lists every transaction. Admin only.
// @Summary List all transactions
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param type query string false "Transaction type"
// @Param status query string false "Transaction status"
// @Param limit query int false "Maximum entries"
// @Success 200 {array} marketplace.Transaction
// @Router /api/transactions [get]
func (h *TransactionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := marketplace.TransactionFilter{
		TaskID: q.Get("task_id"),
		Type:   marketplace.TransactionType(q.Get("type")),
		Status: marketplace.TransactionStatus(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.sendServiceError(w, marketplace.ValidationError("limit", "limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}
	txns, err := h.settle.ListTransactions(r.Context(), filter)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, txns)
}

// HandleUser lists the caller's transactions.
// @Summary My transactions
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} marketplace.Transaction
// @Router /api/transactions/user [get]
func (h *TransactionHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	txns, err := h.settle.UserTransactions(r.Context(), user.ID)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, txns)
}

// HandleTask lists a task's transactions.
// @Summary Task transactions
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Success 200 {array} marketplace.Transaction
// @Router /api/transactions/task/{taskId} [get]
func (h *TransactionHandler) HandleTask(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	txns, err := h.settle.TaskTransactions(r.Context(), r.PathValue("taskId"), user)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, txns)
}

// HandleGet returns one transaction.
// @Summary Get a transaction
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} marketplace.Transaction
// @Router /api/transactions/{id} [get]
func (h *TransactionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	txn, err := h.settle.GetTransaction(r.Context(), r.PathValue("id"), user)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendSuccess(w, txn)
}
