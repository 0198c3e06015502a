package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrSettlementFailed wraps chain failures. The ledger entry is kept as failed
// and no balance moves.
var ErrSettlementFailed = errors.New("settlement failed")

// ReleaseResult is the outcome of a payment release.
type ReleaseResult struct {
	Transaction       Transaction `json:"transaction"`
	NetPayment        Money       `json:"net_payment"`
	PlatformFee       Money       `json:"platform_fee"`
	AIContributionFee Money       `json:"ai_contribution_fee"`
}

// UserStats summarises a user's ledger.
type UserStats struct {
	UserID              string `json:"user_id"`
	Balance             Money  `json:"balance"`
	TotalEarnings       Money  `json:"total_earnings"`
	TotalSpending       Money  `json:"total_spending"`
	TransactionCount    int    `json:"transaction_count"`
	TotalTasksCreated   int    `json:"total_tasks_created"`
	TotalTasksCompleted int    `json:"total_tasks_completed"`
}

// SettlementService records escrow deposits, releases and refunds.
type SettlementService struct {
	store Store
	chain Chain
	options
}

// NewSettlementService creates a settlement service moving funds through chain.
func NewSettlementService(store Store, chain Chain, opts ...Option) *SettlementService {
	return &SettlementService{store: store, chain: chain, options: buildOptions(opts)}
}

// QuoteFees previews the split of price without touching the ledger.
func (s *SettlementService) QuoteFees(price Money, level AIAssistanceLevel) (FeeBreakdown, error) {
	if err := validatePrice("price", price); err != nil {
		return FeeBreakdown{}, err
	}
	if level == "" {
		level = AIMedium
	}
	if !level.Valid() {
		return FeeBreakdown{}, ValidationError("ai_assistance_level", "unknown AI assistance level %q", level)
	}
	return ComputeFees(price, level), nil
}

// CreateEscrow locks the task price in escrow once the task is assigned.
func (s *SettlementService) CreateEscrow(ctx context.Context, taskID, actorID string) (Transaction, error) {
	var (
		txn      Transaction
		chainErr error
	)
	err := s.store.Atomic(ctx, func(tx Tx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.CreatorID != actorID {
			return AuthorizationError("only the task creator can create escrow")
		}
		if task.Status != TaskAssigned || task.AssignedTo == "" {
			return ConflictError("task must be assigned before creating escrow")
		}
		if _, found, err := completedOfType(ctx, tx, taskID, TxEscrowDeposit); err != nil {
			return err
		} else if found {
			return ConflictError("escrow already exists for task %s", taskID)
		}

		now := s.now()
		txn = Transaction{
			ID:          s.newID(),
			FromID:      task.CreatorID,
			ToID:        task.CreatorID,
			Amount:      task.Price,
			TaskID:      task.ID,
			Type:        TxEscrowDeposit,
			Status:      TxPending,
			Description: "Escrow for task: " + task.Title,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		receipt, err := s.chain.Deposit(ctx, Transfer{
			TransactionID: txn.ID,
			TaskID:        task.ID,
			From:          task.CreatorID,
			To:            task.CreatorID,
			Amount:        txn.Amount,
		})
		if err != nil {
			chainErr = err
			txn.Status = TxFailed
			return tx.UpdateTransactionStatus(ctx, txn.ID, TxFailed, "")
		}
		txn.Status, txn.TransactionHash = TxCompleted, receipt.Hash
		if err := tx.UpdateTransactionStatus(ctx, txn.ID, TxCompleted, receipt.Hash); err != nil {
			return err
		}
		task.Transactions = append(task.Transactions, txn.ID)
		task.UpdatedAt = now
		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recorder.Settlement(TxEscrowDeposit, txn.Status, txn.Amount)
	if chainErr != nil {
		log.Printf("escrow deposit %s for task %s failed: %v", txn.ID, taskID, chainErr)
		return txn, fmt.Errorf("%w: escrow deposit for task %s: %w", ErrSettlementFailed, taskID, chainErr)
	}
	log.Printf("escrow deposit %s for task %s: %s (hash=%s)", txn.ID, taskID, txn.Amount, txn.TransactionHash)
	return txn, nil
}

// ReleasePayment pays the assignee of a completed task out of escrow, less fees.
func (s *SettlementService) ReleasePayment(ctx context.Context, taskID, actorID string) (ReleaseResult, error) {
	var (
		res      ReleaseResult
		chainErr error
	)
	err := s.store.Atomic(ctx, func(tx Tx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.CreatorID != actorID {
			return AuthorizationError("only the task creator can release payment")
		}
		if task.Status != TaskCompleted {
			return ConflictError("task must be completed before releasing payment")
		}
		if _, found, err := completedOfType(ctx, tx, taskID, TxEscrowDeposit); err != nil {
			return err
		} else if !found {
			return NotFoundError("escrow deposit for task", taskID)
		}
		if _, found, err := completedOfType(ctx, tx, taskID, TxEscrowRelease); err != nil {
			return err
		} else if found {
			return ConflictError("payment for task %s was already released", taskID)
		}

		fees := ComputeFees(task.Price, task.AIAssistanceLevel)
		now := s.now()
		txn := Transaction{
			ID:                s.newID(),
			FromID:            task.CreatorID,
			ToID:              task.AssignedTo,
			Amount:            task.Price,
			TaskID:            task.ID,
			Type:              TxEscrowRelease,
			Status:            TxPending,
			PlatformFee:       fees.PlatformFee,
			AIContributionFee: fees.AIContributionFee,
			Description:       "Payment for task: " + task.Title,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		res = ReleaseResult{
			Transaction:       txn,
			NetPayment:        fees.NetPayment,
			PlatformFee:       fees.PlatformFee,
			AIContributionFee: fees.AIContributionFee,
		}
		receipt, err := s.chain.Release(ctx, Transfer{
			TransactionID: txn.ID,
			TaskID:        task.ID,
			From:          task.CreatorID,
			To:            task.AssignedTo,
			Amount:        fees.NetPayment,
		})
		if err != nil {
			chainErr = err
			res.Transaction.Status = TxFailed
			return tx.UpdateTransactionStatus(ctx, txn.ID, TxFailed, "")
		}
		if err := tx.UpdateTransactionStatus(ctx, txn.ID, TxCompleted, receipt.Hash); err != nil {
			return err
		}
		res.Transaction.Status, res.Transaction.TransactionHash = TxCompleted, receipt.Hash
		if _, err := tx.ApplyUserDelta(ctx, task.AssignedTo, UserDelta{
			Balance:             fees.NetPayment,
			TotalTasksCompleted: 1,
		}); err != nil {
			return err
		}
		task.Transactions = append(task.Transactions, txn.ID)
		task.UpdatedAt = now
		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return ReleaseResult{}, err
	}
	s.recorder.Settlement(TxEscrowRelease, res.Transaction.Status, res.Transaction.Amount)
	if chainErr != nil {
		log.Printf("release %s for task %s failed: %v", res.Transaction.ID, taskID, chainErr)
		return res, fmt.Errorf("%w: release for task %s: %w", ErrSettlementFailed, taskID, chainErr)
	}
	log.Printf("release %s for task %s: net=%s platform=%s ai=%s", res.Transaction.ID, taskID, res.NetPayment, res.PlatformFee, res.AIContributionFee)
	return res, nil
}

// Refund returns the escrowed amount of a cancelled task to its creator.
func (s *SettlementService) Refund(ctx context.Context, taskID, actorID string) (Transaction, error) {
	var (
		txn      Transaction
		chainErr error
	)
	err := s.store.Atomic(ctx, func(tx Tx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.CreatorID != actorID {
			return AuthorizationError("only the task creator can request a refund")
		}
		if task.Status != TaskCancelled {
			return ConflictError("only cancelled tasks can be refunded")
		}
		deposit, found, err := completedOfType(ctx, tx, taskID, TxEscrowDeposit)
		if err != nil {
			return err
		}
		if !found {
			return NotFoundError("escrow deposit for task", taskID)
		}
		for _, typ := range []TransactionType{TxEscrowRelease, TxRefund} {
			if _, done, err := completedOfType(ctx, tx, taskID, typ); err != nil {
				return err
			} else if done {
				return ConflictError("escrow for task %s was already settled", taskID)
			}
		}

		now := s.now()
		txn = Transaction{
			ID:          s.newID(),
			FromID:      task.CreatorID,
			ToID:        task.CreatorID,
			Amount:      deposit.Amount,
			TaskID:      task.ID,
			Type:        TxRefund,
			Status:      TxPending,
			Description: "Refund for task: " + task.Title,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		receipt, err := s.chain.Release(ctx, Transfer{
			TransactionID: txn.ID,
			TaskID:        task.ID,
			From:          task.CreatorID,
			To:            task.CreatorID,
			Amount:        txn.Amount,
		})
		if err != nil {
			chainErr = err
			txn.Status = TxFailed
			return tx.UpdateTransactionStatus(ctx, txn.ID, TxFailed, "")
		}
		txn.Status, txn.TransactionHash = TxCompleted, receipt.Hash
		if err := tx.UpdateTransactionStatus(ctx, txn.ID, TxCompleted, receipt.Hash); err != nil {
			return err
		}
		task.Transactions = append(task.Transactions, txn.ID)
		task.UpdatedAt = now
		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recorder.Settlement(TxRefund, txn.Status, txn.Amount)
	if chainErr != nil {
		return txn, fmt.Errorf("%w: refund for task %s: %w", ErrSettlementFailed, taskID, chainErr)
	}
	log.Printf("refund %s for task %s: %s", txn.ID, taskID, txn.Amount)
	return txn, nil
}

func completedOfType(ctx context.Context, r Reader, taskID string, typ TransactionType) (Transaction, bool, error) {
	txns, err := r.ListTransactions(ctx, TransactionFilter{TaskID: taskID, Type: typ, Status: TxCompleted, Limit: 1})
	if err != nil {
		return Transaction{}, false, fmt.Errorf("lookup %s for task %s: %w", typ, taskID, err)
	}
	if len(txns) == 0 {
		return Transaction{}, false, nil
	}
	return txns[0], true, nil
}

// GetTransaction returns a transaction visible to actor.
func (s *SettlementService) GetTransaction(ctx context.Context, id string, actor User) (Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if actor.Role != RoleAdmin && txn.FromID != actor.ID && txn.ToID != actor.ID {
		return Transaction{}, AuthorizationError("not authorized to view this transaction")
	}
	return txn, nil
}

// ListTransactions returns every matching transaction, newest first.
func (s *SettlementService) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	txns, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txns == nil {
		txns = []Transaction{}
	}
	return txns, nil
}

// TaskTransactions lists a task's ledger for its creator, assignee or an admin.
func (s *SettlementService) TaskTransactions(ctx context.Context, taskID string, actor User) ([]Transaction, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin && task.CreatorID != actor.ID && task.AssignedTo != actor.ID {
		return nil, AuthorizationError("not authorized to view transactions for this task")
	}
	return s.ListTransactions(ctx, TransactionFilter{TaskID: taskID})
}

// UserTransactions lists every transaction userID sent or received.
func (s *SettlementService) UserTransactions(ctx context.Context, userID string) ([]Transaction, error) {
	return s.ListTransactions(ctx, TransactionFilter{PartyID: userID})
}

// UserStats totals completed earnings and spending for userID.
func (s *SettlementService) UserStats(ctx context.Context, userID string) (UserStats, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	txns, err := s.UserTransactions(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	stats := UserStats{
		UserID:              user.ID,
		Balance:             user.Balance,
		TransactionCount:    len(txns),
		TotalTasksCreated:   user.TotalTasksCreated,
		TotalTasksCompleted: user.TotalTasksCompleted,
	}
	for _, t := range txns {
		if t.Status != TxCompleted {
			continue
		}
		if t.ToID == userID && t.FromID != userID {
			switch t.Type {
			case TxTaskPayment, TxEscrowRelease, TxReward:
				stats.TotalEarnings += t.Amount - t.PlatformFee - t.AIContributionFee
			}
		}
		if t.FromID == userID {
			switch t.Type {
			case TxTaskPayment, TxEscrowDeposit:
				stats.TotalSpending += t.Amount
			}
		}
	}
	return stats, nil
}

// BalanceByWallet returns the account behind a wallet address.
func (s *SettlementService) BalanceByWallet(ctx context.Context, wallet string) (User, error) {
	if wallet == "" {
		return User{}, ValidationError("wallet_address", "wallet address is required")
	}
	return s.store.GetUserByWallet(ctx, wallet)
}
