package marketplace

import "context"

// Reader is the read side shared by Store and Tx. Missing entities are
// reported with NotFoundError.
type Reader interface {
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, int, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByWallet(ctx context.Context, wallet string) (User, error)
	// ListUsers returns every account, oldest first.
	ListUsers(ctx context.Context) ([]User, error)
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]Feedback, error)
}

// Tx is a unit of work. Everything written through a Tx commits together
// when the Atomic callback returns nil and is discarded otherwise.
type Tx interface {
	Reader

	// LockTask reads a task and holds it against concurrent units of work
	// until the surrounding Atomic call returns.
	LockTask(ctx context.Context, id string) (Task, error)
	SaveTask(ctx context.Context, task Task) error
	DeleteTask(ctx context.Context, id string) error

	CreateTransaction(ctx context.Context, txn Transaction) error
	UpdateTransactionStatus(ctx context.Context, id string, status TransactionStatus, hash string) error

	// SaveUser creates user or replaces its profile fields. On an existing
	// user the balance and task counters are left as stored.
	SaveUser(ctx context.Context, user User) error
	ApplyUserDelta(ctx context.Context, id string, delta UserDelta) (User, error)

	CreateFeedback(ctx context.Context, fb Feedback) error
}

// Store is the persistence collaborator.
type Store interface {
	Reader
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Close()
}
