package marketplace

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Transfer describes funds moved for a ledger entry.
type Transfer struct {
	TransactionID string
	TaskID        string
	From          string
	To            string
	Amount        Money
}

// Receipt is the chain's acknowledgement of a transfer.
type Receipt struct {
	Hash      string    `json:"hash"`
	Confirmed time.Time `json:"confirmed_at"`
}

// Chain is the wallet/chain boundary used by settlement.
type Chain interface {
	Deposit(ctx context.Context, t Transfer) (Receipt, error)
	Release(ctx context.Context, t Transfer) (Receipt, error)
}

// SimulatedChain settles synchronously with placeholder hashes.
type SimulatedChain struct {
	mu   sync.Mutex
	now  func() time.Time
	fail error
	last int64
}

// NewSimulatedChain returns a chain that always succeeds.
func NewSimulatedChain() *SimulatedChain {
	return &SimulatedChain{now: time.Now}
}

// FailWith makes every following call return err. Pass nil to recover.
func (c *SimulatedChain) FailWith(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

// Deposit pretends to lock funds in escrow.
func (c *SimulatedChain) Deposit(ctx context.Context, t Transfer) (Receipt, error) {
	return c.settle(ctx, t)
}

// Release pretends to pay out escrowed funds.
func (c *SimulatedChain) Release(ctx context.Context, t Transfer) (Receipt, error) {
	return c.settle(ctx, t)
}

func (c *SimulatedChain) settle(ctx context.Context, t Transfer) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return Receipt{}, fmt.Errorf("simulated transfer of %s for %s: %w", t.Amount, t.TransactionID, c.fail)
	}
	now := c.now()
	// Millisecond stamps must stay unique inside one process.
	stamp := now.UnixMilli()
	if stamp <= c.last {
		stamp = c.last + 1
	}
	c.last = stamp
	return Receipt{Hash: fmt.Sprintf("simulated_%d", stamp), Confirmed: now}, nil
}

// PaymentRequestURI builds a Solana Pay transfer request for an escrow deposit.
func PaymentRequestURI(escrowAddress string, task Task) string {
	q := url.Values{}
	q.Set("amount", task.Price.String())
	q.Set("reference", task.ID)
	q.Set("label", "CoAI escrow")
	q.Set("message", "Escrow deposit for task: "+task.Title)
	return "solana:" + escrowAddress + "?" + q.Encode()
}
