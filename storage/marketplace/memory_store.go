package marketplace

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"coai-backend/core/marketplace"
)

// MemoryStore keeps marketplace data in process. A single mutex serialises
// units of work; each one runs against a copy of the maps that replaces the
// live state only when the callback succeeds.
type MemoryStore struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	tasks    map[string]marketplace.Task
	txns     map[string]marketplace.Transaction
	users    map[string]marketplace.User
	wallets  map[string]string
	feedback map[string]marketplace.Feedback
	seq      map[string]int64
	next     int64
}

func newState() *state {
	return &state{
		tasks:    make(map[string]marketplace.Task),
		txns:     make(map[string]marketplace.Transaction),
		users:    make(map[string]marketplace.User),
		wallets:  make(map[string]string),
		feedback: make(map[string]marketplace.Feedback),
		seq:      make(map[string]int64),
	}
}

// Records are cloned on every read and write, so copies may share values.
func (s *state) clone() *state {
	return &state{
		tasks:    maps.Clone(s.tasks),
		txns:     maps.Clone(s.txns),
		users:    maps.Clone(s.users),
		wallets:  maps.Clone(s.wallets),
		feedback: maps.Clone(s.feedback),
		seq:      maps.Clone(s.seq),
		next:     s.next,
	}
}

func (s *state) stamp(id string) {
	if _, ok := s.seq[id]; !ok {
		s.next++
		s.seq[id] = s.next
	}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newState()}
}

// Atomic runs fn against a private copy of the store and publishes it on success.
func (m *MemoryStore) Atomic(ctx context.Context, fn func(tx marketplace.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() {}

// read returns the live state. It is never mutated in place, so callers may
// use it after the lock is released.
func (m *MemoryStore) read() *state {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st
}

func (m *MemoryStore) GetTask(ctx context.Context, id string) (marketplace.Task, error) {
	return m.read().getTask(id)
}

func (m *MemoryStore) ListTasks(ctx context.Context, f marketplace.TaskFilter) ([]marketplace.Task, int, error) {
	tasks, total := m.read().listTasks(f)
	return tasks, total, nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (marketplace.Transaction, error) {
	return m.read().getTransaction(id)
}

func (m *MemoryStore) ListTransactions(ctx context.Context, f marketplace.TransactionFilter) ([]marketplace.Transaction, error) {
	return m.read().listTransactions(f), nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (marketplace.User, error) {
	return m.read().getUser(id)
}

func (m *MemoryStore) GetUserByWallet(ctx context.Context, wallet string) (marketplace.User, error) {
	return m.read().getUserByWallet(wallet)
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]marketplace.User, error) {
	return m.read().listUsers(), nil
}

func (m *MemoryStore) ListFeedback(ctx context.Context, f marketplace.FeedbackFilter) ([]marketplace.Feedback, error) {
	return m.read().listFeedback(f), nil
}

type memTx struct {
	st *state
}

func (t *memTx) GetTask(ctx context.Context, id string) (marketplace.Task, error) {
	return t.st.getTask(id)
}

func (t *memTx) LockTask(ctx context.Context, id string) (marketplace.Task, error) {
	return t.st.getTask(id)
}

func (t *memTx) ListTasks(ctx context.Context, f marketplace.TaskFilter) ([]marketplace.Task, int, error) {
	tasks, total := t.st.listTasks(f)
	return tasks, total, nil
}

func (t *memTx) SaveTask(ctx context.Context, task marketplace.Task) error {
	if task.ID == "" {
		return marketplace.ValidationError("id", "task id is required")
	}
	t.st.tasks[task.ID] = task.Clone()
	t.st.stamp(task.ID)
	return nil
}

func (t *memTx) DeleteTask(ctx context.Context, id string) error {
	if _, ok := t.st.tasks[id]; !ok {
		return marketplace.NotFoundError("task", id)
	}
	delete(t.st.tasks, id)
	delete(t.st.seq, id)
	return nil
}

func (t *memTx) GetTransaction(ctx context.Context, id string) (marketplace.Transaction, error) {
	return t.st.getTransaction(id)
}

func (t *memTx) ListTransactions(ctx context.Context, f marketplace.TransactionFilter) ([]marketplace.Transaction, error) {
	return t.st.listTransactions(f), nil
}

func (t *memTx) CreateTransaction(ctx context.Context, txn marketplace.Transaction) error {
	if _, ok := t.st.txns[txn.ID]; ok {
		return marketplace.ConflictError("transaction %s already exists", txn.ID)
	}
	txn.Metadata = txn.Metadata.Clone()
	t.st.txns[txn.ID] = txn
	t.st.stamp(txn.ID)
	return nil
}

func (t *memTx) UpdateTransactionStatus(ctx context.Context, id string, status marketplace.TransactionStatus, hash string) error {
	txn, ok := t.st.txns[id]
	if !ok {
		return marketplace.NotFoundError("transaction", id)
	}
	if txn.Status != marketplace.TxPending {
		return marketplace.ConflictError("transaction %s is already %s", id, txn.Status)
	}
	txn.Status = status
	txn.UpdatedAt = time.Now().UTC()
	if hash != "" {
		txn.TransactionHash = hash
	}
	t.st.txns[id] = txn
	return nil
}

func (t *memTx) GetUser(ctx context.Context, id string) (marketplace.User, error) {
	return t.st.getUser(id)
}

func (t *memTx) GetUserByWallet(ctx context.Context, wallet string) (marketplace.User, error) {
	return t.st.getUserByWallet(wallet)
}

func (t *memTx) ListUsers(ctx context.Context) ([]marketplace.User, error) {
	return t.st.listUsers(), nil
}

func (t *memTx) SaveUser(ctx context.Context, u marketplace.User) error {
	if u.ID == "" || u.WalletAddress == "" {
		return marketplace.ValidationError("wallet_address", "user id and wallet address are required")
	}
	if owner, ok := t.st.wallets[u.WalletAddress]; ok && owner != u.ID {
		return marketplace.ConflictError("wallet %s is already registered", u.WalletAddress)
	}
	if prev, ok := t.st.users[u.ID]; ok {
		if prev.WalletAddress != u.WalletAddress {
			delete(t.st.wallets, prev.WalletAddress)
		}
		u.Balance = prev.Balance
		u.TotalTasksCreated = prev.TotalTasksCreated
		u.TotalTasksCompleted = prev.TotalTasksCompleted
	}
	t.st.users[u.ID] = u.Clone()
	t.st.wallets[u.WalletAddress] = u.ID
	t.st.stamp(u.ID)
	return nil
}

func (t *memTx) ApplyUserDelta(ctx context.Context, id string, d marketplace.UserDelta) (marketplace.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return marketplace.User{}, marketplace.NotFoundError("user", id)
	}
	u = applyDelta(u, d)
	t.st.users[id] = u
	return u.Clone(), nil
}

func (t *memTx) ListFeedback(ctx context.Context, f marketplace.FeedbackFilter) ([]marketplace.Feedback, error) {
	return t.st.listFeedback(f), nil
}

func (t *memTx) CreateFeedback(ctx context.Context, fb marketplace.Feedback) error {
	if _, ok := t.st.feedback[fb.ID]; ok {
		return marketplace.ConflictError("feedback %s already exists", fb.ID)
	}
	fb.SkillRatings = slices.Clone(fb.SkillRatings)
	t.st.feedback[fb.ID] = fb
	t.st.stamp(fb.ID)
	return nil
}

func applyDelta(u marketplace.User, d marketplace.UserDelta) marketplace.User {
	u.Balance += d.Balance
	u.TotalTasksCreated = max(0, u.TotalTasksCreated+d.TotalTasksCreated)
	u.TotalTasksCompleted = max(0, u.TotalTasksCompleted+d.TotalTasksCompleted)
	return u
}

func (s *state) getTask(id string) (marketplace.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return marketplace.Task{}, marketplace.NotFoundError("task", id)
	}
	return t.Clone(), nil
}

func (s *state) getTransaction(id string) (marketplace.Transaction, error) {
	t, ok := s.txns[id]
	if !ok {
		return marketplace.Transaction{}, marketplace.NotFoundError("transaction", id)
	}
	t.Metadata = t.Metadata.Clone()
	return t, nil
}

func (s *state) getUser(id string) (marketplace.User, error) {
	u, ok := s.users[id]
	if !ok {
		return marketplace.User{}, marketplace.NotFoundError("user", id)
	}
	return u.Clone(), nil
}

func (s *state) getUserByWallet(wallet string) (marketplace.User, error) {
	id, ok := s.wallets[wallet]
	if !ok {
		return marketplace.User{}, marketplace.NotFoundError("user with wallet", wallet)
	}
	return s.getUser(id)
}

func (s *state) listUsers() []marketplace.User {
	out := make([]marketplace.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Clone())
	}
	slices.SortFunc(out, func(a, b marketplace.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *state) listTasks(f marketplace.TaskFilter) ([]marketplace.Task, int) {
	var matched []marketplace.Task
	for _, t := range s.tasks {
		if taskMatches(t, f) {
			matched = append(matched, t)
		}
	}
	slices.SortFunc(matched, func(a, b marketplace.Task) int {
		return compareTasks(a, b, f.Sort, s.seq)
	})
	total := len(matched)
	if f.Limit > 0 {
		page := max(f.Page, 1)
		start := min((page-1)*f.Limit, total)
		end := min(start+f.Limit, total)
		matched = matched[start:end]
	}
	out := make([]marketplace.Task, len(matched))
	for i, t := range matched {
		out[i] = t.Clone()
	}
	return out, total
}

func compareTasks(a, b marketplace.Task, sort string, seq map[string]int64) int {
	var c int
	switch sort {
	case "created_at":
		c = a.CreatedAt.Compare(b.CreatedAt)
	case "price":
		c = cmp.Compare(a.Price, b.Price)
	case "-price":
		c = cmp.Compare(b.Price, a.Price)
	case "deadline":
		c = a.Deadline.Compare(b.Deadline)
	case "-deadline":
		c = b.Deadline.Compare(a.Deadline)
	default:
		c = b.CreatedAt.Compare(a.CreatedAt)
	}
	if c != 0 {
		return c
	}
	if sort == "created_at" {
		return cmp.Compare(seq[a.ID], seq[b.ID])
	}
	return cmp.Compare(seq[b.ID], seq[a.ID])
}

func containsSkill(all []string, skills []string) bool {
	for _, want := range skills {
		if slices.ContainsFunc(all, func(s string) bool { return strings.EqualFold(s, want) }) {
			return true
		}
	}
	return len(skills) == 0
}

func taskMatches(t marketplace.Task, f marketplace.TaskFilter) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Category != "" && !strings.EqualFold(t.Category, f.Category) {
		return false
	}
	if f.CreatorID != "" && t.CreatorID != f.CreatorID {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if !containsSkill(t.RequiredSkills, f.Skills) {
		return false
	}
	if f.Applicant != "" && !slices.ContainsFunc(t.Applications, func(a marketplace.Application) bool {
		return a.ApplicantID == f.Applicant
	}) {
		return false
	}
	if kw := strings.ToLower(strings.TrimSpace(f.Keyword)); kw != "" {
		hay := strings.ToLower(t.Title + "\n" + t.Description + "\n" + t.Category + "\n" + strings.Join(t.RequiredSkills, "\n"))
		if !strings.Contains(hay, kw) {
			return false
		}
	}
	return true
}

func (s *state) listTransactions(f marketplace.TransactionFilter) []marketplace.Transaction {
	var out []marketplace.Transaction
	for _, t := range s.txns {
		if txnMatches(t, f) {
			t.Metadata = t.Metadata.Clone()
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b marketplace.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(s.seq[b.ID], s.seq[a.ID])
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func txnMatches(t marketplace.Transaction, f marketplace.TransactionFilter) bool {
	switch {
	case f.TaskID != "" && t.TaskID != f.TaskID:
		return false
	case f.Type != "" && t.Type != f.Type:
		return false
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.FromID != "" && t.FromID != f.FromID:
		return false
	case f.ToID != "" && t.ToID != f.ToID:
		return false
	case f.PartyID != "" && t.FromID != f.PartyID && t.ToID != f.PartyID:
		return false
	}
	return true
}

func (s *state) listFeedback(f marketplace.FeedbackFilter) []marketplace.Feedback {
	var out []marketplace.Feedback
	for _, fb := range s.feedback {
		if f.TaskID != "" && fb.TaskID != f.TaskID {
			continue
		}
		if f.SenderID != "" && fb.SenderID != f.SenderID {
			continue
		}
		if f.ReceiverID != "" && fb.ReceiverID != f.ReceiverID {
			continue
		}
		fb.SkillRatings = slices.Clone(fb.SkillRatings)
		out = append(out, fb)
	}
	slices.SortFunc(out, func(a, b marketplace.Feedback) int {
		return cmp.Compare(s.seq[b.ID], s.seq[a.ID])
	})
	return out
}
