package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"coai-backend/core/marketplace"
)

// PGStore persists marketplace state in Postgres.
type PGStore struct {
	pgReader
	pool *pgxpool.Pool
}

// NewPGStore connects, initializes schema, and optionally seeds fixtures.
func NewPGStore(ctx context.Context, dsn string, seed bool) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PGStore{pgReader: pgReader{q: pool}, pool: pool}
	if err := NewSchemaManager(pool).Initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if seed {
		if err := Seed(ctx, s); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// Pool exposes the underlying pool for migrations and health checks.
func (s *PGStore) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *PGStore) Close() { s.pool.Close() }

// Atomic runs fn inside one database transaction.
func (s *PGStore) Atomic(ctx context.Context, fn func(tx marketplace.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{pgReader: pgReader{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgReader struct {
	q querier
}

type pgTx struct {
	pgReader
}

const taskColumns = `id, title, description, category, required_skills, price_cents, deadline, ai_assistance_level,
creator_id, assigned_to, status, applications, ai_contributions, transactions, completion_date, metadata, created_at, updated_at`

func scanTask(row pgx.Row) (marketplace.Task, error) {
	var (
		t                        marketplace.Task
		price                    int64
		apps, contribs, metaJSON []byte
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Category, &t.RequiredSkills, &price, &t.Deadline,
		&t.AIAssistanceLevel, &t.CreatorID, &t.AssignedTo, &t.Status, &apps, &contribs, &t.Transactions,
		&t.CompletionDate, &metaJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return marketplace.Task{}, err
	}
	t.Price = marketplace.Money(price)
	if err := unmarshalJSONB(apps, &t.Applications); err != nil {
		return marketplace.Task{}, fmt.Errorf("decode applications of %s: %w", t.ID, err)
	}
	if t.Applications == nil {
		t.Applications = []marketplace.Application{}
	}
	if err := unmarshalJSONB(contribs, &t.AIContributions); err != nil {
		return marketplace.Task{}, fmt.Errorf("decode ai contributions of %s: %w", t.ID, err)
	}
	if err := unmarshalJSONB(metaJSON, &t.Metadata); err != nil {
		return marketplace.Task{}, fmt.Errorf("decode metadata of %s: %w", t.ID, err)
	}
	return t, nil
}

func unmarshalJSONB(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.NotFoundError(entity, id)
	}
	return fmt.Errorf("load %s %s: %w", entity, id, err)
}

func (r pgReader) GetTask(ctx context.Context, id string) (marketplace.Task, error) {
	t, err := scanTask(r.q.QueryRow(ctx, `SELECT `+taskColumns+` FROM coai_tasks WHERE id=$1`, id))
	if err != nil {
		return marketplace.Task{}, notFound(err, "task", id)
	}
	return t, nil
}

var taskOrder = map[string]string{
	"-created_at": "created_at DESC, id",
	"created_at":  "created_at ASC, id",
	"price":       "price_cents ASC, created_at DESC",
	"-price":      "price_cents DESC, created_at DESC",
	"deadline":    "deadline ASC, created_at DESC",
	"-deadline":   "deadline DESC, created_at DESC",
}

// where accumulates numbered predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (r pgReader) ListTasks(ctx context.Context, f marketplace.TaskFilter) ([]marketplace.Task, int, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.Category != "" {
		w.add("lower(category) = lower(?)", f.Category)
	}
	if f.CreatorID != "" {
		w.add("creator_id = ?", f.CreatorID)
	}
	if f.AssignedTo != "" {
		w.add("assigned_to = ?", f.AssignedTo)
	}
	if len(f.Skills) > 0 {
		lowered := make([]string, len(f.Skills))
		for i, s := range f.Skills {
			lowered[i] = strings.ToLower(s)
		}
		w.add("(SELECT array_agg(lower(s)) FROM unnest(required_skills) s) && ?::text[]", lowered)
	}
	if f.Applicant != "" {
		w.add("applications @> jsonb_build_array(jsonb_build_object('applicant_id', ?::text))", f.Applicant)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		w.add("(title || ' ' || description || ' ' || category || ' ' || array_to_string(required_skills, ' ')) ILIKE ?", "%"+kw+"%")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM coai_tasks`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	order, ok := taskOrder[f.Sort]
	if !ok {
		order = taskOrder["-created_at"]
	}
	query := `SELECT ` + taskColumns + ` FROM coai_tasks` + w.String() + ` ORDER BY ` + order
	args := w.args
	if f.Limit > 0 {
		page := max(f.Page, 1)
		args = append(args, f.Limit, (page-1)*f.Limit)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []marketplace.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

const txnColumns = `id, from_id, to_id, amount_cents, task_id, type, status, platform_fee_cents, ai_contribution_fee_cents,
description, transaction_hash, metadata, created_at, updated_at`

func scanTransaction(row pgx.Row) (marketplace.Transaction, error) {
	var (
		t                    marketplace.Transaction
		amount, platform, ai int64
		metaJSON             []byte
	)
	err := row.Scan(&t.ID, &t.FromID, &t.ToID, &amount, &t.TaskID, &t.Type, &t.Status, &platform, &ai,
		&t.Description, &t.TransactionHash, &metaJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return marketplace.Transaction{}, err
	}
	t.Amount = marketplace.Money(amount)
	t.PlatformFee = marketplace.Money(platform)
	t.AIContributionFee = marketplace.Money(ai)
	if err := unmarshalJSONB(metaJSON, &t.Metadata); err != nil {
		return marketplace.Transaction{}, fmt.Errorf("decode metadata of %s: %w", t.ID, err)
	}
	return t, nil
}

func (r pgReader) GetTransaction(ctx context.Context, id string) (marketplace.Transaction, error) {
	t, err := scanTransaction(r.q.QueryRow(ctx, `SELECT `+txnColumns+` FROM coai_transactions WHERE id=$1`, id))
	if err != nil {
		return marketplace.Transaction{}, notFound(err, "transaction", id)
	}
	return t, nil
}

func (r pgReader) ListTransactions(ctx context.Context, f marketplace.TransactionFilter) ([]marketplace.Transaction, error) {
	var w where
	if f.TaskID != "" {
		w.add("task_id = ?", f.TaskID)
	}
	if f.Type != "" {
		w.add("type = ?", string(f.Type))
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.FromID != "" {
		w.add("from_id = ?", f.FromID)
	}
	if f.ToID != "" {
		w.add("to_id = ?", f.ToID)
	}
	if f.PartyID != "" {
		w.add("(from_id = ? OR to_id = ?)", f.PartyID)
	}
	query := `SELECT ` + txnColumns + ` FROM coai_transactions` + w.String() + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(f.Limit)
	}
	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []marketplace.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const userColumns = `id, wallet_address, name, email, bio, role, skills, balance_cents, reputation,
total_tasks_created, total_tasks_completed, created_at, last_login`

func scanUser(row pgx.Row) (marketplace.User, error) {
	var (
		u       marketplace.User
		skills  []byte
		balance int64
	)
	err := row.Scan(&u.ID, &u.WalletAddress, &u.Name, &u.Email, &u.Bio, &u.Role, &skills, &balance, &u.Reputation,
		&u.TotalTasksCreated, &u.TotalTasksCompleted, &u.CreatedAt, &u.LastLogin)
	if err != nil {
		return marketplace.User{}, err
	}
	u.Balance = marketplace.Money(balance)
	if err := unmarshalJSONB(skills, &u.Skills); err != nil {
		return marketplace.User{}, fmt.Errorf("decode skills of %s: %w", u.ID, err)
	}
	return u, nil
}

func (r pgReader) GetUser(ctx context.Context, id string) (marketplace.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM coai_users WHERE id=$1`, id))
	if err != nil {
		return marketplace.User{}, notFound(err, "user", id)
	}
	return u, nil
}

func (r pgReader) GetUserByWallet(ctx context.Context, wallet string) (marketplace.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM coai_users WHERE wallet_address=$1`, wallet))
	if err != nil {
		return marketplace.User{}, notFound(err, "user with wallet", wallet)
	}
	return u, nil
}

func (r pgReader) ListUsers(ctx context.Context) ([]marketplace.User, error) {
	rows, err := r.q.Query(ctx, `SELECT `+userColumns+` FROM coai_users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []marketplace.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r pgReader) ListFeedback(ctx context.Context, f marketplace.FeedbackFilter) ([]marketplace.Feedback, error) {
	var w where
	if f.TaskID != "" {
		w.add("task_id = ?", f.TaskID)
	}
	if f.SenderID != "" {
		w.add("sender_id = ?", f.SenderID)
	}
	if f.ReceiverID != "" {
		w.add("receiver_id = ?", f.ReceiverID)
	}
	rows, err := r.q.Query(ctx, `
SELECT id, task_id, sender_id, receiver_id, rating, comment, skill_ratings, created_at
FROM coai_feedback`+w.String()+` ORDER BY created_at DESC, id DESC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []marketplace.Feedback
	for rows.Next() {
		var (
			fb      marketplace.Feedback
			ratings []byte
		)
		if err := rows.Scan(&fb.ID, &fb.TaskID, &fb.SenderID, &fb.ReceiverID, &fb.Rating, &fb.Comment, &ratings, &fb.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalJSONB(ratings, &fb.SkillRatings); err != nil {
			return nil, fmt.Errorf("decode skill ratings of %s: %w", fb.ID, err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

func (t *pgTx) LockTask(ctx context.Context, id string) (marketplace.Task, error) {
	task, err := scanTask(t.q.QueryRow(ctx, `SELECT `+taskColumns+` FROM coai_tasks WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return marketplace.Task{}, notFound(err, "task", id)
	}
	return task, nil
}

func (t *pgTx) SaveTask(ctx context.Context, task marketplace.Task) error {
	apps, err := json.Marshal(task.Applications)
	if err != nil {
		return err
	}
	contribs, err := json.Marshal(task.AIContributions)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(task.Metadata)
	if err != nil {
		return err
	}
	skills := task.RequiredSkills
	if skills == nil {
		skills = []string{}
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO coai_tasks (`+taskColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  description = EXCLUDED.description,
  category = EXCLUDED.category,
  required_skills = EXCLUDED.required_skills,
  price_cents = EXCLUDED.price_cents,
  deadline = EXCLUDED.deadline,
  ai_assistance_level = EXCLUDED.ai_assistance_level,
  assigned_to = EXCLUDED.assigned_to,
  status = EXCLUDED.status,
  applications = EXCLUDED.applications,
  ai_contributions = EXCLUDED.ai_contributions,
  transactions = EXCLUDED.transactions,
  completion_date = EXCLUDED.completion_date,
  metadata = EXCLUDED.metadata,
  updated_at = EXCLUDED.updated_at
`, task.ID, task.Title, task.Description, task.Category, skills, int64(task.Price), task.Deadline,
		string(task.AIAssistanceLevel), task.CreatorID, task.AssignedTo, string(task.Status), string(apps), string(contribs),
		task.Transactions, task.CompletionDate, string(meta), task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

func (t *pgTx) DeleteTask(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM coai_tasks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundError("task", id)
	}
	return nil
}

func (t *pgTx) CreateTransaction(ctx context.Context, txn marketplace.Transaction) error {
	meta, err := json.Marshal(txn.Metadata)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO coai_transactions (`+txnColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`, txn.ID, txn.FromID, txn.ToID, int64(txn.Amount), txn.TaskID, string(txn.Type), string(txn.Status),
		int64(txn.PlatformFee), int64(txn.AIContributionFee), txn.Description, txn.TransactionHash, string(meta),
		txn.CreatedAt, txn.UpdatedAt)
	if isUniqueViolation(err) {
		return marketplace.ConflictError("transaction %s already exists", txn.ID)
	}
	if err != nil {
		return fmt.Errorf("create transaction %s: %w", txn.ID, err)
	}
	return nil
}

func (t *pgTx) UpdateTransactionStatus(ctx context.Context, id string, status marketplace.TransactionStatus, hash string) error {
	tag, err := t.q.Exec(ctx, `
UPDATE coai_transactions
SET status = $2, transaction_hash = COALESCE(NULLIF($3, ''), transaction_hash), updated_at = $4
WHERE id = $1 AND status = 'pending'
`, id, string(status), hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := t.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	return marketplace.ConflictError("transaction %s is already %s", id, current.Status)
}

// SaveUser inserts u or updates its profile. Balance and task counters are
// written on insert only; afterwards they move through ApplyUserDelta.
func (t *pgTx) SaveUser(ctx context.Context, u marketplace.User) error {
	if u.ID == "" || u.WalletAddress == "" {
		return marketplace.ValidationError("wallet_address", "user id and wallet address are required")
	}
	skills, err := json.Marshal(u.Skills)
	if err != nil {
		return err
	}
	role := u.Role
	if role == "" {
		role = marketplace.RoleUser
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO coai_users (`+userColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  wallet_address = EXCLUDED.wallet_address,
  name = EXCLUDED.name,
  email = EXCLUDED.email,
  bio = EXCLUDED.bio,
  role = EXCLUDED.role,
  skills = EXCLUDED.skills,
  reputation = EXCLUDED.reputation,
  last_login = EXCLUDED.last_login
`, u.ID, u.WalletAddress, u.Name, u.Email, u.Bio, string(role), string(skills), int64(u.Balance), u.Reputation,
		u.TotalTasksCreated, u.TotalTasksCompleted, u.CreatedAt, u.LastLogin)
	if isUniqueViolation(err) {
		return marketplace.ConflictError("wallet %s is already registered", u.WalletAddress)
	}
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

func (t *pgTx) ApplyUserDelta(ctx context.Context, id string, d marketplace.UserDelta) (marketplace.User, error) {
	u, err := scanUser(t.q.QueryRow(ctx, `
UPDATE coai_users SET
  balance_cents = balance_cents + $2,
  total_tasks_created = GREATEST(0, total_tasks_created + $3),
  total_tasks_completed = GREATEST(0, total_tasks_completed + $4)
WHERE id = $1
RETURNING `+userColumns, id, int64(d.Balance), d.TotalTasksCreated, d.TotalTasksCompleted))
	if err != nil {
		return marketplace.User{}, notFound(err, "user", id)
	}
	return u, nil
}

func (t *pgTx) CreateFeedback(ctx context.Context, fb marketplace.Feedback) error {
	ratings, err := json.Marshal(fb.SkillRatings)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO coai_feedback (id, task_id, sender_id, receiver_id, rating, comment, skill_ratings, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, fb.ID, fb.TaskID, fb.SenderID, fb.ReceiverID, fb.Rating, fb.Comment, string(ratings), fb.CreatedAt)
	if isUniqueViolation(err) {
		return marketplace.ConflictError("feedback for this task and user already exists")
	}
	if err != nil {
		return fmt.Errorf("create feedback %s: %w", fb.ID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
