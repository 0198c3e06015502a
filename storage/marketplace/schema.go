package marketplace

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaManager handles database schema migrations
type SchemaManager struct {
	pool *pgxpool.Pool
}

// NewSchemaManager creates a new schema manager
func NewSchemaManager(pool *pgxpool.Pool) *SchemaManager {
	return &SchemaManager{pool: pool}
}

// Initialize creates the database schema. It is safe to run repeatedly.
func (m *SchemaManager) Initialize(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS coai_users (
  id TEXT PRIMARY KEY,
  wallet_address TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  bio TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'user',
  skills JSONB,
  balance_cents BIGINT NOT NULL DEFAULT 0,
  reputation DOUBLE PRECISION NOT NULL DEFAULT 0,
  total_tasks_created INT NOT NULL DEFAULT 0,
  total_tasks_completed INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  last_login TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS coai_tasks (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  required_skills TEXT[] NOT NULL DEFAULT '{}',
  price_cents BIGINT NOT NULL,
  deadline TIMESTAMPTZ NOT NULL,
  ai_assistance_level TEXT NOT NULL DEFAULT 'Medium',
  creator_id TEXT NOT NULL,
  assigned_to TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  applications JSONB,
  ai_contributions JSONB,
  transactions TEXT[],
  completion_date TIMESTAMPTZ,
  metadata JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS coai_transactions (
  id TEXT PRIMARY KEY,
  from_id TEXT NOT NULL,
  to_id TEXT NOT NULL,
  amount_cents BIGINT NOT NULL,
  task_id TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  platform_fee_cents BIGINT NOT NULL DEFAULT 0,
  ai_contribution_fee_cents BIGINT NOT NULL DEFAULT 0,
  description TEXT NOT NULL DEFAULT '',
  transaction_hash TEXT NOT NULL DEFAULT '',
  metadata JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS coai_feedback (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL,
  sender_id TEXT NOT NULL,
  receiver_id TEXT NOT NULL,
  rating INT NOT NULL,
  comment TEXT NOT NULL DEFAULT '',
  skill_ratings JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (task_id, sender_id, receiver_id)
);

CREATE INDEX IF NOT EXISTS idx_coai_tasks_status ON coai_tasks(status);
CREATE INDEX IF NOT EXISTS idx_coai_tasks_creator ON coai_tasks(creator_id);
CREATE INDEX IF NOT EXISTS idx_coai_transactions_task ON coai_transactions(task_id, type, status);
CREATE INDEX IF NOT EXISTS idx_coai_transactions_parties ON coai_transactions(from_id, to_id);
CREATE INDEX IF NOT EXISTS idx_coai_feedback_receiver ON coai_feedback(receiver_id);
`
