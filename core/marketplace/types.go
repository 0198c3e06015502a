package marketplace

import "time"

// TaskStatus is a lifecycle state of a task.
type TaskStatus string

const (
	TaskDraft      TaskStatus = "draft"
	TaskOpen       TaskStatus = "open"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// AIAssistanceLevel controls the AI contribution fee taken on release.
type AIAssistanceLevel string

const (
	AILow    AIAssistanceLevel = "Low"
	AIMedium AIAssistanceLevel = "Medium"
	AIHigh   AIAssistanceLevel = "High"
)

// Valid reports whether l is a known level.
func (l AIAssistanceLevel) Valid() bool {
	switch l {
	case AILow, AIMedium, AIHigh:
		return true
	}
	return false
}

// ApplicationStatus is the review state of an application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TxTaskPayment   TransactionType = "task_payment"
	TxEscrowDeposit TransactionType = "escrow_deposit"
	TxEscrowRelease TransactionType = "escrow_release"
	TxRefund        TransactionType = "refund"
	TxPlatformFee   TransactionType = "platform_fee"
	TxReward        TransactionType = "reward"
	TxOther         TransactionType = "other"
)

// TransactionStatus is the settlement state of a ledger entry.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

// Task is a unit of paid work posted by a creator.
type Task struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Category          string            `json:"category,omitempty"`
	RequiredSkills    []string          `json:"required_skills"`
	Price             Money             `json:"price"`
	Deadline          time.Time         `json:"deadline"`
	AIAssistanceLevel AIAssistanceLevel `json:"ai_assistance_level"`
	CreatorID         string            `json:"creator_id"`
	AssignedTo        string            `json:"assigned_to,omitempty"`
	Status            TaskStatus        `json:"status"`
	Applications      []Application     `json:"applications"`
	AIContributions   []AIContribution  `json:"ai_contributions,omitempty"`
	Transactions      []string          `json:"transactions,omitempty"`
	CompletionDate    *time.Time        `json:"completion_date,omitempty"`
	Metadata          Metadata          `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Application returns the application with the given id.
func (t *Task) Application(id string) (*Application, bool) {
	for i := range t.Applications {
		if t.Applications[i].ID == id {
			return &t.Applications[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so stores never share slices with callers.
func (t Task) Clone() Task {
	out := t
	out.RequiredSkills = append([]string(nil), t.RequiredSkills...)
	out.Applications = append([]Application(nil), t.Applications...)
	out.AIContributions = append([]AIContribution(nil), t.AIContributions...)
	out.Transactions = append([]string(nil), t.Transactions...)
	out.Metadata = t.Metadata.Clone()
	if t.CompletionDate != nil {
		cd := *t.CompletionDate
		out.CompletionDate = &cd
	}
	return out
}

// Application is a worker's bid on an open task.
type Application struct {
	ID               string            `json:"id"`
	ApplicantID      string            `json:"applicant_id"`
	Message          string            `json:"message"`
	ProposedPrice    Money             `json:"proposed_price"`
	ProposedDeadline time.Time         `json:"proposed_deadline"`
	Status           ApplicationStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
}

// AIContribution is a suggestion attached to a task.
type AIContribution struct {
	Suggestion string    `json:"suggestion"`
	Category   string    `json:"category"` // enhancement | correction | recommendation
	CreatedAt  time.Time `json:"created_at"`
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID                string            `json:"id"`
	FromID            string            `json:"from_id"`
	ToID              string            `json:"to_id"`
	Amount            Money             `json:"amount"`
	TaskID            string            `json:"task_id,omitempty"`
	Type              TransactionType   `json:"type"`
	Status            TransactionStatus `json:"status"`
	PlatformFee       Money             `json:"platform_fee"`
	AIContributionFee Money             `json:"ai_contribution_fee"`
	Description       string            `json:"description,omitempty"`
	TransactionHash   string            `json:"transaction_hash,omitempty"`
	Metadata          Metadata          `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Role gates administrative reads.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Skill is a rated capability on a user profile.
type Skill struct {
	Name        string  `json:"name"`
	Rating      float64 `json:"rating"`
	RatingCount int     `json:"rating_count"`
}

// User is a marketplace account keyed by wallet.
type User struct {
	ID                  string     `json:"id"`
	WalletAddress       string     `json:"wallet_address"`
	Name                string     `json:"name,omitempty"`
	Email               string     `json:"email,omitempty"`
	Bio                 string     `json:"bio,omitempty"`
	Role                Role       `json:"role"`
	Skills              []Skill    `json:"skills,omitempty"`
	Balance             Money      `json:"balance"`
	Reputation          float64    `json:"reputation"`
	TotalTasksCreated   int        `json:"total_tasks_created"`
	TotalTasksCompleted int        `json:"total_tasks_completed"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
}

// Clone returns a deep copy of u.
func (u User) Clone() User {
	out := u
	out.Skills = append([]Skill(nil), u.Skills...)
	if u.LastLogin != nil {
		ll := *u.LastLogin
		out.LastLogin = &ll
	}
	return out
}

// UserDelta is the only way balances and counters change.
type UserDelta struct {
	Balance             Money
	TotalTasksCreated   int
	TotalTasksCompleted int
}

// Feedback is a rating left by one task party for the other.
type Feedback struct {
	ID           string        `json:"id"`
	TaskID       string        `json:"task_id"`
	SenderID     string        `json:"sender_id"`
	ReceiverID   string        `json:"receiver_id"`
	Rating       int           `json:"rating"`
	Comment      string        `json:"comment,omitempty"`
	SkillRatings []SkillRating `json:"skill_ratings,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// SkillRating scores one skill inside a feedback entry.
type SkillRating struct {
	Skill  string `json:"skill"`
	Rating int    `json:"rating"`
}

// TaskFilter captures list query params for tasks.
type TaskFilter struct {
	Status     TaskStatus
	Category   string
	Skills     []string
	Keyword    string
	CreatorID  string
	AssignedTo string
	Applicant  string // tasks holding an application from this user
	Sort       string // -created_at (default) | created_at | price | -price | deadline | -deadline
	Page       int
	Limit      int // <= 0 returns every match
}

// TransactionFilter selects ledger entries. Empty fields match everything.
type TransactionFilter struct {
	TaskID  string
	Type    TransactionType
	Status  TransactionStatus
	PartyID string // matches from or to
	FromID  string
	ToID    string
	Limit   int
}

// FeedbackFilter selects feedback entries.
type FeedbackFilter struct {
	TaskID     string
	SenderID   string
	ReceiverID string
}
