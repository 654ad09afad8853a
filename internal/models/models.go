package models

import (
	"database/sql"
	"time"
)

// User represents a user in the system
type User struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	Name          string    `db:"name" json:"name"`
	Password      string    `db:"password" json:"-"` // Password hash, not returned in JSON
	CreditBalance int       `db:"credit_balance" json:"creditBalance"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// TransactionType classifies a ledger entry by its business reason
type TransactionType string

const (
	TransactionEarned     TransactionType = "earned"
	TransactionSpent      TransactionType = "spent"
	TransactionPurchased  TransactionType = "purchased"
	TransactionAdjustment TransactionType = "adjustment"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionEarned, TransactionSpent, TransactionPurchased, TransactionAdjustment:
		return true
	}
	return false
}

// CreditTransaction is a single row in the append-only credit ledger.
// Entries are created once and never updated or deleted; a user's
// credit balance is the sum of their entries' amounts.
type CreditTransaction struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"userId"`
	TransactionType TransactionType `db:"transaction_type" json:"transactionType"`
	Amount          int             `db:"amount" json:"amount"` // negative = deduction, positive = credit
	Description     string          `db:"description" json:"description"`
	RelatedModel    sql.NullString  `db:"related_model" json:"relatedModel,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// JobType distinguishes generation from edit requests
type JobType string

const (
	JobTypeGenerate JobType = "generate"
	JobTypeEdit     JobType = "edit"
)

// JobStatus is the job state machine:
// queued -> processing -> {completed | failed}, queued -> cancelled.
// Terminal states are immutable.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether s permits no further transitions
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job represents a queued generation or edit request
type Job struct {
	ID         string    `db:"id" json:"id"`
	TaskID     string    `db:"task_id" json:"taskId"`
	UserID     string    `db:"user_id" json:"userId"`
	Type       JobType   `db:"job_type" json:"type"`
	Status     JobStatus `db:"status" json:"status"`
	Progress   int       `db:"progress" json:"progress"` // 0-100
	Prompt     string    `db:"prompt" json:"prompt"`
	Model      string    `db:"model" json:"model"`
	CreditCost int       `db:"credit_cost" json:"creditCost"`
	// SourceImageID is the input artifact for edit jobs; ImageID is the
	// output artifact, set at completion.
	SourceImageID sql.NullString `db:"source_image_id" json:"sourceImageId,omitempty"`
	ImageID       sql.NullString `db:"image_id" json:"imageId,omitempty"`
	ErrorMessage  sql.NullString `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	CompletedAt   sql.NullTime   `db:"completed_at" json:"completedAt,omitempty"`
}

// AIModel is a catalog entry with usage statistics
type AIModel struct {
	Name        string       `db:"name" json:"name"`
	DisplayName string       `db:"display_name" json:"displayName"`
	CreditCost  int          `db:"credit_cost" json:"creditCost"`
	UsageCount  int64        `db:"usage_count" json:"usageCount"`
	LastUsedAt  sql.NullTime `db:"last_used_at" json:"lastUsedAt,omitempty"`
}
