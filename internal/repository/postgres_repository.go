package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pixelmint/pixelmint-server/internal/models"
)

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Credit ledger operations
	AdjustBalance(ctx context.Context, tx *models.CreditTransaction) (int, error)
	GetBalance(ctx context.Context, userID string) (int, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error)
	SumTransactionsByType(ctx context.Context, userID string, txType models.TransactionType) (int, error)

	// Job operations
	AdmitJob(ctx context.Context, job *models.Job, maxActive int) (int, error)
	CountActiveJobs(ctx context.Context, userID string) (int, error)
	ClaimNextQueuedJob(ctx context.Context) (*models.Job, error)
	UpdateJobProgress(ctx context.Context, jobID string, progress int) error
	CompleteJob(ctx context.Context, jobID, imageID string) error
	FailJob(ctx context.Context, jobID, errorMessage string) error
	CancelJob(ctx context.Context, taskID, userID string) (*models.Job, error)
	GetJobByTaskID(ctx context.Context, taskID string) (*models.Job, error)
	ListUserJobs(ctx context.Context, userID string, limit int) ([]models.Job, error)

	// Model catalog operations
	ListModels(ctx context.Context) ([]models.AIModel, error)
	GetModelByName(ctx context.Context, name string) (*models.AIModel, error)
	RecordModelUsage(ctx context.Context, name string) error
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, password, credit_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	// Generate a new UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.Password, user.CreditBalance,
		user.CreatedAt, user.UpdatedAt)

	return err
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT * FROM users WHERE email = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT * FROM users WHERE id = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

// Credit ledger repository methods

// AdjustBalance applies a signed credit adjustment and appends the ledger
// entry in a single transaction. The balance update locks the user row, so
// concurrent adjustments for the same user serialize at the storage layer.
// If the resulting balance would be negative, everything rolls back and an
// InsufficientCreditsError is returned.
func (r *PostgresRepository) AdjustBalance(ctx context.Context, entry *models.CreditTransaction) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	newBalance, err := r.adjustBalanceTx(ctx, tx, entry)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// adjustBalanceTx performs the balance update plus ledger insert within an
// existing transaction. Callers own commit and rollback.
func (r *PostgresRepository) adjustBalanceTx(
	ctx context.Context,
	tx *sql.Tx,
	entry *models.CreditTransaction,
) (int, error) {
	var newBalance int
	err := tx.QueryRowContext(ctx,
		`UPDATE users
		SET credit_balance = credit_balance + $1, updated_at = $2
		WHERE id = $3
		RETURNING credit_balance`,
		entry.Amount, time.Now().UTC(), entry.UserID).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &models.UserNotFoundError{UserID: entry.UserID}
		}
		// The CHECK constraint on credit_balance rejects a negative result
		// before we can observe it; report it as insufficient credits.
		if isCheckViolation(err) {
			balance, readErr := r.GetBalance(ctx, entry.UserID)
			if readErr != nil {
				balance = 0
			}
			return 0, &models.InsufficientCreditsError{
				Required:  -entry.Amount,
				Available: balance,
			}
		}
		return 0, err
	}

	if newBalance < 0 {
		return 0, &models.InsufficientCreditsError{
			Required:  -entry.Amount,
			Available: newBalance - entry.Amount,
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, user_id, transaction_type, amount, description, related_model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.TransactionType, entry.Amount,
		entry.Description, entry.RelatedModel, entry.CreatedAt)
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}

func (r *PostgresRepository) GetBalance(ctx context.Context, userID string) (int, error) {
	query := `SELECT credit_balance FROM users WHERE id = $1`

	var balance int
	err := r.db.GetContext(ctx, &balance, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil // Missing user reads as zero balance
		}
		return 0, err
	}

	return balance, nil
}

func (r *PostgresRepository) ListTransactions(
	ctx context.Context,
	userID string,
	limit int,
) ([]models.CreditTransaction, error) {
	query := `
		SELECT * FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var transactions []models.CreditTransaction
	err := r.db.SelectContext(ctx, &transactions, query, userID, limit)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

func (r *PostgresRepository) SumTransactionsByType(
	ctx context.Context,
	userID string,
	txType models.TransactionType,
) (int, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM credit_transactions
		WHERE user_id = $1 AND transaction_type = $2
	`

	var total int
	err := r.db.GetContext(ctx, &total, query, userID, txType)
	if err != nil {
		return 0, err
	}

	return total, nil
}

// isCheckViolation reports whether err is a PostgreSQL check constraint
// violation (SQLSTATE 23514).
func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23514"
	}
	return false
}
