package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pixelmint/pixelmint-server/internal/models"
	"github.com/pixelmint/pixelmint-server/internal/repository"
)

// CreditEngine owns every credit balance mutation. Balances are never
// touched outside it: each adjustment updates the cached balance and appends
// the ledger entry in one storage transaction, and a deduction that would
// drive the balance negative is rejected whole.
type CreditEngine struct {
	repo repository.Repository
}

// NewCreditEngine creates a new credit engine
func NewCreditEngine(repo repository.Repository) *CreditEngine {
	return &CreditEngine{repo: repo}
}

// AdjustBalance applies a signed adjustment with an explicit transaction
// type. This is the preferred entry point; AddCredits exists only as a
// convenience wrapper that infers the type from the description.
func (e *CreditEngine) AdjustBalance(
	ctx context.Context,
	userID string,
	amount int,
	txType models.TransactionType,
	description string,
	relatedModel string,
) (int, error) {
	if amount == 0 {
		return 0, &models.InvalidAmountError{Amount: amount}
	}
	if !txType.Valid() {
		return 0, fmt.Errorf("unknown transaction type %q", txType)
	}

	entry := &models.CreditTransaction{
		UserID:          userID,
		TransactionType: txType,
		Amount:          amount,
		Description:     description,
		RelatedModel:    sql.NullString{String: relatedModel, Valid: relatedModel != ""},
	}

	newBalance, err := e.repo.AdjustBalance(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("error adjusting balance: %w", err)
	}

	return newBalance, nil
}

// Deduct removes amount credits from the user. It pre-checks the balance
// and fails fast before touching storage when the credits are not there;
// the storage transaction still enforces the invariant for racing callers.
func (e *CreditEngine) Deduct(
	ctx context.Context,
	userID string,
	amount int,
	description string,
	relatedModel string,
) (int, error) {
	if amount <= 0 {
		return 0, &models.InvalidAmountError{Amount: amount}
	}

	sufficient, available, err := e.HasSufficientCredits(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	if !sufficient {
		return 0, &models.InsufficientCreditsError{Required: amount, Available: available}
	}

	return e.AdjustBalance(ctx, userID, -amount, models.TransactionSpent, description, relatedModel)
}

// Refund compensates an earlier deduction. It always succeeds for a valid
// amount since it only adds credits.
func (e *CreditEngine) Refund(
	ctx context.Context,
	userID string,
	amount int,
	description string,
	relatedModel string,
) (int, error) {
	if amount <= 0 {
		return 0, &models.InvalidAmountError{Amount: amount}
	}

	return e.AdjustBalance(ctx, userID, amount, models.TransactionAdjustment, description, relatedModel)
}

// AddCredits is the legacy convenience path: it infers the transaction type
// from keywords in the description. New call sites should use AdjustBalance
// with an explicit type instead.
func (e *CreditEngine) AddCredits(
	ctx context.Context,
	userID string,
	amount int,
	description string,
	relatedModel string,
) (int, error) {
	return e.AdjustBalance(ctx, userID, amount, ClassifyDescription(description, amount), description, relatedModel)
}

// ClassifyDescription maps a free-text description onto a transaction type
func ClassifyDescription(description string, amount int) models.TransactionType {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "purchase"):
		return models.TransactionPurchased
	case strings.Contains(lower, "refund"):
		return models.TransactionAdjustment
	case amount < 0:
		return models.TransactionSpent
	default:
		return models.TransactionEarned
	}
}

// GetBalance returns the user's balance; a missing user reads as 0
func (e *CreditEngine) GetBalance(ctx context.Context, userID string) (int, error) {
	return e.repo.GetBalance(ctx, userID)
}

// HasSufficientCredits reports whether the user can cover required credits,
// along with the current balance.
func (e *CreditEngine) HasSufficientCredits(ctx context.Context, userID string, required int) (bool, int, error) {
	balance, err := e.repo.GetBalance(ctx, userID)
	if err != nil {
		return false, 0, fmt.Errorf("error reading balance: %w", err)
	}
	return balance >= required, balance, nil
}

// TotalSpent reports the sum of spent entries as a positive number
func (e *CreditEngine) TotalSpent(ctx context.Context, userID string) (int, error) {
	total, err := e.repo.SumTransactionsByType(ctx, userID, models.TransactionSpent)
	if err != nil {
		return 0, err
	}
	return -total, nil
}

// TotalEarned reports the sum of earned entries
func (e *CreditEngine) TotalEarned(ctx context.Context, userID string) (int, error) {
	return e.repo.SumTransactionsByType(ctx, userID, models.TransactionEarned)
}

// TotalPurchased reports the sum of purchased entries
func (e *CreditEngine) TotalPurchased(ctx context.Context, userID string) (int, error) {
	return e.repo.SumTransactionsByType(ctx, userID, models.TransactionPurchased)
}
