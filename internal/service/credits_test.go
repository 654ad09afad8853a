package service

import (
	"context"
	"testing"

	"github.com/pixelmint/pixelmint-server/internal/models"
	"github.com/pixelmint/pixelmint-server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, startingBalance int) (*CreditEngine, *repository.MemoryRepository, string) {
	t.Helper()

	repo := repository.NewMemoryRepository()
	user := &models.User{Email: "test@example.com", Name: "Test User", Password: "x"}
	require.NoError(t, repo.CreateUser(context.Background(), user))

	engine := NewCreditEngine(repo)
	if startingBalance > 0 {
		_, err := engine.AdjustBalance(context.Background(), user.ID, startingBalance,
			models.TransactionEarned, "Welcome bonus", "")
		require.NoError(t, err)
	}

	return engine, repo, user.ID
}

// ledgerSum returns the sum of all ledger entry amounts for the user
func ledgerSum(t *testing.T, repo *repository.MemoryRepository, userID string) int {
	t.Helper()

	transactions, err := repo.ListTransactions(context.Background(), userID, 1000)
	require.NoError(t, err)

	sum := 0
	for _, tx := range transactions {
		sum += tx.Amount
	}
	return sum
}

func TestAdjustBalanceKeepsLedgerConsistent(t *testing.T) {
	engine, repo, userID := newTestEngine(t, 100)
	ctx := context.Background()

	adjustments := []struct {
		amount int
		txType models.TransactionType
	}{
		{-10, models.TransactionSpent},
		{50, models.TransactionPurchased},
		{-30, models.TransactionSpent},
		{5, models.TransactionAdjustment},
	}

	for _, adj := range adjustments {
		newBalance, err := engine.AdjustBalance(ctx, userID, adj.amount, adj.txType, "test adjustment", "")
		require.NoError(t, err)

		// Invariant: cached balance equals the ledger sum at every step
		assert.Equal(t, ledgerSum(t, repo, userID), newBalance)

		balance, err := engine.GetBalance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, newBalance, balance)
	}
}

func TestAdjustBalanceRejectsZeroAmount(t *testing.T) {
	engine, _, userID := newTestEngine(t, 100)

	_, err := engine.AdjustBalance(context.Background(), userID, 0, models.TransactionEarned, "noop", "")

	var invalid *models.InvalidAmountError
	require.ErrorAs(t, err, &invalid)
}

func TestAdjustBalanceRejectsUnknownUser(t *testing.T) {
	engine, _, _ := newTestEngine(t, 0)

	_, err := engine.AdjustBalance(context.Background(), "no-such-user", 10,
		models.TransactionEarned, "bonus", "")

	var notFound *models.UserNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestDeductRejectsOverdraftEntirely(t *testing.T) {
	engine, repo, userID := newTestEngine(t, 5)
	ctx := context.Background()

	entriesBefore := len(mustListTransactions(t, repo, userID))

	_, err := engine.Deduct(ctx, userID, 10, "Image generation", "flux-pro")

	var insufficient *models.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 10, insufficient.Required)
	assert.Equal(t, 5, insufficient.Available)

	// Nothing was persisted: balance unchanged, no ledger entry
	balance, err := engine.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)
	assert.Len(t, mustListTransactions(t, repo, userID), entriesBefore)
}

func TestDeductRejectsNonPositiveAmounts(t *testing.T) {
	engine, _, userID := newTestEngine(t, 100)

	for _, amount := range []int{0, -10} {
		_, err := engine.Deduct(context.Background(), userID, amount, "bad deduct", "")

		var invalid *models.InvalidAmountError
		require.ErrorAs(t, err, &invalid, "amount %d", amount)
	}
}

func TestRefundRestoresBalance(t *testing.T) {
	engine, _, userID := newTestEngine(t, 100)
	ctx := context.Background()

	_, err := engine.Deduct(ctx, userID, 10, "Image generation", "flux-pro")
	require.NoError(t, err)

	newBalance, err := engine.Refund(ctx, userID, 10, "Refund for failed task abc", "flux-pro")
	require.NoError(t, err)
	assert.Equal(t, 100, newBalance)
}

func TestGetBalanceMissingUserReadsZero(t *testing.T) {
	engine, _, _ := newTestEngine(t, 0)

	balance, err := engine.GetBalance(context.Background(), "no-such-user")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestAggregates(t *testing.T) {
	engine, _, userID := newTestEngine(t, 0)
	ctx := context.Background()

	_, err := engine.AdjustBalance(ctx, userID, 20, models.TransactionEarned, "Welcome bonus", "")
	require.NoError(t, err)
	_, err = engine.AdjustBalance(ctx, userID, 50, models.TransactionPurchased, "Credit purchase", "")
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, userID, 30, "Image generation", "sdxl")
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, userID, 10, "Image edit", "sdxl")
	require.NoError(t, err)

	spent, err := engine.TotalSpent(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 40, spent, "spent is reported as a positive number")

	earned, err := engine.TotalEarned(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 20, earned)

	purchased, err := engine.TotalPurchased(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 50, purchased)
}

func TestClassifyDescription(t *testing.T) {
	cases := []struct {
		description string
		amount      int
		want        models.TransactionType
	}{
		{"Credit purchase (checkout test_plus)", 120, models.TransactionPurchased},
		{"Refund for failed task abc", 10, models.TransactionAdjustment},
		{"Image generation (task abc)", -10, models.TransactionSpent},
		{"Welcome bonus", 20, models.TransactionEarned},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyDescription(tc.description, tc.amount), tc.description)
	}
}

func mustListTransactions(t *testing.T, repo *repository.MemoryRepository, userID string) []models.CreditTransaction {
	t.Helper()
	transactions, err := repo.ListTransactions(context.Background(), userID, 1000)
	require.NoError(t, err)
	return transactions
}
