package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pixelmint/pixelmint-server/internal/config"
	"github.com/pixelmint/pixelmint-server/internal/models"
	"github.com/pixelmint/pixelmint-server/internal/payment"
	"github.com/pixelmint/pixelmint-server/internal/ratelimit"
	"github.com/pixelmint/pixelmint-server/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)

	// Credits
	GetBalance(ctx context.Context, userID string) (*models.BalanceResponse, error)
	ListTransactions(ctx context.Context, userID string) (*models.TransactionListResponse, error)
	GetCreditSummary(ctx context.Context, userID string) (*models.CreditSummaryResponse, error)
	PurchaseCredits(ctx context.Context, userID string, req models.PurchaseCreditsRequest) (*models.PurchaseResponse, error)

	// Models
	ListModels(ctx context.Context) (*models.ModelListResponse, error)

	// Jobs
	RequestGeneration(ctx context.Context, userID string, req models.GenerateImageRequest) (*models.JobResponse, error)
	RequestEdit(ctx context.Context, userID string, req models.EditImageRequest) (*models.JobResponse, error)
	GetJob(ctx context.Context, userID, taskID string) (*models.JobResponse, error)
	ListJobs(ctx context.Context, userID string) (*models.JobListResponse, error)
	CancelJob(ctx context.Context, userID, taskID string) (*models.JobResponse, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	credits       *CreditEngine
	limiter       ratelimit.Limiter
	payments      payment.Processor
	cfg           config.CreditsConfig
	jwtSecret     []byte
	tokenDuration time.Duration
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(
	repo repository.Repository,
	limiter ratelimit.Limiter,
	payments payment.Processor,
	cfg config.CreditsConfig,
	jwtSecret string,
) *DefaultService {
	return &DefaultService{
		repo:          repo,
		credits:       NewCreditEngine(repo),
		limiter:       limiter,
		payments:      payments,
		cfg:           cfg,
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: 24 * time.Hour, // 24 hours token validity
	}
}

// Credits returns the credit engine, shared with the background worker
func (s *DefaultService) Credits() *CreditEngine {
	return s.credits
}

// Authentication methods
func (s *DefaultService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	// Check if user already exists
	existingUser, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error checking user existence: %w", err)
	}

	if existingUser != nil {
		return nil, errors.New("user with this email already exists")
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	// Create the user
	user := &models.User{
		ID:       uuid.New().String(),
		Email:    req.Email,
		Name:     req.Name,
		Password: string(hashedPassword),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	// Grant the signup bonus through the ledger so the balance stays the
	// sum of the user's entries
	balance := 0
	if s.cfg.SignupBonus > 0 {
		balance, err = s.credits.AdjustBalance(ctx, user.ID, s.cfg.SignupBonus,
			models.TransactionEarned, "Welcome bonus", "")
		if err != nil {
			return nil, fmt.Errorf("error granting signup bonus: %w", err)
		}
	}

	return &models.AuthResponse{
		Status:        "success",
		UserID:        user.ID,
		Email:         user.Email,
		Name:          user.Name,
		CreditBalance: balance,
	}, nil
}

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	// Get the user
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil {
		return nil, errors.New("invalid email or password")
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	// Generate JWT token
	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:        "success",
		UserID:        user.ID,
		CreditBalance: user.CreditBalance,
		Token:         token,
		ExpiresIn:     int(s.tokenDuration.Seconds()),
	}, nil
}

// Credit operations
func (s *DefaultService) GetBalance(ctx context.Context, userID string) (*models.BalanceResponse, error) {
	balance, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting balance: %w", err)
	}

	return &models.BalanceResponse{
		Status:        "success",
		UserID:        userID,
		CreditBalance: balance,
	}, nil
}

func (s *DefaultService) ListTransactions(ctx context.Context, userID string) (*models.TransactionListResponse, error) {
	transactions, err := s.repo.ListTransactions(ctx, userID, 100)
	if err != nil {
		return nil, fmt.Errorf("error listing transactions: %w", err)
	}

	if transactions == nil {
		transactions = []models.CreditTransaction{}
	}

	return &models.TransactionListResponse{
		Status:       "success",
		UserID:       userID,
		Transactions: transactions,
	}, nil
}

func (s *DefaultService) GetCreditSummary(ctx context.Context, userID string) (*models.CreditSummaryResponse, error) {
	balance, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting balance: %w", err)
	}

	spent, err := s.credits.TotalSpent(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error summing spent credits: %w", err)
	}

	earned, err := s.credits.TotalEarned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error summing earned credits: %w", err)
	}

	purchased, err := s.credits.TotalPurchased(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error summing purchased credits: %w", err)
	}

	return &models.CreditSummaryResponse{
		Status:         "success",
		UserID:         userID,
		CreditBalance:  balance,
		TotalSpent:     spent,
		TotalEarned:    earned,
		TotalPurchased: purchased,
	}, nil
}

func (s *DefaultService) PurchaseCredits(
	ctx context.Context,
	userID string,
	req models.PurchaseCreditsRequest,
) (*models.PurchaseResponse, error) {
	receipt, err := s.payments.VerifyCheckout(ctx, req.CheckoutReference)
	if err != nil {
		return nil, fmt.Errorf("error verifying checkout: %w", err)
	}

	newBalance, err := s.credits.AdjustBalance(ctx, userID, receipt.Credits,
		models.TransactionPurchased,
		fmt.Sprintf("Credit purchase (checkout %s)", receipt.Reference), "")
	if err != nil {
		return nil, fmt.Errorf("error crediting purchase: %w", err)
	}

	return &models.PurchaseResponse{
		Status:             "success",
		CreditsAdded:       receipt.Credits,
		FinalCreditBalance: newBalance,
	}, nil
}

// Model catalog
func (s *DefaultService) ListModels(ctx context.Context) (*models.ModelListResponse, error) {
	catalog, err := s.repo.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}

	return &models.ModelListResponse{
		Status: "success",
		Models: catalog,
	}, nil
}

// Helper methods
func (s *DefaultService) generateJWT(user *models.User) (string, error) {
	expirationTime := time.Now().Add(s.tokenDuration)

	claims := jwt.MapClaims{
		"sub": user.ID, // subject
		"exp": expirationTime.Unix(),
		"iat": time.Now().Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
