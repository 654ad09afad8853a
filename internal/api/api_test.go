package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pixelmint/pixelmint-server/internal/api"
	"github.com/pixelmint/pixelmint-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret-key"

// stubService returns scripted responses so handler tests only exercise the
// HTTP mapping
type stubService struct {
	jobResp *models.JobResponse
	jobErr  error
	balance *models.BalanceResponse
}

func (s *stubService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	return &models.AuthResponse{Status: "success", UserID: "u-1", CreditBalance: 20}, nil
}

func (s *stubService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	return &models.AuthResponse{Status: "success", UserID: "u-1", Token: "t"}, nil
}

func (s *stubService) GetBalance(ctx context.Context, userID string) (*models.BalanceResponse, error) {
	if s.balance != nil {
		return s.balance, nil
	}
	return &models.BalanceResponse{Status: "success", UserID: userID}, nil
}

func (s *stubService) ListTransactions(ctx context.Context, userID string) (*models.TransactionListResponse, error) {
	return &models.TransactionListResponse{Status: "success", UserID: userID, Transactions: []models.CreditTransaction{}}, nil
}

func (s *stubService) GetCreditSummary(ctx context.Context, userID string) (*models.CreditSummaryResponse, error) {
	return &models.CreditSummaryResponse{Status: "success", UserID: userID}, nil
}

func (s *stubService) PurchaseCredits(ctx context.Context, userID string, req models.PurchaseCreditsRequest) (*models.PurchaseResponse, error) {
	return &models.PurchaseResponse{Status: "success"}, nil
}

func (s *stubService) ListModels(ctx context.Context) (*models.ModelListResponse, error) {
	return &models.ModelListResponse{Status: "success", Models: []models.AIModel{}}, nil
}

func (s *stubService) RequestGeneration(ctx context.Context, userID string, req models.GenerateImageRequest) (*models.JobResponse, error) {
	return s.jobResp, s.jobErr
}

func (s *stubService) RequestEdit(ctx context.Context, userID string, req models.EditImageRequest) (*models.JobResponse, error) {
	return s.jobResp, s.jobErr
}

func (s *stubService) GetJob(ctx context.Context, userID, taskID string) (*models.JobResponse, error) {
	return s.jobResp, s.jobErr
}

func (s *stubService) ListJobs(ctx context.Context, userID string) (*models.JobListResponse, error) {
	return &models.JobListResponse{Status: "success", Jobs: []models.JobResponse{}}, nil
}

func (s *stubService) CancelJob(ctx context.Context, userID, taskID string) (*models.JobResponse, error) {
	return s.jobResp, s.jobErr
}

func setupRouter(svc *stubService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(testJWTSecret))
		c.Next()
	})
	api.NewHandler(svc).SetupRoutes(router)
	return router
}

func testToken(t *testing.T, userID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

// performRequest executes an HTTP request against the router
func performRequest(r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticatedRoutesRejectMissingToken(t *testing.T) {
	router := setupRouter(&stubService{})

	w := performRequest(router, http.MethodGet, "/api/credits/balance", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "UNAUTHORIZED", resp.Code)
}

func TestGenerateAccepted(t *testing.T) {
	router := setupRouter(&stubService{
		jobResp: &models.JobResponse{
			Status:             "success",
			TaskID:             "task-1",
			JobStatus:          models.JobStatusQueued,
			FinalCreditBalance: 90,
		},
	})

	w := performRequest(router, http.MethodPost, "/api/images/generate",
		models.GenerateImageRequest{Prompt: "a fox", Model: "flux-pro"},
		testToken(t, "u-1"))

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp models.JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, 90, resp.FinalCreditBalance)
}

func TestGenerateValidatesBody(t *testing.T) {
	router := setupRouter(&stubService{})

	// Missing prompt
	w := performRequest(router, http.MethodPost, "/api/images/generate",
		map[string]string{"model": "flux-pro"}, testToken(t, "u-1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInsufficientCreditsMapsTo402(t *testing.T) {
	router := setupRouter(&stubService{
		jobErr: &models.InsufficientCreditsError{Required: 10, Available: 5},
	})

	w := performRequest(router, http.MethodPost, "/api/images/generate",
		models.GenerateImageRequest{Prompt: "a fox", Model: "flux-pro"},
		testToken(t, "u-1"))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INSUFFICIENT_CREDITS", resp.Code)
	assert.Equal(t, 10, resp.Required)
	assert.Equal(t, 5, resp.Available)
}

func TestRateLimitMapsTo429(t *testing.T) {
	router := setupRouter(&stubService{jobErr: models.ErrRateLimited})

	w := performRequest(router, http.MethodPost, "/api/images/generate",
		models.GenerateImageRequest{Prompt: "a fox", Model: "flux-pro"},
		testToken(t, "u-1"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestConcurrencyLimitMapsTo429(t *testing.T) {
	router := setupRouter(&stubService{jobErr: models.ErrConcurrencyLimit})

	w := performRequest(router, http.MethodPost, "/api/images/generate",
		models.GenerateImageRequest{Prompt: "a fox", Model: "flux-pro"},
		testToken(t, "u-1"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "CONCURRENCY_LIMIT", resp.Code)
}

func TestJobNotFoundMapsTo404(t *testing.T) {
	router := setupRouter(&stubService{jobErr: models.ErrJobNotFound})

	w := performRequest(router, http.MethodGet, "/api/jobs/unknown", nil, testToken(t, "u-1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelAfterClaimMapsTo409(t *testing.T) {
	router := setupRouter(&stubService{jobErr: models.ErrJobNotCancellable})

	w := performRequest(router, http.MethodPost, "/api/jobs/task-1/cancel", nil, testToken(t, "u-1"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUnknownModelMapsTo400(t *testing.T) {
	router := setupRouter(&stubService{jobErr: models.ErrUnknownModel})

	w := performRequest(router, http.MethodPost, "/api/images/generate",
		models.GenerateImageRequest{Prompt: "a fox", Model: "bogus"},
		testToken(t, "u-1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignUpCreated(t *testing.T) {
	router := setupRouter(&stubService{})

	w := performRequest(router, http.MethodPost, "/api/auth/signup",
		models.SignUpRequest{Email: "a@example.com", Password: "longenough", Name: "A"}, "")

	assert.Equal(t, http.StatusCreated, w.Code)
}
