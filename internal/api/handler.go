package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pixelmint/pixelmint-server/internal/models"
	"github.com/pixelmint/pixelmint-server/internal/payment"
	"github.com/pixelmint/pixelmint-server/internal/service"
)

// Handler holds the HTTP handlers for the API
type Handler struct {
	svc service.Service
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service) *Handler {
	return &Handler{svc: svc}
}

// SetupRoutes registers all API routes on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	auth := router.Group("/api/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/login", h.Login)
	}

	authenticated := router.Group("/api")
	authenticated.Use(AuthMiddleware())
	{
		authenticated.GET("/credits/balance", h.GetBalance)
		authenticated.GET("/credits/transactions", h.ListTransactions)
		authenticated.GET("/credits/summary", h.GetCreditSummary)
		authenticated.POST("/credits/purchase", h.PurchaseCredits)

		authenticated.GET("/models", h.ListModels)

		authenticated.POST("/images/generate", h.GenerateImage)
		authenticated.POST("/images/edit", h.EditImage)

		authenticated.GET("/jobs", h.ListJobs)
		authenticated.GET("/jobs/:taskId", h.GetJob)
		authenticated.POST("/jobs/:taskId/cancel", h.CancelJob)
	}
}

// Authentication handlers

func (h *Handler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.SignUp(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Status:  "error",
			Code:    "SIGNUP_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Status:  "error",
			Code:    "INVALID_CREDENTIALS",
			Message: "Invalid email or password",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Credit handlers

func (h *Handler) GetBalance(c *gin.Context) {
	resp, err := h.svc.GetBalance(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	resp, err := h.svc.ListTransactions(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetCreditSummary(c *gin.Context) {
	resp, err := h.svc.GetCreditSummary(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) PurchaseCredits(c *gin.Context) {
	var req models.PurchaseCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.PurchaseCredits(c.Request.Context(), userID(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Model handlers

func (h *Handler) ListModels(c *gin.Context) {
	resp, err := h.svc.ListModels(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Job handlers

func (h *Handler) GenerateImage(c *gin.Context) {
	var req models.GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.RequestGeneration(c.Request.Context(), userID(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) EditImage(c *gin.Context) {
	var req models.EditImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.RequestEdit(c.Request.Context(), userID(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) ListJobs(c *gin.Context) {
	resp, err := h.svc.ListJobs(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetJob(c *gin.Context) {
	resp, err := h.svc.GetJob(c.Request.Context(), userID(c), c.Param("taskId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CancelJob(c *gin.Context) {
	resp, err := h.svc.CancelJob(c.Request.Context(), userID(c), c.Param("taskId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Helpers

func userID(c *gin.Context) string {
	return c.MustGet("userId").(string)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "INVALID_REQUEST",
		Message: err.Error(),
	})
}

// writeError maps service errors onto HTTP statuses. Admission errors carry
// their own codes; anything unrecognized becomes a 500 with a generic body.
func (h *Handler) writeError(c *gin.Context, err error) {
	var insufficient *models.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusPaymentRequired, models.ErrorResponse{
			Status:    "error",
			Code:      "INSUFFICIENT_CREDITS",
			Message:   insufficient.Error(),
			Required:  insufficient.Required,
			Available: insufficient.Available,
		})
		return
	}

	var invalidAmount *models.InvalidAmountError
	if errors.As(err, &invalidAmount) {
		badRequest(c, invalidAmount)
		return
	}

	var notFound *models.UserNotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Status:  "error",
			Code:    "USER_NOT_FOUND",
			Message: notFound.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
			Status:  "error",
			Code:    "RATE_LIMITED",
			Message: "Too many requests, slow down",
		})
	case errors.Is(err, models.ErrConcurrencyLimit):
		c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
			Status:  "error",
			Code:    "CONCURRENCY_LIMIT",
			Message: "Too many jobs in flight, wait for one to finish",
		})
	case errors.Is(err, models.ErrJobNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Status:  "error",
			Code:    "JOB_NOT_FOUND",
			Message: "Job not found",
		})
	case errors.Is(err, models.ErrJobNotCancellable):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Status:  "error",
			Code:    "JOB_NOT_CANCELLABLE",
			Message: "Job can only be cancelled while queued",
		})
	case errors.Is(err, models.ErrUnknownModel):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "UNKNOWN_MODEL",
			Message: "Unknown model",
		})
	case errors.Is(err, payment.ErrCheckoutNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Status:  "error",
			Code:    "CHECKOUT_NOT_FOUND",
			Message: "Checkout reference could not be verified",
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:  "error",
			Code:    "INTERNAL_ERROR",
			Message: "Something went wrong",
		})
	}
}
