package models

// Request models
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type GenerateImageRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Model  string `json:"model" binding:"required"`
}

type EditImageRequest struct {
	ImageID string `json:"imageId" binding:"required"`
	Prompt  string `json:"prompt" binding:"required"`
	Model   string `json:"model" binding:"required"`
}

type PurchaseCreditsRequest struct {
	CheckoutReference string `json:"checkoutReference" binding:"required"`
}

// Response models
type AuthResponse struct {
	Status        string `json:"status"`
	UserID        string `json:"userId,omitempty"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	CreditBalance int    `json:"creditBalance"`
	Token         string `json:"token,omitempty"`
	ExpiresIn     int    `json:"expiresIn,omitempty"`
}

type BalanceResponse struct {
	Status        string `json:"status"`
	UserID        string `json:"userId"`
	CreditBalance int    `json:"creditBalance"`
}

type TransactionListResponse struct {
	Status       string              `json:"status"`
	UserID       string              `json:"userId"`
	Transactions []CreditTransaction `json:"transactions"`
}

type CreditSummaryResponse struct {
	Status         string `json:"status"`
	UserID         string `json:"userId"`
	CreditBalance  int    `json:"creditBalance"`
	TotalSpent     int    `json:"totalSpent"` // reported as a positive number
	TotalEarned    int    `json:"totalEarned"`
	TotalPurchased int    `json:"totalPurchased"`
}

type PurchaseResponse struct {
	Status             string `json:"status"`
	CreditsAdded       int    `json:"creditsAdded"`
	FinalCreditBalance int    `json:"finalCreditBalance"`
}

type JobResponse struct {
	Status             string    `json:"status"`
	TaskID             string    `json:"taskId"`
	JobStatus          JobStatus `json:"jobStatus"`
	Progress           int       `json:"progress"`
	Type               JobType   `json:"type"`
	Model              string    `json:"model"`
	ImageID            string    `json:"imageId,omitempty"`
	ErrorMessage       string    `json:"errorMessage,omitempty"`
	CreatedAt          string    `json:"createdAt"`
	CompletedAt        string    `json:"completedAt,omitempty"`
	FinalCreditBalance int       `json:"finalCreditBalance,omitempty"`
}

type JobListResponse struct {
	Status string        `json:"status"`
	Jobs   []JobResponse `json:"jobs"`
}

type ModelListResponse struct {
	Status string    `json:"status"`
	Models []AIModel `json:"models"`
}

type ErrorResponse struct {
	Status    string `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Required  int    `json:"required,omitempty"`
	Available int    `json:"available,omitempty"`
}
