package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmint/pixelmint-server/internal/models"
)

// MemoryRepository is an in-memory Repository used by tests and local
// experiments. It enforces the same invariants as the Postgres
// implementation: balance adjustments are all-or-nothing, admission is a
// single critical section, claims are exclusive, terminal job states are
// immutable.
type MemoryRepository struct {
	mu           sync.Mutex
	users        map[string]*models.User
	usersByEmail map[string]string
	transactions []models.CreditTransaction
	jobs         map[string]*models.Job
	catalog      map[string]*models.AIModel
	clock        int64 // monotonic tick so created_at ordering is total
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[string]*models.User),
		usersByEmail: make(map[string]string),
		jobs:         make(map[string]*models.Job),
		catalog:      make(map[string]*models.AIModel),
	}
}

// AddModel seeds a catalog entry
func (r *MemoryRepository) AddModel(model models.AIModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := model
	r.catalog[model.Name] = &m
}

func (r *MemoryRepository) now() time.Time {
	r.clock++
	return time.Unix(0, r.clock*int64(time.Millisecond)).UTC()
}

// User operations

func (r *MemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	u := *user
	r.users[user.ID] = &u
	r.usersByEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.usersByEmail[email]
	if !ok {
		return nil, nil
	}
	u := *r.users[id]
	return &u, nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	u := *user
	return &u, nil
}

// Credit ledger operations

func (r *MemoryRepository) AdjustBalance(ctx context.Context, entry *models.CreditTransaction) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adjustBalanceLocked(entry)
}

func (r *MemoryRepository) adjustBalanceLocked(entry *models.CreditTransaction) (int, error) {
	user, ok := r.users[entry.UserID]
	if !ok {
		return 0, &models.UserNotFoundError{UserID: entry.UserID}
	}

	newBalance := user.CreditBalance + entry.Amount
	if newBalance < 0 {
		return 0, &models.InsufficientCreditsError{
			Required:  -entry.Amount,
			Available: user.CreditBalance,
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = r.now()

	user.CreditBalance = newBalance
	user.UpdatedAt = entry.CreatedAt
	r.transactions = append(r.transactions, *entry)
	return newBalance, nil
}

func (r *MemoryRepository) GetBalance(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return 0, nil
	}
	return user.CreditBalance, nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.CreditTransaction
	for i := len(r.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if r.transactions[i].UserID == userID {
			out = append(out, r.transactions[i])
		}
	}
	return out, nil
}

func (r *MemoryRepository) SumTransactionsByType(ctx context.Context, userID string, txType models.TransactionType) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, tx := range r.transactions {
		if tx.UserID == userID && tx.TransactionType == txType {
			total += tx.Amount
		}
	}
	return total, nil
}

// Job operations

func (r *MemoryRepository) AdmitJob(ctx context.Context, job *models.Job, maxActive int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[job.UserID]; !ok {
		return 0, &models.UserNotFoundError{UserID: job.UserID}
	}

	active := 0
	for _, j := range r.jobs {
		if j.UserID == job.UserID &&
			(j.Status == models.JobStatusQueued || j.Status == models.JobStatusProcessing) {
			active++
		}
	}
	if active >= maxActive {
		return 0, models.ErrConcurrencyLimit
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.TaskID == "" {
		job.TaskID = uuid.New().String()
	}

	description := "Image generation (task " + job.TaskID + ")"
	if job.Type == models.JobTypeEdit {
		description = "Image edit (task " + job.TaskID + ")"
	}

	newBalance, err := r.adjustBalanceLocked(&models.CreditTransaction{
		UserID:          job.UserID,
		TransactionType: models.TransactionSpent,
		Amount:          -job.CreditCost,
		Description:     description,
		RelatedModel:    sql.NullString{String: job.Model, Valid: job.Model != ""},
	})
	if err != nil {
		return 0, err
	}

	job.Status = models.JobStatusQueued
	job.Progress = 0
	job.CreatedAt = r.now()

	j := *job
	r.jobs[job.ID] = &j
	return newBalance, nil
}

func (r *MemoryRepository) CountActiveJobs(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, j := range r.jobs {
		if j.UserID == userID &&
			(j.Status == models.JobStatusQueued || j.Status == models.JobStatusProcessing) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) ClaimNextQueuedJob(ctx context.Context) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var queued []*models.Job
	for _, j := range r.jobs {
		if j.Status == models.JobStatusQueued {
			queued = append(queued, j)
		}
	}
	if len(queued) == 0 {
		return nil, nil
	}

	sort.Slice(queued, func(i, k int) bool {
		return queued[i].CreatedAt.Before(queued[k].CreatedAt)
	})

	claimed := queued[0]
	claimed.Status = models.JobStatusProcessing
	j := *claimed
	return &j, nil
}

func (r *MemoryRepository) UpdateJobProgress(ctx context.Context, jobID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.Status != models.JobStatusProcessing {
		return nil
	}
	job.Progress = progress
	return nil
}

func (r *MemoryRepository) CompleteJob(ctx context.Context, jobID, imageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.Status != models.JobStatusProcessing {
		return models.ErrJobNotFound
	}
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.ImageID = sql.NullString{String: imageID, Valid: true}
	job.CompletedAt = sql.NullTime{Time: r.now(), Valid: true}
	return nil
}

func (r *MemoryRepository) FailJob(ctx context.Context, jobID, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.Status != models.JobStatusProcessing {
		return models.ErrJobNotFound
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = sql.NullString{String: errorMessage, Valid: true}
	job.CompletedAt = sql.NullTime{Time: r.now(), Valid: true}
	return nil
}

func (r *MemoryRepository) CancelJob(ctx context.Context, taskID, userID string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var job *models.Job
	for _, j := range r.jobs {
		if j.TaskID == taskID && j.UserID == userID {
			job = j
			break
		}
	}
	if job == nil {
		return nil, models.ErrJobNotFound
	}
	if job.Status != models.JobStatusQueued {
		return nil, models.ErrJobNotCancellable
	}

	job.Status = models.JobStatusCancelled
	job.CompletedAt = sql.NullTime{Time: r.now(), Valid: true}

	_, err := r.adjustBalanceLocked(&models.CreditTransaction{
		UserID:          userID,
		TransactionType: models.TransactionAdjustment,
		Amount:          job.CreditCost,
		Description:     "Refund for cancelled task " + taskID,
		RelatedModel:    sql.NullString{String: job.Model, Valid: job.Model != ""},
	})
	if err != nil {
		return nil, err
	}

	j := *job
	return &j, nil
}

func (r *MemoryRepository) GetJobByTaskID(ctx context.Context, taskID string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, j := range r.jobs {
		if j.TaskID == taskID {
			job := *j
			return &job, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListUserJobs(ctx context.Context, userID string, limit int) ([]models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Job
	for _, j := range r.jobs {
		if j.UserID == userID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Model catalog operations

func (r *MemoryRepository) ListModels(ctx context.Context) ([]models.AIModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.AIModel
	for _, m := range r.catalog {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

func (r *MemoryRepository) GetModelByName(ctx context.Context, name string) (*models.AIModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	model, ok := r.catalog[name]
	if !ok {
		return nil, nil
	}
	m := *model
	return &m, nil
}

func (r *MemoryRepository) RecordModelUsage(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	model, ok := r.catalog[name]
	if !ok {
		return nil
	}
	model.UsageCount++
	model.LastUsedAt = sql.NullTime{Time: r.now(), Valid: true}
	return nil
}
