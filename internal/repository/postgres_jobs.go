package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmint/pixelmint-server/internal/models"
)

// Job repository methods

// AdmitJob performs admission atomically: it locks the user row, checks the
// concurrency cap, deducts the job's credit cost (appending the ledger
// entry), and inserts the job in queued state. Either all of it happens or
// none of it does, so two racing admissions cannot both slip past the cap.
// Returns the balance after deduction.
func (r *PostgresRepository) AdmitJob(ctx context.Context, job *models.Job, maxActive int) (int, error) {
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

	// Lock the user row so concurrent admissions for the same user serialize
	var locked string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`, job.UserID).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &models.UserNotFoundError{UserID: job.UserID}
		}
		return 0, err
	}

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE user_id = $1 AND status IN ($2, $3)`,
		job.UserID, models.JobStatusQueued, models.JobStatusProcessing).Scan(&active)
	if err != nil {
		return 0, err
	}

	if active >= maxActive {
		err = models.ErrConcurrencyLimit
		return 0, err
	}

	now := time.Now().UTC()
	entry := &models.CreditTransaction{
		UserID:          job.UserID,
		TransactionType: models.TransactionSpent,
		Amount:          -job.CreditCost,
		Description:     admissionDescription(job),
		RelatedModel:    sql.NullString{String: job.Model, Valid: job.Model != ""},
		CreatedAt:       now,
	}

	var newBalance int
	newBalance, err = r.adjustBalanceTx(ctx, tx, entry)
	if err != nil {
		return 0, err
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.TaskID == "" {
		job.TaskID = uuid.New().String()
	}
	job.Status = models.JobStatusQueued
	job.Progress = 0
	job.CreatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, task_id, user_id, job_type, status, progress, prompt, model, credit_cost, source_image_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.TaskID, job.UserID, job.Type, job.Status, job.Progress,
		job.Prompt, job.Model, job.CreditCost, job.SourceImageID, job.CreatedAt)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	return newBalance, nil
}

func admissionDescription(job *models.Job) string {
	if job.Type == models.JobTypeEdit {
		return "Image edit (task " + job.TaskID + ")"
	}
	return "Image generation (task " + job.TaskID + ")"
}

func (r *PostgresRepository) CountActiveJobs(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM jobs WHERE user_id = $1 AND status IN ($2, $3)`

	var count int
	err := r.db.GetContext(ctx, &count, query, userID,
		models.JobStatusQueued, models.JobStatusProcessing)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// ClaimNextQueuedJob atomically claims the oldest queued job and moves it to
// processing. The claim is a single conditional update over a locked
// sub-select with SKIP LOCKED, so concurrent processor invocations never
// claim the same job. Returns nil when the queue is empty.
func (r *PostgresRepository) ClaimNextQueuedJob(ctx context.Context) (*models.Job, error) {
	query := `
		UPDATE jobs SET status = $1
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`

	var job models.Job
	err := r.db.GetContext(ctx, &job, query, models.JobStatusProcessing, models.JobStatusQueued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No queued jobs
		}
		return nil, err
	}

	job.Status = models.JobStatusProcessing
	return &job, nil
}

func (r *PostgresRepository) UpdateJobProgress(ctx context.Context, jobID string, progress int) error {
	// Progress only moves while the job is processing
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET progress = $1 WHERE id = $2 AND status = $3`,
		progress, jobID, models.JobStatusProcessing)
	return err
}

func (r *PostgresRepository) CompleteJob(ctx context.Context, jobID, imageID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, progress = 100, image_id = $2, completed_at = $3
		WHERE id = $4 AND status = $5`,
		models.JobStatusCompleted, imageID, time.Now().UTC(),
		jobID, models.JobStatusProcessing)
	if err != nil {
		return err
	}

	return requireRowAffected(result)
}

func (r *PostgresRepository) FailJob(ctx context.Context, jobID, errorMessage string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, error_message = $2, completed_at = $3
		WHERE id = $4 AND status = $5`,
		models.JobStatusFailed, errorMessage, time.Now().UTC(),
		jobID, models.JobStatusProcessing)
	if err != nil {
		return err
	}

	return requireRowAffected(result)
}

// CancelJob cancels a queued job and refunds the credits deducted at
// admission in the same transaction. Jobs that have already been claimed
// (or finished) are not cancellable.
func (r *PostgresRepository) CancelJob(ctx context.Context, taskID, userID string) (*models.Job, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	var job models.Job
	err = tx.GetContext(ctx, &job,
		`UPDATE jobs SET status = $1, completed_at = $2
		WHERE task_id = $3 AND user_id = $4 AND status = $5
		RETURNING *`,
		models.JobStatusCancelled, time.Now().UTC(),
		taskID, userID, models.JobStatusQueued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish unknown task from one past the queued state
			var exists bool
			if checkErr := r.db.GetContext(ctx, &exists,
				`SELECT EXISTS(SELECT 1 FROM jobs WHERE task_id = $1 AND user_id = $2)`,
				taskID, userID); checkErr == nil && exists {
				err = models.ErrJobNotCancellable
			} else {
				err = models.ErrJobNotFound
			}
		}
		return nil, err
	}

	entry := &models.CreditTransaction{
		UserID:          userID,
		TransactionType: models.TransactionAdjustment,
		Amount:          job.CreditCost,
		Description:     "Refund for cancelled task " + taskID,
		RelatedModel:    sql.NullString{String: job.Model, Valid: job.Model != ""},
	}

	if _, err = r.adjustBalanceTx(ctx, tx.Tx, entry); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return &job, nil
}

func (r *PostgresRepository) GetJobByTaskID(ctx context.Context, taskID string) (*models.Job, error) {
	query := `SELECT * FROM jobs WHERE task_id = $1`

	var job models.Job
	err := r.db.GetContext(ctx, &job, query, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Job not found
		}
		return nil, err
	}

	return &job, nil
}

func (r *PostgresRepository) ListUserJobs(ctx context.Context, userID string, limit int) ([]models.Job, error) {
	query := `
		SELECT * FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, query, userID, limit)
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

// Model catalog repository methods

func (r *PostgresRepository) ListModels(ctx context.Context) ([]models.AIModel, error) {
	query := `SELECT * FROM ai_models ORDER BY name ASC`

	var catalog []models.AIModel
	err := r.db.SelectContext(ctx, &catalog, query)
	if err != nil {
		return nil, err
	}

	return catalog, nil
}

func (r *PostgresRepository) GetModelByName(ctx context.Context, name string) (*models.AIModel, error) {
	query := `SELECT * FROM ai_models WHERE name = $1`

	var model models.AIModel
	err := r.db.GetContext(ctx, &model, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Model not found
		}
		return nil, err
	}

	return &model, nil
}

func (r *PostgresRepository) RecordModelUsage(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ai_models SET usage_count = usage_count + 1, last_used_at = $1 WHERE name = $2`,
		time.Now().UTC(), name)
	return err
}

// Helpers

func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrJobNotFound
	}
	return nil
}
