package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pixelmint/pixelmint-server/internal/models"
)

// Job admission: rate limit, then credit pre-check, then the atomic
// admission (concurrency cap + deduction + enqueue in one storage
// transaction). Admission-time errors are returned synchronously;
// processing-time errors only ever surface on the job record.

func (s *DefaultService) RequestGeneration(
	ctx context.Context,
	userID string,
	req models.GenerateImageRequest,
) (*models.JobResponse, error) {
	model, err := s.repo.GetModelByName(ctx, req.Model)
	if err != nil {
		return nil, fmt.Errorf("error looking up model: %w", err)
	}
	if model == nil {
		return nil, models.ErrUnknownModel
	}

	job := &models.Job{
		UserID:     userID,
		Type:       models.JobTypeGenerate,
		Prompt:     req.Prompt,
		Model:      model.Name,
		CreditCost: model.CreditCost,
	}

	return s.admit(ctx, job)
}

func (s *DefaultService) RequestEdit(
	ctx context.Context,
	userID string,
	req models.EditImageRequest,
) (*models.JobResponse, error) {
	model, err := s.repo.GetModelByName(ctx, req.Model)
	if err != nil {
		return nil, fmt.Errorf("error looking up model: %w", err)
	}
	if model == nil {
		return nil, models.ErrUnknownModel
	}

	job := &models.Job{
		UserID:        userID,
		Type:          models.JobTypeEdit,
		Prompt:        req.Prompt,
		Model:         model.Name,
		CreditCost:    s.cfg.EditCost,
		SourceImageID: sql.NullString{String: req.ImageID, Valid: true},
	}

	return s.admit(ctx, job)
}

func (s *DefaultService) admit(ctx context.Context, job *models.Job) (*models.JobResponse, error) {
	allowed, err := s.limiter.Allow(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("error checking rate limit: %w", err)
	}
	if !allowed {
		return nil, models.ErrRateLimited
	}

	// Fail fast before the admission transaction; the transaction itself
	// still rejects a racing over-spend.
	sufficient, available, err := s.credits.HasSufficientCredits(ctx, job.UserID, job.CreditCost)
	if err != nil {
		return nil, err
	}
	if !sufficient {
		return nil, &models.InsufficientCreditsError{Required: job.CreditCost, Available: available}
	}

	newBalance, err := s.repo.AdmitJob(ctx, job, s.cfg.MaxConcurrentJobs)
	if err != nil {
		return nil, err
	}

	resp := jobResponse(job)
	resp.FinalCreditBalance = newBalance
	return resp, nil
}

func (s *DefaultService) GetJob(ctx context.Context, userID, taskID string) (*models.JobResponse, error) {
	job, err := s.repo.GetJobByTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("error getting job: %w", err)
	}
	if job == nil || job.UserID != userID {
		return nil, models.ErrJobNotFound
	}

	return jobResponse(job), nil
}

func (s *DefaultService) ListJobs(ctx context.Context, userID string) (*models.JobListResponse, error) {
	jobs, err := s.repo.ListUserJobs(ctx, userID, 50)
	if err != nil {
		return nil, fmt.Errorf("error listing jobs: %w", err)
	}

	responses := make([]models.JobResponse, 0, len(jobs))
	for i := range jobs {
		responses = append(responses, *jobResponse(&jobs[i]))
	}

	return &models.JobListResponse{
		Status: "success",
		Jobs:   responses,
	}, nil
}

func (s *DefaultService) CancelJob(ctx context.Context, userID, taskID string) (*models.JobResponse, error) {
	job, err := s.repo.CancelJob(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}

	balance, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error reading balance after cancel: %w", err)
	}

	resp := jobResponse(job)
	resp.FinalCreditBalance = balance
	return resp, nil
}

func jobResponse(job *models.Job) *models.JobResponse {
	resp := &models.JobResponse{
		Status:    "success",
		TaskID:    job.TaskID,
		JobStatus: job.Status,
		Progress:  job.Progress,
		Type:      job.Type,
		Model:     job.Model,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
	if job.ImageID.Valid {
		resp.ImageID = job.ImageID.String
	}
	if job.ErrorMessage.Valid {
		resp.ErrorMessage = job.ErrorMessage.String
	}
	if job.CompletedAt.Valid {
		resp.CompletedAt = job.CompletedAt.Time.Format(time.RFC3339)
	}
	return resp
}
