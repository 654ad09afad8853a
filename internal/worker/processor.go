// Package worker runs the background job processor: a polling loop that
// claims queued jobs, drives the model-call collaborator, and settles each
// job as completed or failed (with a compensating refund).
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pixelmint/pixelmint-server/internal/config"
	"github.com/pixelmint/pixelmint-server/internal/imagegen"
	"github.com/pixelmint/pixelmint-server/internal/models"
	"github.com/pixelmint/pixelmint-server/internal/repository"
	"github.com/pixelmint/pixelmint-server/internal/service"
	"github.com/pixelmint/pixelmint-server/internal/utils"
)

// genericFailureMessage is what users see on a failed job; the original
// cause is only logged server-side.
const genericFailureMessage = "Generation failed, please try again"

// Processor claims and processes queued jobs
type Processor struct {
	repo      repository.Repository
	generator imagegen.Generator
	credits   *service.CreditEngine
	logger    *utils.Logger
	cfg       config.WorkerConfig

	wg sync.WaitGroup
}

// NewProcessor creates a new job processor
func NewProcessor(
	repo repository.Repository,
	generator imagegen.Generator,
	credits *service.CreditEngine,
	logger *utils.Logger,
	cfg config.WorkerConfig,
) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Processor{
		repo:      repo,
		generator: generator,
		credits:   credits,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run polls the queue until ctx is cancelled. Each tick claims up to
// BatchSize jobs; claims happen one at a time in creation order, while the
// model calls run asynchronously so a slow call does not starve the queue.
// Cancellation stops the scheduler between batches and waits for in-flight
// jobs to settle.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Job processor started (poll %s, batch %d)", p.cfg.PollInterval, p.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Job processor stopping, waiting for in-flight jobs")
			p.wg.Wait()
			return
		case <-ticker.C:
			p.runBatch(ctx)
		}
	}
}

// runBatch claims and dispatches up to BatchSize jobs
func (p *Processor) runBatch(ctx context.Context) {
	for i := 0; i < p.cfg.BatchSize; i++ {
		processed, err := p.ProcessNext(ctx)
		if err != nil {
			p.logger.Error("Failed to claim job: %v", err)
			return
		}
		if !processed {
			return
		}
	}
}

// ProcessNext claims the oldest queued job and dispatches it. Returns false
// when the queue is empty. The claim itself is atomic at the storage layer,
// so overlapping invocations never double-process a job.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.repo.ClaimNextQueuedJob(ctx)
	if err != nil {
		return false, fmt.Errorf("error claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.process(ctx, job)
	}()

	return true, nil
}

// process runs a claimed job to a terminal state. All errors are absorbed
// here: they are recorded on the job and compensated via refund, never
// propagated to a caller.
func (p *Processor) process(ctx context.Context, job *models.Job) {
	callCtx := ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	if err := p.repo.UpdateJobProgress(ctx, job.ID, 25); err != nil {
		p.logger.Error("Failed to update progress for job %s: %v", job.TaskID, err)
	}

	req := imagegen.Request{
		Prompt: job.Prompt,
		Model:  job.Model,
	}
	if job.Type == models.JobTypeEdit && job.SourceImageID.Valid {
		req.SourceImage = job.SourceImageID.String
	}

	result, err := p.generator.Generate(callCtx, req)
	if err != nil {
		p.settleFailure(job, err)
		return
	}

	if err := p.repo.UpdateJobProgress(ctx, job.ID, 90); err != nil {
		p.logger.Error("Failed to update progress for job %s: %v", job.TaskID, err)
	}

	if err := p.repo.CompleteJob(ctx, job.ID, result.ImageID); err != nil {
		// The artifact exists but the job row could not be settled; fail the
		// job so the user is refunded rather than charged for a lost result.
		p.settleFailure(job, fmt.Errorf("error completing job: %w", err))
		return
	}

	if err := p.repo.RecordModelUsage(ctx, job.Model); err != nil {
		p.logger.Error("Failed to record usage for model %s: %v", job.Model, err)
	}

	p.logger.Info("Job %s completed (model %s)", job.TaskID, job.Model)
}

// settleFailure marks the job failed and refunds exactly what was deducted
// at admission. Settlement runs on a fresh context so a cancelled or
// timed-out job context cannot block the compensation.
func (p *Processor) settleFailure(job *models.Job, cause error) {
	p.logger.Error("Job %s failed: %v", job.TaskID, cause)

	settleCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.repo.FailJob(settleCtx, job.ID, genericFailureMessage); err != nil {
		p.logger.Error("Failed to mark job %s failed: %v", job.TaskID, err)
		return
	}

	_, err := p.credits.Refund(settleCtx, job.UserID, job.CreditCost,
		fmt.Sprintf("Refund for failed task %s", job.TaskID), job.Model)
	if err != nil {
		p.logger.Error("Failed to refund %d credits for job %s: %v", job.CreditCost, job.TaskID, err)
	}
}
