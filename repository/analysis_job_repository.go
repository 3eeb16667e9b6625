package repository

import (
	"context"
	"fmt"
	"time"

	"sentinel-edge/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalysisJobRepository handles database operations for analysis jobs
type AnalysisJobRepository struct {
	db *pgxpool.Pool
}

// NewAnalysisJobRepository creates a new analysis job repository
func NewAnalysisJobRepository(db *pgxpool.Pool) *AnalysisJobRepository {
	return &AnalysisJobRepository{db: db}
}

const jobColumns = `id, file_id, filename, mode, user_prompt, status, progress,
	current_step, steps, result, error_message, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.AnalysisJob, error) {
	job := &models.AnalysisJob{}
	var result []byte
	err := row.Scan(
		&job.ID,
		&job.FileID,
		&job.Filename,
		&job.Mode,
		&job.UserPrompt,
		&job.Status,
		&job.Progress,
		&job.CurrentStep,
		&job.Steps,
		&result,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if job.Steps == nil {
		job.Steps = make(models.JobSteps, 0)
	}
	if len(result) > 0 {
		job.Result, err = models.UnmarshalStored(result)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stored result: %w", err)
		}
	}
	return job, nil
}

// Create inserts a pending job
func (r *AnalysisJobRepository) Create(ctx context.Context, job *models.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs (
			file_id, filename, mode, user_prompt, status, progress, current_step, steps
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		job.FileID,
		job.Filename,
		job.Mode,
		job.UserPrompt,
		job.Status,
		job.Progress,
		job.CurrentStep,
		job.Steps,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

// GetByID retrieves a job by ID
func (r *AnalysisJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, notFound(err)
	}
	return job, nil
}

// UpdateStatus sets the job status
func (r *AnalysisJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AnalysisJobStatus) error {
	query := `UPDATE analysis_jobs SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, status, id)
	return err
}

// UpdateProgress records the running stage and completion percentage
func (r *AnalysisJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, currentStep string, steps models.JobSteps) error {
	query := `
		UPDATE analysis_jobs
		SET progress = $1, current_step = $2, steps = $3, updated_at = NOW()
		WHERE id = $4`
	_, err := r.db.Exec(ctx, query, progress, currentStep, steps, id)
	return err
}

// Complete stores the aggregated result and marks the job completed
func (r *AnalysisJobRepository) Complete(ctx context.Context, id uuid.UUID, result *models.AggregatedResult, steps models.JobSteps) error {
	data, err := result.MarshalStored()
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	query := `
		UPDATE analysis_jobs
		SET status = $1, progress = 100, result = $2, steps = $3,
			current_step = NULL, updated_at = NOW(), completed_at = $4
		WHERE id = $5`
	_, err = r.db.Exec(ctx, query, models.JobStatusCompleted, data, steps, time.Now(), id)
	return err
}

// Fail records the error message and marks the job failed
func (r *AnalysisJobRepository) Fail(ctx context.Context, id uuid.UUID, message string, steps models.JobSteps) error {
	query := `
		UPDATE analysis_jobs
		SET status = $1, error_message = $2, steps = $3, updated_at = NOW(), completed_at = $4
		WHERE id = $5`
	_, err := r.db.Exec(ctx, query, models.JobStatusFailed, message, steps, time.Now(), id)
	return err
}

// ListCompleted returns the most recently completed jobs first
func (r *AnalysisJobRepository) ListCompleted(ctx context.Context, limit int) ([]*models.AnalysisJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM analysis_jobs
		WHERE status = $1
		ORDER BY completed_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, models.JobStatusCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Delete removes a job row
func (r *AnalysisJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM analysis_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
