package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"sentinel-edge/models"

	"github.com/google/uuid"
)

// MemoryJobRepository keeps analysis jobs in process memory. Used when no
// database is configured; jobs are lost on restart.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.AnalysisJob
}

// NewMemoryJobRepository creates an empty in-memory job store
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[uuid.UUID]*models.AnalysisJob)}
}

func copyJob(j *models.AnalysisJob) *models.AnalysisJob {
	c := *j
	c.Steps = append(models.JobSteps(nil), j.Steps...)
	return &c
}

func (r *MemoryJobRepository) Create(ctx context.Context, job *models.AnalysisJob) error {
	now := time.Now()
	job.ID = uuid.New()
	job.CreatedAt = now
	job.UpdatedAt = now

	r.mu.Lock()
	r.jobs[job.ID] = copyJob(job)
	r.mu.Unlock()
	return nil
}

func (r *MemoryJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (r *MemoryJobRepository) update(id uuid.UUID, fn func(*models.AnalysisJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AnalysisJobStatus) error {
	return r.update(id, func(j *models.AnalysisJob) { j.Status = status })
}

func (r *MemoryJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, currentStep string, steps models.JobSteps) error {
	return r.update(id, func(j *models.AnalysisJob) {
		j.Progress = progress
		j.CurrentStep = &currentStep
		j.Steps = append(models.JobSteps(nil), steps...)
	})
}

func (r *MemoryJobRepository) Complete(ctx context.Context, id uuid.UUID, result *models.AggregatedResult, steps models.JobSteps) error {
	return r.update(id, func(j *models.AnalysisJob) {
		now := time.Now()
		res := *result
		j.Status = models.JobStatusCompleted
		j.Progress = 100
		j.Result = &res
		j.CurrentStep = nil
		j.Steps = append(models.JobSteps(nil), steps...)
		j.CompletedAt = &now
	})
}

func (r *MemoryJobRepository) Fail(ctx context.Context, id uuid.UUID, message string, steps models.JobSteps) error {
	return r.update(id, func(j *models.AnalysisJob) {
		now := time.Now()
		j.Status = models.JobStatusFailed
		j.ErrorMessage = &message
		j.Steps = append(models.JobSteps(nil), steps...)
		j.CompletedAt = &now
	})
}

func (r *MemoryJobRepository) ListCompleted(ctx context.Context, limit int) ([]*models.AnalysisJob, error) {
	r.mu.RLock()
	var jobs []*models.AnalysisJob
	for _, j := range r.jobs {
		if j.Status == models.JobStatusCompleted {
			jobs = append(jobs, copyJob(j))
		}
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CompletedAt.After(*jobs[b].CompletedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *MemoryJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

// MemoryFileRepository keeps file records in process memory
type MemoryFileRepository struct {
	mu    sync.RWMutex
	files map[uuid.UUID]models.File
}

// NewMemoryFileRepository creates an empty in-memory file store
func NewMemoryFileRepository() *MemoryFileRepository {
	return &MemoryFileRepository{files: make(map[uuid.UUID]models.File)}
}

func (r *MemoryFileRepository) Create(ctx context.Context, file *models.File) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	file.CreatedAt = time.Now()

	r.mu.Lock()
	r.files[file.ID] = *file
	r.mu.Unlock()
	return nil
}

func (r *MemoryFileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (r *MemoryFileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	delete(r.files, id)
	r.mu.Unlock()
	return nil
}
