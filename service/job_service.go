package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"sentinel-edge/logger"
	"sentinel-edge/metrics"
	"sentinel-edge/models"
	"sentinel-edge/repository"
	"sentinel-edge/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultHistoryLimit is the number of completed jobs History returns
const DefaultHistoryLimit = 20

// JobStore persists analysis jobs
type JobStore interface {
	Create(ctx context.Context, job *models.AnalysisJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.AnalysisJobStatus) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, currentStep string, steps models.JobSteps) error
	Complete(ctx context.Context, id uuid.UUID, result *models.AggregatedResult, steps models.JobSteps) error
	Fail(ctx context.Context, id uuid.UUID, message string, steps models.JobSteps) error
	ListCompleted(ctx context.Context, limit int) ([]*models.AnalysisJob, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FileStore persists uploaded file records
type FileStore interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.File, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Runner executes one analysis run
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*models.AggregatedResult, error)
}

// JobService tracks document analyses submitted over the API
type JobService struct {
	jobs         JobStore
	files        FileStore
	storage      storage.Storage
	runner       Runner
	historyLimit int
	tempDir      string
}

// JobServiceOption is a functional option for JobService
type JobServiceOption func(*JobService)

// JobWithStore sets the job store
func JobWithStore(store JobStore) JobServiceOption {
	return func(s *JobService) {
		s.jobs = store
	}
}

// JobWithFileStore sets the file record store
func JobWithFileStore(store FileStore) JobServiceOption {
	return func(s *JobService) {
		s.files = store
	}
}

// JobWithStorage sets the object storage for uploads
func JobWithStorage(st storage.Storage) JobServiceOption {
	return func(s *JobService) {
		s.storage = st
	}
}

// JobWithRunner sets the analysis runner
func JobWithRunner(r Runner) JobServiceOption {
	return func(s *JobService) {
		s.runner = r
	}
}

// JobWithHistoryLimit sets how many completed jobs History returns
func JobWithHistoryLimit(n int) JobServiceOption {
	return func(s *JobService) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// JobWithTempDir sets where documents are staged during a run
func JobWithTempDir(dir string) JobServiceOption {
	return func(s *JobService) {
		s.tempDir = dir
	}
}

// NewJobService creates a new job service
func NewJobService(opts ...JobServiceOption) *JobService {
	s := &JobService{historyLimit: DefaultHistoryLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *JobService) ready() error {
	if s.jobs == nil || s.files == nil || s.storage == nil || s.runner == nil {
		return fmt.Errorf("%w: job service is missing a dependency", ErrConfiguration)
	}
	return nil
}

// SubmitRequest is an uploaded document waiting for analysis
type SubmitRequest struct {
	Filename   string
	Mode       models.AnalysisMode
	UserPrompt string
	Size       int64
	Data       io.Reader
	UserID     *uuid.UUID
}

// Submit stores the upload and creates a pending job. Process must be called
// to run it.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (*models.AnalysisJob, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !IsPDF(req.Filename) {
		return nil, ErrUnsupportedFile
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}

	fileID := uuid.New()
	storagePath, err := s.storage.Upload(ctx, fileID, req.Filename, req.Data, req.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	file := &models.File{
		ID:          fileID,
		UserID:      req.UserID,
		Filename:    req.Filename,
		MimeType:    storage.ContentType(req.Filename),
		Size:        req.Size,
		StoragePath: storagePath,
	}
	if err := s.files.Create(ctx, file); err != nil {
		s.removeObject(ctx, storagePath)
		return nil, fmt.Errorf("failed to record file: %w", err)
	}

	job := &models.AnalysisJob{
		FileID:     &file.ID,
		Filename:   req.Filename,
		Mode:       req.Mode,
		UserPrompt: req.UserPrompt,
		Status:     models.JobStatusPending,
		Steps:      models.NewJobSteps(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.removeObject(ctx, storagePath)
		_ = s.files.Delete(ctx, file.ID)
		return nil, fmt.Errorf("failed to create analysis job: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"job_id": job.ID, "mode": job.Mode, "filename": job.Filename}).Info("analysis job submitted")
	return job, nil
}

// Process runs a submitted job to completion and records the outcome. The
// returned error is also stored on the job.
func (s *JobService) Process(ctx context.Context, jobID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return s.jobErr(err)
	}

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	log := logger.Log.WithFields(logrus.Fields{"job_id": job.ID, "mode": job.Mode})
	tracker := newProgressTracker(job.Steps)

	// every exit after this point leaves the job completed or failed
	fail := func(cause error) error {
		log.WithError(cause).Error("analysis job failed")
		if err := s.jobs.Fail(context.WithoutCancel(ctx), job.ID, cause.Error(), tracker.snapshot()); err != nil {
			log.WithError(err).Warn("failed to record job failure")
		}
		return cause
	}

	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusInProgress); err != nil {
		return fail(fmt.Errorf("failed to update job status: %w", err))
	}

	if job.FileID == nil {
		return fail(errors.New("job has no stored document"))
	}
	path, err := s.stage(ctx, *job.FileID)
	if err != nil {
		return fail(err)
	}
	defer os.Remove(path)

	update := func(progress int, step string) {
		if err := s.jobs.UpdateProgress(ctx, job.ID, progress, step, tracker.snapshot()); err != nil {
			log.WithError(err).Warn("failed to update job progress")
		}
	}

	result, err := s.runner.Run(ctx, RunRequest{
		DocumentPath: path,
		Mode:         job.Mode,
		UserPrompt:   job.UserPrompt,
		OnStage: func(stage models.AnalysisStage, status string) {
			progress, step := tracker.setStage(stage, status)
			update(progress, step)
		},
		OnProgress: func(done, total int) {
			progress, step := tracker.setProgress(done, total)
			update(progress, step)
		},
	})
	if err != nil {
		return fail(err)
	}

	if err := s.jobs.Complete(context.WithoutCancel(ctx), job.ID, result, tracker.snapshot()); err != nil {
		return fail(fmt.Errorf("failed to complete job: %w", err))
	}
	log.Info("analysis job completed")
	return nil
}

// stage copies a stored document to a temp file for the extractor
func (s *JobService) stage(ctx context.Context, fileID uuid.UUID) (string, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("failed to load file record: %w", err)
	}

	rc, err := s.storage.Download(ctx, file.StoragePath)
	if err != nil {
		return "", fmt.Errorf("failed to download document: %w", err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(s.tempDir, "sentinel-*"+filepath.Ext(file.Filename))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to stage document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to stage document: %w", err)
	}
	return tmp.Name(), nil
}

// Get returns a job by ID
func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("%w: job store not set", ErrConfiguration)
	}
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, s.jobErr(err)
	}
	return job, nil
}

// Report builds the report of a completed job
func (s *JobService) Report(ctx context.Context, id uuid.UUID) (*Report, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted || job.Result == nil {
		return nil, ErrJobNotComplete
	}
	return BuildReport(job), nil
}

// History returns the most recently completed jobs
func (s *JobService) History(ctx context.Context) ([]HistoryEntry, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("%w: job store not set", ErrConfiguration)
	}
	jobs, err := s.jobs.ListCompleted(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(jobs))
	for _, j := range jobs {
		entries = append(entries, NewHistoryEntry(j))
	}
	return entries, nil
}

// Delete removes a job together with its stored document
func (s *JobService) Delete(ctx context.Context, id uuid.UUID) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.jobs.Delete(ctx, id); err != nil {
		return s.jobErr(err)
	}

	if job.FileID != nil && s.files != nil {
		if file, err := s.files.GetByID(ctx, *job.FileID); err == nil {
			s.removeObject(ctx, file.StoragePath)
			if err := s.files.Delete(ctx, file.ID); err != nil {
				logger.Log.WithError(err).WithField("file_id", file.ID).Warn("failed to delete file record")
			}
		}
	}
	return nil
}

// OpenFile returns a stored upload and its record
func (s *JobService) OpenFile(ctx context.Context, fileID uuid.UUID) (*models.File, io.ReadCloser, error) {
	if err := s.ready(); err != nil {
		return nil, nil, err
	}
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, err
	}
	rc, err := s.storage.Download(ctx, file.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

func (s *JobService) removeObject(ctx context.Context, path string) {
	if s.storage == nil {
		return
	}
	if err := s.storage.Delete(ctx, path); err != nil {
		logger.Log.WithError(err).WithField("storage_path", path).Warn("failed to delete stored document")
	}
}

func (s *JobService) jobErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrJobNotFound
	}
	return err
}

// progressTracker folds stage and chunk callbacks into job steps and a
// percentage. Chunk analysis owns the percentage; other stages only move steps.
type progressTracker struct {
	mu       sync.Mutex
	steps    models.JobSteps
	progress int
	current  string
}

func newProgressTracker(steps models.JobSteps) *progressTracker {
	if len(steps) == 0 {
		steps = models.NewJobSteps()
	}
	return &progressTracker{steps: append(models.JobSteps(nil), steps...)}
}

func (t *progressTracker) setStage(stage models.AnalysisStage, status string) (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.steps {
		if t.steps[i].Name == stage {
			t.steps[i].Status = status
		}
	}
	if status == StepInProgress {
		t.current = string(stage)
	}
	return t.progress, t.current
}

func (t *progressTracker) setProgress(done, total int) (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if total > 0 {
		t.progress = done * 100 / total
	}
	return t.progress, t.current
}

func (t *progressTracker) snapshot() models.JobSteps {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append(models.JobSteps(nil), t.steps...)
}
