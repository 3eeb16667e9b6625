package service

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"sentinel-edge/models"
	"sentinel-edge/repository"
	"sentinel-edge/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	result  *models.AggregatedResult
	err     error
	req     RunRequest
	content string
}

func (r *fakeRunner) Run(ctx context.Context, req RunRequest) (*models.AggregatedResult, error) {
	r.req = req
	data, err := os.ReadFile(req.DocumentPath)
	if err != nil {
		return nil, err
	}
	r.content = string(data)

	for _, st := range models.AnalysisStages() {
		req.OnStage(st, StepInProgress)
		if st == models.StageAnalyzeChunks {
			req.OnProgress(1, 2)
			req.OnProgress(2, 2)
			if r.err != nil {
				req.OnStage(st, StepFailed)
				return nil, r.err
			}
		}
		req.OnStage(st, StepCompleted)
	}
	return r.result, nil
}

type jobFixture struct {
	svc     *JobService
	jobs    *repository.MemoryJobRepository
	files   *repository.MemoryFileRepository
	storage *storage.LocalStorage
	runner  *fakeRunner
	tmp     string
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &jobFixture{
		jobs:    repository.NewMemoryJobRepository(),
		files:   repository.NewMemoryFileRepository(),
		storage: st,
		runner:  &fakeRunner{},
		tmp:     t.TempDir(),
	}
	f.svc = NewJobService(
		JobWithStore(f.jobs),
		JobWithFileStore(f.files),
		JobWithStorage(f.storage),
		JobWithRunner(f.runner),
		JobWithTempDir(f.tmp),
	)
	return f
}

func (f *jobFixture) submit(t *testing.T, mode models.AnalysisMode) *models.AnalysisJob {
	t.Helper()
	job, err := f.svc.Submit(context.Background(), SubmitRequest{
		Filename:   "contract.pdf",
		Mode:       mode,
		UserPrompt: "focus on termination",
		Size:       8,
		Data:       strings.NewReader("%PDF-1.4"),
	})
	require.NoError(t, err)
	return job
}

func TestJobService_SubmitValidation(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitRequest{Filename: "notes.docx", Mode: models.ModePIIMasking, Data: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = f.svc.Submit(ctx, SubmitRequest{Filename: "a.pdf", Mode: "summarize", Data: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUnknownMode)

	history, err := f.svc.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestJobService_SubmitCreatesPendingJob(t *testing.T) {
	f := newJobFixture(t)
	job := f.submit(t, models.ModeLegalRiskScoring)

	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	require.NotNil(t, job.FileID)
	assert.Len(t, job.Steps, len(models.AnalysisStages()))

	file, err := f.files.GetByID(context.Background(), *job.FileID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.MimeType)

	_, rc, err := f.svc.OpenFile(context.Background(), file.ID)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestJobService_ProcessCompletes(t *testing.T) {
	f := newJobFixture(t)
	f.runner.result = &models.AggregatedResult{
		Mode:     models.ModeLegalRiskScoring,
		Score:    40,
		Findings: []models.Finding{{"risk_level": "LOW"}, {"risk_level": "HIGH"}},
	}
	job := f.submit(t, models.ModeLegalRiskScoring)
	ctx := context.Background()

	require.NoError(t, f.svc.Process(ctx, job.ID))

	assert.Equal(t, models.ModeLegalRiskScoring, f.runner.req.Mode)
	assert.Equal(t, "focus on termination", f.runner.req.UserPrompt)
	assert.Equal(t, "%PDF-1.4", f.runner.content)

	// staged document is removed
	entries, err := os.ReadDir(f.tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)

	got, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	for _, st := range got.Steps {
		assert.Equal(t, StepCompleted, st.Status, st.Name)
	}

	report, err := f.svc.Report(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, report.Score)
	assert.Equal(t, models.RiskHigh, report.Findings[0].RiskLevel())
	assert.Equal(t, models.RiskSummary{High: 1, Low: 1}, report.Summary)

	history, err := f.svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].FindingCount)
	assert.Equal(t, 40, history[0].Score)
}

func TestJobService_ProcessFailure(t *testing.T) {
	f := newJobFixture(t)
	f.runner.err = &RunError{Mode: models.ModePIIMasking, Stage: models.StageAnalyzeChunks, Chunk: 1, Err: errors.New("model offline")}
	job := f.submit(t, models.ModePIIMasking)
	ctx := context.Background()

	err := f.svc.Process(ctx, job.ID)
	require.Error(t, err)

	got, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "model offline")

	for _, st := range got.Steps {
		if st.Name == models.StageAnalyzeChunks {
			assert.Equal(t, StepFailed, st.Status)
		}
	}

	_, err = f.svc.Report(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotComplete)

	entries, _ := os.ReadDir(f.tmp)
	assert.Empty(t, entries)
}

// brokenJobStore fails the named write and passes everything else through
type brokenJobStore struct {
	*repository.MemoryJobRepository
	statusErr   error
	completeErr error
}

func (b *brokenJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AnalysisJobStatus) error {
	if b.statusErr != nil {
		return b.statusErr
	}
	return b.MemoryJobRepository.UpdateStatus(ctx, id, status)
}

func (b *brokenJobStore) Complete(ctx context.Context, id uuid.UUID, result *models.AggregatedResult, steps models.JobSteps) error {
	if b.completeErr != nil {
		return b.completeErr
	}
	return b.MemoryJobRepository.Complete(ctx, id, result, steps)
}

func TestJobService_ProcessStoreWriteFailureFailsJob(t *testing.T) {
	tests := []struct {
		name  string
		store func(*repository.MemoryJobRepository) *brokenJobStore
		want  string
	}{
		{
			name: "status update",
			store: func(m *repository.MemoryJobRepository) *brokenJobStore {
				return &brokenJobStore{MemoryJobRepository: m, statusErr: errors.New("connection reset")}
			},
			want: "failed to update job status: connection reset",
		},
		{
			name: "completion",
			store: func(m *repository.MemoryJobRepository) *brokenJobStore {
				return &brokenJobStore{MemoryJobRepository: m, completeErr: errors.New("disk full")}
			},
			want: "failed to complete job: disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newJobFixture(t)
			f.runner.result = &models.AggregatedResult{Mode: models.ModeVulnerabilityDetection, Findings: []models.Finding{}}
			f.svc = NewJobService(
				JobWithStore(tt.store(f.jobs)),
				JobWithFileStore(f.files),
				JobWithStorage(f.storage),
				JobWithRunner(f.runner),
				JobWithTempDir(f.tmp),
			)
			job := f.submit(t, models.ModeVulnerabilityDetection)
			ctx := context.Background()

			err := f.svc.Process(ctx, job.ID)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			got, err := f.jobs.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusFailed, got.Status)
			require.NotNil(t, got.ErrorMessage)
			assert.Equal(t, tt.want, *got.ErrorMessage)
		})
	}
}

func TestJobService_ProcessMissingDocument(t *testing.T) {
	f := newJobFixture(t)
	job := f.submit(t, models.ModePIIMasking)
	file, err := f.files.GetByID(context.Background(), *job.FileID)
	require.NoError(t, err)
	require.NoError(t, f.storage.Delete(context.Background(), file.StoragePath))

	err = f.svc.Process(context.Background(), job.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, _ := f.svc.Get(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
}

func TestJobService_ReportPending(t *testing.T) {
	f := newJobFixture(t)
	job := f.submit(t, models.ModeVulnerabilityDetection)

	_, err := f.svc.Report(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobNotComplete)
}

func TestJobService_UnknownJob(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := f.svc.Get(ctx, id)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = f.svc.Report(ctx, id)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, id), ErrJobNotFound)
	assert.ErrorIs(t, f.svc.Process(ctx, id), ErrJobNotFound)
}

func TestJobService_DeleteRemovesDocument(t *testing.T) {
	f := newJobFixture(t)
	job := f.submit(t, models.ModePIIMasking)
	ctx := context.Background()
	file, err := f.files.GetByID(ctx, *job.FileID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, job.ID))

	_, err = f.svc.Get(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = f.files.GetByID(ctx, file.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.storage.Download(ctx, file.StoragePath)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobService_MissingDependencies(t *testing.T) {
	svc := NewJobService()
	_, err := svc.Submit(context.Background(), SubmitRequest{Filename: "a.pdf", Mode: models.ModePIIMasking})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestProgressTracker(t *testing.T) {
	tr := newProgressTracker(nil)

	p, step := tr.setStage(models.StageChunk, StepInProgress)
	assert.Equal(t, 0, p)
	assert.Equal(t, "chunk", step)

	p, _ = tr.setProgress(1, 3)
	assert.Equal(t, 33, p)
	p, _ = tr.setProgress(0, 0)
	assert.Equal(t, 33, p)

	steps := tr.snapshot()
	steps[0].Status = "mutated"
	assert.Equal(t, "pending", tr.snapshot()[0].Status)
}
