package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sentinel-edge/chunker"
	"sentinel-edge/llm"
	"sentinel-edge/logger"
	"sentinel-edge/metrics"
	"sentinel-edge/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Step statuses reported to RunRequest.OnStage
const (
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
	StepFailed     = "failed"
)

// TemplateLoader returns the instruction text for a mode
type TemplateLoader interface {
	Load(mode models.AnalysisMode) (string, error)
}

// ContextRetriever returns reference passages for a chunk. It must not fail;
// unavailability is reported in-band.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, k int) []models.ReferenceMatch
}

// AnalysisService runs the per-document pipeline: load template, extract
// text, chunk, then retrieve, assemble and invoke for every chunk, and
// aggregate. Any failure ends the run without a result.
type AnalysisService struct {
	templates   TemplateLoader
	extractor   TextExtractor
	splitter    *chunker.Splitter
	retriever   ContextRetriever
	invoker     llm.Invoker
	policy      RetryPolicy
	topK        int
	concurrency int
}

// AnalysisServiceOption is a functional option for AnalysisService
type AnalysisServiceOption func(*AnalysisService)

// AnalysisWithTemplates sets the template loader
func AnalysisWithTemplates(t TemplateLoader) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.templates = t
	}
}

// AnalysisWithExtractor sets the text extractor
func AnalysisWithExtractor(e TextExtractor) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.extractor = e
	}
}

// AnalysisWithSplitter sets the chunker
func AnalysisWithSplitter(sp *chunker.Splitter) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.splitter = sp
	}
}

// AnalysisWithRetriever sets the knowledge-base retriever
func AnalysisWithRetriever(r ContextRetriever) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.retriever = r
	}
}

// AnalysisWithInvoker sets the model invoker
func AnalysisWithInvoker(inv llm.Invoker) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.invoker = inv
	}
}

// AnalysisWithRetryPolicy sets the validation retry policy
func AnalysisWithRetryPolicy(p RetryPolicy) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.policy = p
	}
}

// AnalysisWithTopK sets how many references are retrieved per chunk
func AnalysisWithTopK(k int) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.topK = k
	}
}

// AnalysisWithConcurrency sets how many chunks are processed at once.
// 1 keeps processing sequential.
func AnalysisWithConcurrency(n int) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.concurrency = n
	}
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(opts ...AnalysisServiceOption) *AnalysisService {
	s := &AnalysisService{
		policy:      DefaultRetryPolicy(),
		topK:        DefaultTopK,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.splitter == nil {
		s.splitter = chunker.Default()
	}
	if s.extractor == nil {
		s.extractor = NewPDFExtractor()
	}
	if s.retriever == nil {
		s.retriever = NewRetriever(nil)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// RunRequest describes one analysis run
type RunRequest struct {
	DocumentPath string
	Mode         models.AnalysisMode
	UserPrompt   string

	// OnStage and OnProgress are optional observers. OnProgress is called
	// after each chunk with the number of chunks done so far.
	OnStage    func(stage models.AnalysisStage, status string)
	OnProgress func(done, total int)
}

// RunAnalysis analyzes the document at path in the given mode
func (s *AnalysisService) RunAnalysis(ctx context.Context, path string, mode models.AnalysisMode) (*models.AggregatedResult, error) {
	return s.Run(ctx, RunRequest{DocumentPath: path, Mode: mode})
}

// Run executes the pipeline for req
func (s *AnalysisService) Run(ctx context.Context, req RunRequest) (result *models.AggregatedResult, err error) {
	start := time.Now()
	mode := req.Mode
	defer func() {
		metrics.ObserveRun(string(mode), start, err)
	}()

	log := logger.Log.WithFields(logrus.Fields{"mode": mode, "document": req.DocumentPath})

	stage := func(st models.AnalysisStage, status string) {
		if req.OnStage != nil {
			req.OnStage(st, status)
		}
	}
	fail := func(st models.AnalysisStage, chunk int, cause error) error {
		stage(st, StepFailed)
		return &RunError{Mode: mode, Stage: st, Chunk: chunk, Err: cause}
	}

	// 1. Load template
	stage(models.StageLoadTemplate, StepInProgress)
	if s.templates == nil || s.invoker == nil {
		return nil, fail(models.StageLoadTemplate, -1, fmt.Errorf("%w: templates and invoker are required", ErrConfiguration))
	}
	instruction, err := s.templates.Load(mode)
	if err != nil {
		return nil, fail(models.StageLoadTemplate, -1, err)
	}
	instruction = WithUserInstructions(instruction, req.UserPrompt)
	stage(models.StageLoadTemplate, StepCompleted)

	// 2. Extract text
	stage(models.StageExtractText, StepInProgress)
	text, err := s.extractor.ExtractText(ctx, req.DocumentPath)
	if err != nil {
		return nil, fail(models.StageExtractText, -1, err)
	}
	stage(models.StageExtractText, StepCompleted)

	// 3. Chunk
	stage(models.StageChunk, StepInProgress)
	texts := s.splitter.Split(text)
	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{Index: i, Text: t}
	}
	if len(chunks) == 0 {
		log.Warn("document produced no chunks")
	}
	log.Infof("document split into %d chunks", len(chunks))
	stage(models.StageChunk, StepCompleted)

	// 4. Retrieve, assemble and invoke per chunk
	stage(models.StageAnalyzeChunks, StepInProgress)
	results, err := s.analyzeChunks(ctx, req, instruction, chunks)
	if err != nil {
		var runErr *RunError
		if errors.As(err, &runErr) {
			stage(models.StageAnalyzeChunks, StepFailed)
			return nil, err
		}
		return nil, fail(models.StageAnalyzeChunks, -1, err)
	}
	stage(models.StageAnalyzeChunks, StepCompleted)

	// 5. Aggregate
	stage(models.StageAggregate, StepInProgress)
	agg := Aggregate(results, mode)
	stage(models.StageAggregate, StepCompleted)

	log.WithField("duration", time.Since(start).Round(time.Millisecond)).Info("analysis complete")
	return &agg, nil
}

func (s *AnalysisService) analyzeChunks(
	ctx context.Context,
	req RunRequest,
	instruction string,
	chunks []models.Chunk,
) ([]models.ChunkResult, error) {
	results := make([]models.ChunkResult, len(chunks))

	var mu sync.Mutex
	done := 0
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if req.OnProgress != nil {
			req.OnProgress(done, len(chunks))
		}
	}

	if s.concurrency == 1 {
		for _, c := range chunks {
			r, err := s.analyzeChunk(ctx, req.Mode, instruction, c)
			if err != nil {
				return nil, err
			}
			results[c.Index] = r
			report()
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, c := range chunks {
		g.Go(func() error {
			r, err := s.analyzeChunk(gctx, req.Mode, instruction, c)
			if err != nil {
				return err
			}
			// written by chunk index; no two goroutines share a slot
			results[c.Index] = r
			report()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *AnalysisService) analyzeChunk(
	ctx context.Context,
	mode models.AnalysisMode,
	instruction string,
	chunk models.Chunk,
) (models.ChunkResult, error) {
	refs := s.retriever.Retrieve(ctx, chunk.Text, s.topK)
	message := AssemblePrompt(instruction, FormatReferences(refs), chunk.Text)

	result, err := CallWithRetry(ctx, s.invoker, message, mode, s.policy)
	if err != nil {
		return nil, &RunError{Mode: mode, Stage: models.StageAnalyzeChunks, Chunk: chunk.Index, Err: err}
	}

	metrics.ChunksProcessed.WithLabelValues(string(mode)).Inc()
	return result, nil
}
