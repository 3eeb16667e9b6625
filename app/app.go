// Package app builds the analysis components from configuration. It is shared
// by the server and the command-line tools.
package app

import (
	"context"
	"fmt"

	"sentinel-edge/chunker"
	"sentinel-edge/config"
	"sentinel-edge/llm"
	"sentinel-edge/logger"
	"sentinel-edge/prompts"
	"sentinel-edge/repository"
	"sentinel-edge/service"

	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/api/option"
)

// Components holds the long-lived clients behind an AnalysisService
type Components struct {
	DB        *pgxpool.Pool
	Gemini    *genai.Client
	Invoker   llm.Invoker
	Retriever *service.Retriever
	Analysis  *service.AnalysisService
}

// Close releases every client
func (c *Components) Close() {
	if c.Gemini != nil {
		c.Gemini.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}

// Build connects to the configured backends and assembles the pipeline.
// Without a database URL the pool stays nil.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	if cfg.Database.URL != "" {
		db, err := InitPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		c.DB = db
	}

	if cfg.LLM.Provider == llm.ProviderGemini || cfg.Retrieval.Backend == "pgvector" {
		client, err := InitGemini(ctx, cfg.LLM.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini: %w", err)
		}
		c.Gemini = client
	}

	invoker, err := NewInvoker(cfg.LLM, c.Gemini)
	if err != nil {
		return nil, err
	}
	c.Invoker = invoker

	searcher, err := NewSearcher(cfg, c.DB, c.Gemini)
	if err != nil {
		return nil, err
	}
	c.Retriever = service.NewRetriever(searcher,
		service.RetrieverWithTimeout(cfg.Retrieval.Timeout),
		service.RetrieverWithBreaker(cfg.Retrieval.BreakerFailures, cfg.Retrieval.BreakerOpen),
	)

	splitter, err := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap, cfg.Chunker.Separators...)
	if err != nil {
		return nil, err
	}

	templates := service.NewTemplateStoreFS(prompts.FS)
	if cfg.Analysis.PromptsDir != "" {
		templates = service.NewTemplateStore(cfg.Analysis.PromptsDir)
	}

	c.Analysis = service.NewAnalysisService(
		service.AnalysisWithTemplates(templates),
		service.AnalysisWithExtractor(service.NewPDFExtractor()),
		service.AnalysisWithSplitter(splitter),
		service.AnalysisWithRetriever(c.Retriever),
		service.AnalysisWithInvoker(c.Invoker),
		service.AnalysisWithRetryPolicy(service.RetryPolicy{
			MaxAttempts:          cfg.Analysis.MaxAttempts,
			RetryTransportErrors: cfg.Analysis.RetryTransportErrors,
		}),
		service.AnalysisWithTopK(cfg.Retrieval.TopK),
		service.AnalysisWithConcurrency(cfg.Analysis.Concurrency),
	)

	ok = true
	return c, nil
}

// NewInvoker creates the model client for the configured provider
func NewInvoker(cfg config.LLMConfig, gemini *genai.Client) (llm.Invoker, error) {
	provider, err := llm.ValidateProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case llm.ProviderOpenAI:
		return llm.NewOpenAIInvoker(llm.OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			JSONMode:    true,
		}), nil
	case llm.ProviderAnythingLLM:
		return llm.NewAnythingLLMInvoker(llm.AnythingLLMConfig{
			BaseURL:   cfg.BaseURL,
			Workspace: cfg.Workspace,
			APIKey:    cfg.APIKey,
			Timeout:   cfg.Timeout,
		}), nil
	default:
		if gemini == nil {
			return nil, fmt.Errorf("%w: gemini client not initialized", service.ErrConfiguration)
		}
		opts := []llm.GeminiOption{llm.GeminiWithTemperature(cfg.Temperature)}
		if cfg.Model != "" {
			opts = append(opts, llm.GeminiWithModel(cfg.Model))
		}
		return llm.NewGeminiInvoker(gemini, opts...), nil
	}
}

// NewSearcher creates the knowledge-base searcher. A nil searcher with a nil
// error means retrieval is disabled.
func NewSearcher(cfg *config.Config, db *pgxpool.Pool, gemini *genai.Client) (service.ReferenceSearcher, error) {
	switch cfg.Retrieval.Backend {
	case "pgvector":
		if db == nil {
			logger.Log.Warn("pgvector retrieval configured without a database, knowledge base disabled")
			return nil, nil
		}
		embedder := llm.NewGeminiEmbedder(gemini, cfg.LLM.EmbeddingModel)
		return service.NewEmbeddingSearcher(embedder, repository.NewReferenceRepository(db)), nil
	case "weaviate":
		repo, err := repository.NewWeaviateReferenceRepository(repository.WeaviateConfig{
			Host:   cfg.Retrieval.WeaviateHost,
			Scheme: cfg.Retrieval.WeaviateScheme,
			APIKey: cfg.Retrieval.WeaviateAPIKey,
			Class:  cfg.Retrieval.WeaviateClass,
		})
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, nil
	}
}

// InitPostgres opens a pool and makes sure pgvector is available
func InitPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		logger.Log.Warnf("failed to create pgvector extension: %v", err)
	}

	logger.Log.Info("Postgres connection established")
	return pool, nil
}

// InitGemini creates a Gemini client
func InitGemini(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		logger.Log.Warn("GEMINI_API_KEY not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Gemini client initialized")
	return client, nil
}
