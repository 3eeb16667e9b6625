package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"sentinel-edge/app"
	"sentinel-edge/chunker"
	"sentinel-edge/config"
	"sentinel-edge/llm"
	"sentinel-edge/logger"
	"sentinel-edge/models"
	"sentinel-edge/repository"
	"sentinel-edge/service"

	"golang.org/x/time/rate"
)

const insertBatchSize = 50

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	dir := flag.String("dir", "./reference_docs", "directory of reference PDFs and text files")
	embedRate := flag.Float64("rate", 5, "embedding requests per second")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		logger.Log.Fatalf("Failed to initialize logger: %v", err)
	}
	if cfg.Database.URL == "" {
		logger.Log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := app.InitPostgres(ctx, cfg.Database.URL)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	gemini, err := app.InitGemini(ctx, cfg.LLM.GeminiAPIKey)
	if err != nil {
		logger.Log.Fatalf("Failed to initialize Gemini: %v", err)
	}
	defer gemini.Close()

	splitter, err := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap, cfg.Chunker.Separators...)
	if err != nil {
		logger.Log.Fatalf("Invalid chunker settings: %v", err)
	}

	b := &builder{
		extractor: service.NewFileExtractor(),
		splitter:  splitter,
		embedder:  llm.NewGeminiEmbedder(gemini, cfg.LLM.EmbeddingModel).ForDocuments(),
		repo:      repository.NewReferenceRepository(pool),
		limiter:   rate.NewLimiter(rate.Limit(*embedRate), 1),
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		logger.Log.Fatalf("Failed to read directory: %v", err)
	}

	var docs, passages int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(*dir, entry.Name())
		n, err := b.ingest(ctx, path)
		if err != nil {
			logger.Log.Errorf("Skipping %s: %v", entry.Name(), err)
			continue
		}
		docs++
		passages += n
	}

	total, err := b.repo.Count(ctx)
	if err != nil {
		logger.Log.Warnf("Failed to count passages: %v", err)
	}
	logger.Log.WithFields(map[string]interface{}{
		"documents": docs,
		"passages":  passages,
		"total":     total,
	}).Info("Knowledge base build complete")
}

type builder struct {
	extractor service.TextExtractor
	splitter  *chunker.Splitter
	embedder  llm.Embedder
	repo      *repository.ReferenceRepository
	limiter   *rate.Limiter
}

// ingest replaces every passage of one source document
func (b *builder) ingest(ctx context.Context, path string) (int, error) {
	source := filepath.Base(path)
	text, err := b.extractor.ExtractText(ctx, path)
	if err != nil {
		return 0, err
	}
	chunks := b.splitter.Split(text)
	if len(chunks) == 0 {
		logger.Log.Warnf("%s has no text", source)
		return 0, nil
	}

	removed, err := b.repo.DeleteBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Log.Infof("%s: replacing %d existing passages", source, removed)
	}

	category := categoryFromFilename(source)
	batch := make([]models.ReferencePassage, 0, insertBatchSize)
	for i, chunk := range chunks {
		if err := b.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		embedding, err := b.embedder.Embed(ctx, chunk)
		if err != nil {
			return 0, err
		}
		batch = append(batch, models.ReferencePassage{
			Category:       category,
			SourceDocument: source,
			ChunkIndex:     i,
			Content:        chunk,
			Embedding:      embedding,
			Metadata:       map[string]interface{}{"path": path},
		})
		if len(batch) == insertBatchSize {
			if err := b.repo.InsertPassages(ctx, batch); err != nil {
				return 0, err
			}
			batch = batch[:0]
		}
	}
	if err := b.repo.InsertPassages(ctx, batch); err != nil {
		return 0, err
	}

	logger.Log.Infof("%s: %d passages (%s)", source, len(chunks), category)
	return len(chunks), nil
}

// categoryFromFilename takes the last non-numeric segment of the file stem,
// e.g. "ACME_2019-EX-10-DISTRIBUTOR AGREEMENT.pdf" becomes "Distributor Agreement"
func categoryFromFilename(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	segments := strings.FieldsFunc(stem, func(r rune) bool { return r == '-' || r == '_' })
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.TrimSpace(segments[i])
		if seg == "" || strings.IndexFunc(seg, unicode.IsLetter) < 0 {
			continue
		}
		return titleCase(seg)
	}
	return "Unknown Contract Type"
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
