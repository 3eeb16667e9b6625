package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentinel-edge/llm"
	"sentinel-edge/logger"
	"sentinel-edge/metrics"
	"sentinel-edge/models"

	"github.com/sony/gobreaker"
)

const (
	DefaultTopK            = 3
	unknownCategory        = "Unknown Contract Type"
	defaultBreakerFailures = 5
)

// ReferenceSearcher is the knowledge-base lookup: top k passages for a query,
// most relevant first
type ReferenceSearcher interface {
	Search(ctx context.Context, query string, k int) ([]models.ReferenceMatch, error)
}

// VectorSearcher finds the passages nearest to an embedding
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, embedding []float32, k int) ([]models.ReferenceMatch, error)
}

// EmbeddingSearcher embeds the query and searches a vector store with it
type EmbeddingSearcher struct {
	embedder llm.Embedder
	store    VectorSearcher
}

// NewEmbeddingSearcher creates a ReferenceSearcher over a vector store
func NewEmbeddingSearcher(embedder llm.Embedder, store VectorSearcher) *EmbeddingSearcher {
	return &EmbeddingSearcher{embedder: embedder, store: store}
}

// Search implements ReferenceSearcher
func (s *EmbeddingSearcher) Search(ctx context.Context, query string, k int) ([]models.ReferenceMatch, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.store.SearchSimilar(ctx, embedding, k)
}

// Retriever wraps a ReferenceSearcher and never fails: when the knowledge base
// is missing or erroring it returns the single unavailable sentinel instead.
// A circuit breaker stops hammering a backend that keeps failing.
type Retriever struct {
	searcher ReferenceSearcher
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
}

// RetrieverOption configures a Retriever
type RetrieverOption func(*retrieverSettings)

type retrieverSettings struct {
	timeout      time.Duration
	maxFailures  uint32
	openDuration time.Duration
}

// RetrieverWithTimeout bounds each search call
func RetrieverWithTimeout(d time.Duration) RetrieverOption {
	return func(s *retrieverSettings) {
		s.timeout = d
	}
}

// RetrieverWithBreaker sets how many consecutive failures open the breaker and
// how long it stays open
func RetrieverWithBreaker(maxFailures uint32, openDuration time.Duration) RetrieverOption {
	return func(s *retrieverSettings) {
		s.maxFailures = maxFailures
		s.openDuration = openDuration
	}
}

// NewRetriever creates a Retriever. A nil searcher means there is no
// knowledge base and every call returns the sentinel.
func NewRetriever(searcher ReferenceSearcher, opts ...RetrieverOption) *Retriever {
	settings := retrieverSettings{
		timeout:      10 * time.Second,
		maxFailures:  defaultBreakerFailures,
		openDuration: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "knowledge-base",
		Timeout: settings.openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.maxFailures
		},
		// a caller giving up says nothing about the knowledge base
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Retriever{
		searcher: searcher,
		breaker:  breaker,
		timeout:  settings.timeout,
	}
}

// Ready reports whether the knowledge base is configured and not tripped
func (r *Retriever) Ready() bool {
	return r.searcher != nil && r.breaker.State() != gobreaker.StateOpen
}

// Retrieve returns at most k references for query
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) []models.ReferenceMatch {
	if k <= 0 {
		k = DefaultTopK
	}
	if r.searcher == nil {
		return r.unavailable(fmt.Errorf("knowledge base not configured"))
	}

	searchCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.searcher.Search(searchCtx, query, k)
	})
	if err != nil {
		return r.unavailable(err)
	}

	matches, _ := out.([]models.ReferenceMatch)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func (r *Retriever) unavailable(err error) []models.ReferenceMatch {
	metrics.RetrieverFallbacks.Inc()
	logger.Log.Warnf("knowledge base unavailable: %v. Continuing with degraded context.", err)
	return []models.ReferenceMatch{models.UnavailableReference()}
}

// FormatReferences renders matches for prompt assembly as
// "[Reference Category: X]\n<content>". The sentinel is passed through as is.
func FormatReferences(matches []models.ReferenceMatch) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Unavailable {
			out = append(out, m.Content)
			continue
		}
		category := m.Category
		if category == "" {
			category = unknownCategory
		}
		out = append(out, fmt.Sprintf("[Reference Category: %s]\n%s", category, m.Content))
	}
	return out
}
