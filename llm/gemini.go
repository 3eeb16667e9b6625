package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"sentinel-edge/logger"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
)

const (
	DefaultGeminiModel     = "gemini-1.5-flash"
	DefaultEmbeddingModel  = "text-embedding-004"
	EmbeddingDimensions    = 768
	defaultGeminiMaxPrompt = 30000
)

// GeminiInvoker calls a Gemini model and asks for a JSON response
type GeminiInvoker struct {
	client      *genai.Client
	model       string
	temperature float32
	maxPrompt   int
}

// GeminiOption configures a GeminiInvoker
type GeminiOption func(*GeminiInvoker)

// GeminiWithModel sets the model name
func GeminiWithModel(name string) GeminiOption {
	return func(g *GeminiInvoker) {
		if name != "" {
			g.model = name
		}
	}
}

// GeminiWithTemperature sets the sampling temperature
func GeminiWithTemperature(t float32) GeminiOption {
	return func(g *GeminiInvoker) {
		g.temperature = t
	}
}

// GeminiWithMaxPromptChars truncates longer prompts before sending
func GeminiWithMaxPromptChars(n int) GeminiOption {
	return func(g *GeminiInvoker) {
		g.maxPrompt = n
	}
}

// NewGeminiInvoker creates an invoker on an existing client
func NewGeminiInvoker(client *genai.Client, opts ...GeminiOption) *GeminiInvoker {
	g := &GeminiInvoker{
		client:      client,
		model:       DefaultGeminiModel,
		temperature: 0.1,
		maxPrompt:   defaultGeminiMaxPrompt,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Invoke implements Invoker
func (g *GeminiInvoker) Invoke(ctx context.Context, message string) (string, error) {
	if g.client == nil {
		return "", transportError(ProviderGemini, fmt.Errorf("gemini client not set"))
	}

	if kept, dropped := truncateRunes(message, g.maxPrompt); dropped > 0 {
		logger.Log.WithFields(logrus.Fields{
			"kept_chars":    g.maxPrompt,
			"dropped_chars": dropped,
		}).Warn("prompt too long, truncating")
		message = kept
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(message))
	if err != nil {
		return "", transportError(ProviderGemini, err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("gemini blocked prompt: %v", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var b strings.Builder
	for i, candidate := range resp.Candidates {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			logger.Log.Warnf("candidate %d finished with reason: %v", i, candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}

	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// GeminiEmbedder produces normalized retrieval embeddings
type GeminiEmbedder struct {
	client   *genai.Client
	model    string
	taskType genai.TaskType
}

// NewGeminiEmbedder creates a query embedder. An empty model name uses
// DefaultEmbeddingModel.
func NewGeminiEmbedder(client *genai.Client, model string) *GeminiEmbedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &GeminiEmbedder{client: client, model: model, taskType: genai.TaskTypeRetrievalQuery}
}

// ForDocuments returns a copy that embeds passages for storage instead of queries
func (e *GeminiEmbedder) ForDocuments() *GeminiEmbedder {
	c := *e
	c.taskType = genai.TaskTypeRetrievalDocument
	return &c
}

// Embed implements Embedder
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.client == nil {
		return nil, fmt.Errorf("gemini client not set")
	}

	em := e.client.EmbeddingModel(e.model)
	em.TaskType = e.taskType

	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	return Normalize(res.Embedding.Values), nil
}

// Normalize scales v to unit length in place and returns it
func Normalize(v []float32) []float32 {
	norm := 0.0
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / norm)
		}
	}
	return v
}

// truncateRunes keeps the first n characters of s and reports how many were
// cut. n <= 0 disables truncation.
func truncateRunes(s string, n int) (string, int) {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s, 0
	}
	i, count := 0, 0
	for i = range s {
		if count == n {
			break
		}
		count++
	}
	return s[:i], utf8.RuneCountInString(s[i:])
}
