// Package llm holds the language-model clients the analysis pipeline talks to.
// Every client is a plain text-in, text-out call: transport failures are
// returned to the caller and never retried here.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Invoker sends one fully assembled prompt and returns the complete response
type Invoker interface {
	Invoke(ctx context.Context, message string) (string, error)
}

// InvokerFunc adapts a function to Invoker
type InvokerFunc func(ctx context.Context, message string) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// Embedder turns a query into a vector for knowledge-base search
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider names accepted by configuration
const (
	ProviderGemini      = "gemini"
	ProviderOpenAI      = "openai"
	ProviderAnythingLLM = "anythingllm"
)

var (
	ErrEmptyResponse   = errors.New("model returned empty content")
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// TransportError marks a failure to reach the model or to read its reply, as
// opposed to a reply that arrived but is unusable
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportError(provider string, err error) error {
	return &TransportError{Provider: provider, Err: err}
}

// ValidateProvider normalizes a provider name
func ValidateProvider(name string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(name))
	switch p {
	case ProviderGemini, ProviderOpenAI, ProviderAnythingLLM:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}
