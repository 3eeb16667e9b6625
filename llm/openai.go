package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	defaultMaxTokens   = 2048
)

// OpenAIInvoker talks to OpenAI or any server exposing the same chat API
// (llama.cpp, vLLM, LM Studio)
type OpenAIInvoker struct {
	client      *openai.Client
	model       string
	temperature float32
	jsonMode    bool
}

// OpenAIConfig configures an OpenAIInvoker
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	// JSONMode requests a JSON object response format
	JSONMode bool
}

// NewOpenAIInvoker creates an invoker. An empty BaseURL targets api.openai.com.
func NewOpenAIInvoker(cfg OpenAIConfig) *OpenAIInvoker {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIInvoker{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		jsonMode:    cfg.JSONMode,
	}
}

// Invoke implements Invoker
func (o *OpenAIInvoker) Invoke(ctx context.Context, message string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
	}
	if o.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// reasoning models reject max_tokens
	if strings.HasPrefix(o.model, "o1") || strings.HasPrefix(o.model, "o3") || strings.HasPrefix(o.model, "o4") || strings.HasPrefix(o.model, "gpt-5") {
		req.MaxCompletionTokens = defaultMaxTokens
	} else {
		req.MaxTokens = defaultMaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", transportError(ProviderOpenAI, fmt.Errorf("failed to create chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
