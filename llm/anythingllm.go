package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAnythingLLMURL       = "http://localhost:3001"
	DefaultAnythingLLMWorkspace = "sentinel"
)

// AnythingLLMInvoker sends prompts to an AnythingLLM workspace chat endpoint
type AnythingLLMInvoker struct {
	baseURL    string
	workspace  string
	apiKey     string
	mode       string
	httpClient *http.Client
}

// AnythingLLMConfig configures an AnythingLLMInvoker
type AnythingLLMConfig struct {
	BaseURL   string
	Workspace string
	APIKey    string
	// Mode is "chat" (default) or "query"
	Mode    string
	Timeout time.Duration
}

// NewAnythingLLMInvoker creates an invoker with defaults filled in
func NewAnythingLLMInvoker(cfg AnythingLLMConfig) *AnythingLLMInvoker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnythingLLMURL
	}
	if cfg.Workspace == "" {
		cfg.Workspace = DefaultAnythingLLMWorkspace
	}
	if cfg.Mode == "" {
		cfg.Mode = "chat"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &AnythingLLMInvoker{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		workspace:  cfg.Workspace,
		apiKey:     cfg.APIKey,
		mode:       cfg.Mode,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type anythingChatRequest struct {
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

type anythingChatResponse struct {
	TextResponse string `json:"textResponse"`
	Error        any    `json:"error,omitempty"`
}

// Invoke implements Invoker
func (a *AnythingLLMInvoker) Invoke(ctx context.Context, message string) (string, error) {
	jsonData, err := json.Marshal(anythingChatRequest{Message: message, Mode: a.mode})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/workspace/%s/chat", a.baseURL, a.workspace)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", transportError(ProviderAnythingLLM, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(ProviderAnythingLLM, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", transportError(ProviderAnythingLLM, fmt.Errorf("API error: %d - %s", resp.StatusCode, string(bodyBytes)))
	}

	var apiResp anythingChatResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", transportError(ProviderAnythingLLM, fmt.Errorf("failed to decode response: %w", err))
	}

	return apiResp.TextResponse, nil
}
