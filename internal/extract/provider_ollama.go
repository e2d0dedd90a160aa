package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaConfig configures the local Ollama-backed provider, used for
// offline development and integration tests that must not depend on a
// hosted model.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
}

// OllamaProvider implements Provider against a local Ollama server. The
// generate call itself uses the teacher's raw-net/http idiom (the pack
// never exercises api.Client for a generate/chat round-trip, only for
// Show/Pull/Embed), but IsAvailable uses the real typed client the same way
// the teacher's embedding service probes model availability.
type OllamaProvider struct {
	cfg         OllamaConfig
	client      *http.Client
	typedClient *api.Client
}

// NewOllamaProvider constructs an OllamaProvider.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral:7b-instruct-q4_K_M"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	parsed, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host: %w", err)
	}

	return &OllamaProvider{
		cfg:         cfg,
		client:      &http.Client{Timeout: cfg.Timeout},
		typedClient: api.NewClient(parsed, http.DefaultClient),
	}, nil
}

func (p *OllamaProvider) Name() string { return "ollama" }

// IsAvailable checks the configured model is present, the same way
// EmbeddingService.EnsureModel probes Ollama via api.Client.Show.
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.typedClient.Show(ctx, &api.ShowRequest{Model: p.cfg.Model})
	return err == nil
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system,omitempty"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Call performs one retrying request/response round-trip against Ollama's
// /api/generate endpoint, requesting JSON-formatted output.
func (p *OllamaProvider) Call(ctx context.Context, systemPrompt, userPrompt string) (CallResult, error) {
	req := ollamaGenerateRequest{
		Model:  p.cfg.Model,
		System: systemPrompt,
		Prompt: userPrompt,
		Stream: false,
		Format: "json",
		Options: ollamaOptions{
			Temperature: 0.1,
			NumPredict:  8192,
		},
	}

	return callWithRetry(ctx, func(ctx context.Context) (CallResult, error) {
		return p.attempt(ctx, req)
	})
}

func (p *OllamaProvider) attempt(ctx context.Context, req ollamaGenerateRequest) (CallResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CallResult{}, fmt.Errorf("marshal ollama request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, strings.TrimRight(p.cfg.Host, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return CallResult{}, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CallResult{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CallResult{}, fmt.Errorf("read ollama response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return CallResult{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return CallResult{}, fmt.Errorf("decode ollama response: %w", err)
	}

	usage := ProviderUsage{
		PromptTokens:     parsed.PromptEvalCount,
		CompletionTokens: parsed.EvalCount,
		TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		CostUSD:          0, // local model, no metered cost
	}

	return CallResult{Content: parsed.Response, Usage: usage}, nil
}
