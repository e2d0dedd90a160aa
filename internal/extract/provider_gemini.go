package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// GeminiConfig configures the Gemini-shaped JSON provider.
type GeminiConfig struct {
	Endpoint        string // full generateContent URL, including model
	APIKey          string
	Model           string
	Timeout         time.Duration // per-attempt timeout, default 120s per spec §4.3
	Temperature     float64
	MaxOutputTokens int

	// CostPerMillionPromptTokens / CostPerMillionCompletionTokens are
	// informational rate cards used only to populate ProviderUsage.CostUSD.
	CostPerMillionPromptTokens     float64
	CostPerMillionCompletionTokens float64
}

// GeminiProvider implements Provider against a Gemini-shaped generateContent
// endpoint: systemInstruction + contents + generationConfig.responseMimeType,
// matching spec §4.3/§6.3 exactly. Request/response struct style is
// grounded on the teacher's raw-net/http AnthropicProvider; the retry loop
// is centralized in retry.go.
type GeminiProvider struct {
	cfg    GeminiConfig
	client *http.Client
}

// NewGeminiProvider constructs a GeminiProvider, filling in spec-fixed
// defaults for any zero-valued timing/limit fields.
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 8192
	}
	return &GeminiProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	return p.cfg.APIKey != "" && p.cfg.Endpoint != ""
}

type geminiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Call performs one retrying request/response round-trip per spec §4.3.
func (p *GeminiProvider) Call(ctx context.Context, systemPrompt, userPrompt string) (CallResult, error) {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: userPrompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			Temperature:      p.cfg.Temperature,
			MaxOutputTokens:  p.cfg.MaxOutputTokens,
		},
	}

	return callWithRetry(ctx, func(ctx context.Context) (CallResult, error) {
		return p.attempt(ctx, req)
	})
}

func (p *GeminiProvider) attempt(ctx context.Context, req geminiRequest) (CallResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CallResult{}, fmt.Errorf("marshal gemini request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return CallResult{}, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CallResult{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CallResult{}, fmt.Errorf("read gemini response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var retryAfter time.Duration
		if h := resp.Header.Get("Retry-After"); h != "" {
			if secs, err := strconv.Atoi(h); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return CallResult{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody), RetryAfter: retryAfter}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return CallResult{}, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return CallResult{}, fmt.Errorf("gemini response had no candidates")
	}

	var content string
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		content += part.Text
	}

	usage := ProviderUsage{
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
	}
	usage.CostUSD = float64(usage.PromptTokens)/1_000_000*p.cfg.CostPerMillionPromptTokens +
		float64(usage.CompletionTokens)/1_000_000*p.cfg.CostPerMillionCompletionTokens

	return CallResult{Content: content, Usage: usage}, nil
}
