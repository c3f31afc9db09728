package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
	"unicode/utf8"

	apperrors "github.com/studyflow-ai/studyflow/pkg/errors"
	"github.com/studyflow-ai/studyflow/pkg/resilience"
)

// HTTPConfig configures an OpenAI-compatible chat completion backend.
type HTTPConfig struct {
	Name      string
	BaseURL   string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
	MaxTokens int
}

// HTTPProvider calls an OpenAI-compatible /chat/completions endpoint.
// Each call runs through a per-provider circuit breaker and a bounded
// retry on 429 and 5xx responses.
type HTTPProvider struct {
	cfg     HTTPConfig
	apiKey  string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewHTTP creates an HTTP provider. The API key is read from the
// environment variable named in cfg.APIKeyEnv; a missing key yields a
// provider that fails every call with ProviderUnavailable.
func NewHTTP(cfg HTTPConfig, logger *slog.Logger) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HTTPProvider{
		cfg:     cfg,
		apiKey:  os.Getenv(cfg.APIKeyEnv),
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.NewCircuitBreaker(cfg.Name, 5, 30*time.Second),
		retry:   resilience.DefaultRetryConfig(),
		logger:  logger.With(slog.String("component", "provider"), slog.String("provider", cfg.Name)),
	}
}

func (p *HTTPProvider) Name() string { return p.cfg.Name }

// Breaker exposes the circuit breaker, for state gauges.
func (p *HTTPProvider) Breaker() *resilience.CircuitBreaker { return p.breaker }

// Answer sends prompt as a single user message and returns the first
// choice's content.
func (p *HTTPProvider) Answer(ctx context.Context, prompt string) (*Response, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: %s has no API key (%s unset)",
			apperrors.ErrProviderUnavailable, p.cfg.Name, p.cfg.APIKeyEnv)
	}

	var resp *Response
	err := p.breaker.Execute(func() error {
		return resilience.Retry(ctx, p.retry, func() (bool, error) {
			var retryable bool
			var callErr error
			resp, retryable, callErr = p.call(ctx, prompt)
			return retryable, callErr
		})
	})
	if err != nil {
		p.logger.Warn("provider call failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrProviderFailure, p.cfg.Name, err)
	}
	return resp, nil
}

func (p *HTTPProvider) call(ctx context.Context, prompt string) (*Response, bool, error) {
	body, err := json.Marshal(chatRequest{
		Model:     p.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: p.cfg.MaxTokens,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		retryable := httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("status %d: %s", httpResp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, false, fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, false, fmt.Errorf("empty choices in response")
	}

	return &Response{
		Text:       parsed.Choices[0].Message.Content,
		Model:      p.cfg.Model,
		TokensUsed: parsed.Usage.TotalTokens,
	}, false, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
