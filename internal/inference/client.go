package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	oerrors "github.com/p-blackswan/opsengine/internal/errors"
	"github.com/p-blackswan/opsengine/internal/prompt"
	"github.com/p-blackswan/opsengine/internal/retry"
)

const defaultTimeout = 60 * time.Second

// Client calls the external inference HTTP service.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	retry   retry.Config
	logger  zerolog.Logger
}

// Option configures the client.
type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient constructs an inference client.
func NewClient(baseURL, apiKey string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		retry:   retry.DefaultConfig(),
		logger:  logger.With().Str("component", "inference").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// analyzeRequest is the wire request: the prompt pair plus the model hint.
type analyzeRequest struct {
	SystemPrompt string `json:"systemPrompt"`
	UserMessage  string `json:"userMessage"`
	Model        string `json:"model,omitempty"`
}

// Analyze posts the prompt and parses the raw result. Transient upstream
// failures are retried with backoff; the response is safe to reprocess.
func (c *Client) Analyze(ctx context.Context, p prompt.Prompt) (*RawResult, error) {
	body, err := json.Marshal(analyzeRequest{
		SystemPrompt: p.System,
		UserMessage:  p.User,
		Model:        c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var result *RawResult
	start := time.Now()
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		result, err = c.doAnalyze(ctx, body)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Int("suggestions", len(result.Suggestions)).
		Int("optimizations", len(result.Optimizations)).
		Msg("inference complete")

	return result, nil
}

func (c *Client) doAnalyze(ctx context.Context, body []byte) (*RawResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("inference http: %w", oerrors.ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, oerrors.NewAPIError("inference", resp.StatusCode, truncate(string(raw), 200))
	}

	var result RawResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal inference response: %w", err)
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
