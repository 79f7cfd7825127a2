// Package langflow provides the HTTP client for the external inference
// pipeline. One request is issued per observation dimension; the assembled
// script and the dimension label travel in two fixed tweak slots shared with
// the pipeline's flow definition.
package langflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
	"github.com/sessionlens/analyzer/pkg/common"
	"github.com/sessionlens/analyzer/pkg/common/logger"
)

var _ analysis.InferenceRunner = (*Client)(nil)

// Config holds the connection parameters for the inference pipeline.
type Config struct {
	// Host is the pipeline host, without scheme.
	Host string
	// Token is sent as the x-api-key header.
	Token string
	// FlowID identifies the flow to run.
	FlowID string

	// ChatInputKey and TextInputKey are the tweak slot identifiers for the
	// script text and the dimension label. They must match the flow
	// definition exactly.
	ChatInputKey string
	TextInputKey string

	// RequestTimeout bounds a single HTTP exchange. The pipeline holds the
	// connection open for the duration of its own processing.
	RequestTimeout time.Duration

	// RetryMaxElapsed bounds the total time spent retrying transport
	// failures before they surface to the orchestrator.
	RetryMaxElapsed time.Duration

	// RPS and Burst configure the shared request rate limit.
	RPS   float64
	Burst int
}

// runRequest is the wire format of one inference invocation.
type runRequest struct {
	Message    string           `json:"message"`
	OutputType string           `json:"output_type"`
	InputType  string           `json:"input_type"`
	Tweaks     map[string]tweak `json:"tweaks"`
}

type tweak struct {
	InputValue string `json:"input_value"`
}

// Client issues inference requests with rate limiting and bounded
// exponential-backoff retries on transport failure. Every failure mode
// surfaces as an error return; the caller never sees a panic.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *common.RateLimiter

	logger *logger.Logger
	tracer trace.Tracer
}

// NewClient creates an inference client from the given configuration.
func NewClient(cfg Config, log *logger.Logger, tracer trace.Tracer) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = 30 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.RequestTimeout},
		limiter: common.NewRateLimiter(cfg.RPS, cfg.Burst),
		logger:  log.With("component", "langflow_client"),
		tracer:  tracer,
	}
}

// Run sends the assembled script and the dimension label to the pipeline and
// returns the raw response envelope. Transport failures are retried with
// exponential backoff; once the retry budget is exhausted the last error is
// returned with nil bytes.
func (c *Client) Run(ctx context.Context, dimensionLabel, scriptText string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "langflow.run",
		trace.WithAttributes(
			attribute.String("dimension", dimensionLabel),
			attribute.Int("script_bytes", len(scriptText)),
		),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	body, err := json.Marshal(runRequest{
		Message:    scriptText,
		OutputType: "chat",
		InputType:  "chat",
		Tweaks: map[string]tweak{
			c.cfg.ChatInputKey: {InputValue: scriptText},
			c.cfg.TextInputKey: {InputValue: dimensionLabel},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding inference request: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/v1/run/%s?stream=false", c.cfg.Host, c.cfg.FlowID)

	var raw []byte
	operation := func() error {
		var opErr error
		raw, opErr = c.post(ctx, url, body)
		return opErr
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = c.cfg.RetryMaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference transport failed")
		c.logger.Error(ctx, "inference call failed", "dimension", dimensionLabel, "error", err)
		return nil, err
	}
	return raw, nil
}

// post performs one HTTP exchange and returns the response body.
func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.Token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting to inference pipeline: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference pipeline returned status %d", resp.StatusCode)
	}
	return raw, nil
}
