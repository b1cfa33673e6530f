package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// Client talks to the local inference server.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a backend client. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: cfg,
		// No client-level timeout for streaming: long generations stay open
		// as long as the request context allows.
		http:   &http.Client{},
		logger: logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Options builds the backend options block for the given caller params.
func (c *Client) Options(p Params) Options {
	return c.config.BuildOptions(p)
}

// Generate runs a single non-streaming generation and returns the full
// response, including the opaque continuation state for the next turn.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req.Model = c.config.Model
	req.Stream = false

	resp, err := c.doRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("backend: decode response: %w", err)
	}
	return &out, nil
}

// GenerateStream runs a streaming generation. Each decoded chunk is passed
// to fn in order; the final chunk carries Done plus the continuation state
// and eval counts. Streaming stops on the first fn error.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, fn func(GenerateResponse) error) error {
	req.Model = c.config.Model
	req.Stream = true

	resp, err := c.doRequest(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp)
	}

	// The backend streams newline-delimited JSON objects.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk GenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			c.logger.Warn("backend: skipping malformed stream chunk", "error", err)
			continue
		}

		if err := fn(chunk); err != nil {
			return err
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: read stream: %w", ErrUnavailable, err)
	}
	return nil
}

// Health probes the backend's model listing endpoint.
func (c *Client) Health(ctx context.Context) error {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("backend: create health request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: health check: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// doRequest executes an HTTP POST to the generate endpoint.
func (c *Client) doRequest(ctx context.Context, body GenerateRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("backend: marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Do not classify caller cancellation/timeout as backend failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, nil
}

// handleErrorResponse maps HTTP error statuses to the sentinel error.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(body))
}
