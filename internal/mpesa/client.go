package mpesa

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// Client performs the raw HTTP exchanges with Daraja. All calls share one
// http.Client so a single timeout bounds every outbound request.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a Daraja client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Transport: tr,
			Timeout:   timeout,
		},
		logger: logger,
	}
}

// getBasic issues a GET authenticated with HTTP Basic credentials.
func (c *Client) getBasic(ctx context.Context, op, path, user, pass string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: err}
	}
	req.SetBasicAuth(user, pass)
	req.Header.Set("Accept", "application/json")

	return c.do(ctx, op, req)
}

// postJSON sends payload with a bearer token and returns the response body
// verbatim. Non-JSON bodies are reported as upstream failures.
func (c *Client) postJSON(ctx context.Context, op, path, token string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode payload: %w", op, err)
	}
	c.logger.DebugContext(ctx, "daraja request",
		slog.String("op", op),
		slog.String("path", path),
		slog.String("body", redactJSON(body)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, op, req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp) {
		return nil, &UpstreamError{Op: op, Body: truncate(string(resp)), Err: errors.New("response is not valid JSON")}
	}
	return json.RawMessage(resp), nil
}

func (c *Client) do(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "daraja call failed",
			slog.String("op", op),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		return nil, &UpstreamError{Op: op, Err: err, Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err), Timeout: isTimeout(err)}
	}

	c.logger.DebugContext(ctx, "daraja response",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
		slog.String("body", redactJSON(body)),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)))}
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string) string {
	const limit = 512
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
