// Package registry provides a rate-limited, retrying client for the public
// filing registry (SEC EDGAR JSON and document endpoints).
//
// The registry enforces access guidelines on automated clients: every request
// must carry a contact-identifying User-Agent, and sustained request rates are
// capped. The client enforces both locally — the limiter is process-local and
// does not coordinate across processes, so horizontally scaled workers need a
// conservative per-worker ceiling.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/filingwatch/filingwatch/internal/config"
)

// Sentinel errors for registry operations.
var (
	// ErrFilerNotFound is returned when a ticker does not resolve to a filer id.
	// Normal absence, not a fault.
	ErrFilerNotFound = errors.New("ticker not found in filer index")

	// ErrRequestFailed is returned when a request exhausts its retry budget.
	ErrRequestFailed = errors.New("registry request failed after retries")
)

// StatusError reports a fatal, non-retryable HTTP status from the registry.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected registry status %d for %s", e.StatusCode, e.URL)
}

// Document is a downloaded filing document.
type Document struct {
	Body        []byte
	ContentType string
	SHA256      string
}

// Client is a rate-limited, retrying HTTP client for the filing registry.
//
// All requests carry the configured User-Agent and pass through the injected
// limiter before hitting the network. Transient failures (429/403/5xx and
// network errors) are retried with exponential backoff up to Config.RetryMax
// attempts; any other non-2xx status is fatal.
type Client struct {
	cfg        *Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithLimiter overrides the default request limiter. Useful for sharing one
// limiter across clients or disabling rate limiting in tests.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// NewClient creates a filing registry client.
// Returns ErrMissingUserAgent when the configuration lacks a contact header.
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = LoadConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(cfg.MaxRequestRate), 1),
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// ResolveFilerID resolves a ticker symbol to a 10-digit zero-padded filer id.
// Returns ErrFilerNotFound when the ticker is absent from the registry index.
func (c *Client) ResolveFilerID(ctx context.Context, ticker string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	if symbol == "" {
		return "", ErrFilerNotFound
	}

	body, err := c.getWithRetry(ctx, c.cfg.TickerIndexURL, "application/json", c.cfg.IndexTimeout)
	if err != nil {
		return "", err
	}

	// The index is keyed by arbitrary integer position; each row carries
	// cik_str, ticker and title.
	var index map[string]struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}

	if err := json.Unmarshal(body, &index); err != nil {
		return "", fmt.Errorf("failed to parse filer index: %w", err)
	}

	for _, row := range index {
		if strings.EqualFold(strings.TrimSpace(row.Ticker), symbol) {
			return fmt.Sprintf("%010d", row.CIK), nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrFilerNotFound, symbol)
}

// DownloadDocument downloads the primary filing document for a filing.
// filerID must be the 10-digit padded form; filingID is the accession number
// (dashes optional). Returns the body, reported content type and sha256 hex.
func (c *Client) DownloadDocument(ctx context.Context, filerID, filingID, documentName string) (*Document, error) {
	cikInt, err := strconv.Atoi(strings.TrimSpace(filerID))
	if err != nil {
		return nil, fmt.Errorf("invalid filer id %q: %w", filerID, err)
	}

	accession := strings.ReplaceAll(strings.TrimSpace(filingID), "-", "")
	if accession == "" {
		return nil, errors.New("filing id is required")
	}

	document := strings.TrimSpace(documentName)
	if document == "" {
		return nil, errors.New("document name is required")
	}

	url := fmt.Sprintf("%s/%d/%s/%s", c.cfg.ArchivesURL, cikInt, accession, document)

	body, contentType, err := c.getBytesWithRetry(ctx, url, c.cfg.DocumentTimeout)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(body)

	return &Document{
		Body:        body,
		ContentType: contentType,
		SHA256:      hex.EncodeToString(sum[:]),
	}, nil
}

// getWithRetry fetches a JSON endpoint body with rate limiting and retries.
func (c *Client) getWithRetry(ctx context.Context, url, accept string, timeout time.Duration) ([]byte, error) {
	body, _, err := c.doWithRetry(ctx, url, accept, timeout)

	return body, err
}

// getBytesWithRetry fetches raw bytes with rate limiting and retries.
func (c *Client) getBytesWithRetry(ctx context.Context, url string, timeout time.Duration) ([]byte, string, error) {
	return c.doWithRetry(ctx, url, "*/*", timeout)
}

// doWithRetry performs a GET with the limiter, mandatory headers, bounded
// timeout and exponential backoff on transient failures.
func (c *Client) doWithRetry(ctx context.Context, url, accept string, timeout time.Duration) ([]byte, string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.RetryMax; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", fmt.Errorf("rate limiter wait: %w", err)
		}

		body, contentType, err := c.doOnce(ctx, url, accept, timeout)
		if err == nil {
			return body, contentType, nil
		}

		// Fatal statuses and context cancellation are not retried.
		var statusErr *StatusError
		if errors.As(err, &statusErr) || ctx.Err() != nil {
			return nil, "", err
		}

		lastErr = err

		c.logger.Warn("registry request failed, retrying",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.cfg.RetryMax),
			slog.String("error", err.Error()),
		)

		if attempt < c.cfg.RetryMax {
			if err := sleepContext(ctx, backoffDelay(attempt)); err != nil {
				return nil, "", err
			}
		}
	}

	return nil, "", fmt.Errorf("%w: GET %s: %v", ErrRequestFailed, url, lastErr)
}

// doOnce performs a single GET attempt. Transient HTTP statuses are returned
// as plain errors (retryable); other non-2xx statuses become *StatusError.
func (c *Client) doOnce(ctx context.Context, url, accept string, timeout time.Duration) ([]byte, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("registry request error: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if isTransientStatus(resp.StatusCode) {
		return nil, "", fmt.Errorf("transient registry status %d for %s", resp.StatusCode, url)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return body, contentType, nil
}

// isTransientStatus reports whether an HTTP status is retryable.
// The registry answers 403 (not only 429) when rate limits are exceeded.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusForbidden,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// backoffDelay returns the exponential backoff delay for an attempt (1-based):
// 1s, 2s, 4s, ...
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * time.Second
}

// sleepContext sleeps for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
