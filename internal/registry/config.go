package registry

import (
	"errors"
	"strings"
	"time"

	"github.com/filingwatch/filingwatch/internal/config"
)

const (
	defaultMaxRequestRate  = 10
	defaultRetryMax        = 3
	defaultIndexTimeout    = 10 * time.Second
	defaultDocumentTimeout = 20 * time.Second

	defaultTickerIndexURL = "https://www.sec.gov/files/company_tickers.json"
	defaultSubmissionsURL = "https://data.sec.gov/submissions"
	defaultArchivesURL    = "https://www.sec.gov/Archives/edgar/data"
)

// ErrMissingUserAgent is returned when no contact-identifying User-Agent is configured.
// The registry rejects anonymous traffic, so this is a configuration error rather
// than a retryable fault.
var ErrMissingUserAgent = errors.New("registry user agent with contact information is required")

// Config holds filing registry client configuration.
type Config struct {
	// UserAgent is the mandatory contact-identifying header value,
	// e.g. "filingwatch/1.0 (ops@example.com)".
	UserAgent string

	// MaxRequestRate caps outbound requests per second across the whole client.
	MaxRequestRate int

	// RetryMax is the total attempt ceiling for transient failures (429/403/5xx, network).
	RetryMax int

	// IndexTimeout bounds JSON index fetches; DocumentTimeout bounds document downloads.
	IndexTimeout    time.Duration
	DocumentTimeout time.Duration

	// Endpoint roots. Overridable for tests.
	TickerIndexURL string
	SubmissionsURL string
	ArchivesURL    string
}

// LoadConfig loads registry client configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		UserAgent:       config.GetEnvStr("SEC_EDGAR_USER_AGENT", ""),
		MaxRequestRate:  config.GetEnvInt("SEC_MAX_REQUEST_RATE", defaultMaxRequestRate),
		RetryMax:        config.GetEnvInt("SEC_RETRY_MAX_ATTEMPTS", defaultRetryMax),
		IndexTimeout:    config.GetEnvDuration("SEC_INDEX_TIMEOUT", defaultIndexTimeout),
		DocumentTimeout: config.GetEnvDuration("SEC_DOCUMENT_TIMEOUT", defaultDocumentTimeout),
		TickerIndexURL:  config.GetEnvStr("SEC_TICKER_INDEX_URL", defaultTickerIndexURL),
		SubmissionsURL:  config.GetEnvStr("SEC_SUBMISSIONS_URL", defaultSubmissionsURL),
		ArchivesURL:     config.GetEnvStr("SEC_ARCHIVES_URL", defaultArchivesURL),
	}
}

// Validate checks if the registry configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UserAgent) == "" {
		return ErrMissingUserAgent
	}

	return nil
}
