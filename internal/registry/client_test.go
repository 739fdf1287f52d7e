package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// testConfig returns a client config pointing every endpoint at the given test server.
func testConfig(serverURL string) *Config {
	return &Config{
		UserAgent:       "filingwatch-test/1.0 (dev@example.com)",
		MaxRequestRate:  1000,
		RetryMax:        3,
		IndexTimeout:    5 * time.Second,
		DocumentTimeout: 5 * time.Second,
		TickerIndexURL:  serverURL + "/files/company_tickers.json",
		SubmissionsURL:  serverURL + "/submissions",
		ArchivesURL:     serverURL + "/Archives/edgar/data",
	}
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()

	client, err := NewClient(testConfig(serverURL), WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	require.NoError(t, err)

	return client
}

func TestNewClient_RequiresUserAgent(t *testing.T) {
	_, err := NewClient(&Config{MaxRequestRate: 10, RetryMax: 3})

	require.ErrorIs(t, err, ErrMissingUserAgent)
}

func TestResolveFilerID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{
			"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
			"1": {"cik_str": 789019, "ticker": "MSFT", "title": "Microsoft Corp"}
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	id, err := client.ResolveFilerID(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "0000320193", id)

	_, err = client.ResolveFilerID(context.Background(), "ZZZZ")
	require.ErrorIs(t, err, ErrFilerNotFound)
}

func TestDoWithRetry_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		_, _ = w.Write([]byte(`{"0": {"cik_str": 1, "ticker": "T", "title": "T Inc"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	id, err := client.ResolveFilerID(context.Background(), "T")
	require.NoError(t, err)
	assert.Equal(t, "0000000001", id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoWithRetry_FatalStatusNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.ResolveFilerID(context.Background(), "T")

	var statusErr *StatusError

	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load(), "fatal status must not be retried")
}

func TestDoWithRetry_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryMax = 2

	client, err := NewClient(cfg, WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	require.NoError(t, err)

	_, err = client.ResolveFilerID(context.Background(), "T")

	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownloadDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Archives paths drop the filer id padding and accession dashes.
		assert.Equal(t, "/Archives/edgar/data/320193/000032019324000123/aapl-20240928.htm", r.URL.Path)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>hello</html>"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	doc, err := client.DownloadDocument(context.Background(), "0000320193", "0000320193-24-000123", "aapl-20240928.htm")
	require.NoError(t, err)

	assert.Equal(t, "text/html", doc.ContentType)
	assert.Equal(t, []byte("<html>hello</html>"), doc.Body)
	// sha256 of the literal body above.
	assert.Len(t, doc.SHA256, 64)
}

func TestFetchFilingIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions/CIK0000320193.json", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"cik": "320193",
			"name": "Apple Inc.",
			"filings": {"recent": {
				"accessionNumber": ["0000320193-24-000123", "0000320193-24-000081", "0000320193-24-000080"],
				"filingDate": ["2024-11-01", "2024-08-02", "not-a-date"],
				"reportDate": ["2024-09-28", "2024-06-29", ""],
				"form": ["10-K", "10-Q", "10-Q"],
				"primaryDocument": ["aapl-20240928.htm", "aapl-20240629.htm", "broken.htm"]
			}}
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	filings, err := client.FetchFilingIndex(context.Background(), "0000320193")
	require.NoError(t, err)

	// The row with the unparseable filing date is skipped.
	require.Len(t, filings, 2)
	assert.Equal(t, "10-K", filings[0].FormType)
	assert.Equal(t, "0000320193-24-000123", filings[0].FilingID)
	require.NotNil(t, filings[0].PeriodEnd)
	assert.Equal(t, "2024-09-28", filings[0].PeriodEnd.Format("2006-01-02"))
}

func TestFetchFilingIndex_InvalidFilerID(t *testing.T) {
	client := newTestClient(t, "http://unused")

	_, err := client.FetchFilingIndex(context.Background(), "42")

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRequestFailed), "validation failure must not hit the network")
}
