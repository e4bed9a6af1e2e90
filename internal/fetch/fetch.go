// Package fetch downloads encoded images over HTTP(S).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MeKo-Tech/coincount/internal/version"
)

var (
	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	// ErrTooLarge is returned when the response body exceeds Config.MaxBytes.
	ErrTooLarge = errors.New("response body exceeds size limit")
)

// TransportError describes a failed download. StatusCode is 0 when no HTTP
// response was received.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config controls download limits.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// DefaultConfig returns a 30 second timeout and a 50 MB body limit.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		MaxBytes:  50 << 20,
		UserAgent: version.UserAgent(),
	}
}

// Fetcher downloads image bytes. It is safe for concurrent use.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New creates a Fetcher with its own HTTP client.
func New(cfg Config) *Fetcher {
	return NewWithClient(cfg, &http.Client{Timeout: cfg.Timeout})
}

// NewWithClient creates a Fetcher that uses the given client.
func NewWithClient(cfg Config, client *http.Client) *Fetcher {
	def := DefaultConfig()
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{cfg: cfg, client: client}
}

// Config returns the fetcher configuration.
func (f *Fetcher) Config() Config { return f.cfg }

// IsURL reports whether s looks like an http or https URL.
func IsURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Fetch downloads rawURL and returns the body. Non-200 responses, oversize
// bodies and network failures are reported as *TransportError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &TransportError{URL: rawURL, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}
	if u.Host == "" {
		return nil, &TransportError{URL: rawURL, Err: errors.New("missing host")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "image/*")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrTooLarge}
	}

	slog.Debug("Downloaded image", "url", rawURL, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}
