// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch retrieves article metadata and figure captions from the
// NCBI BioC PMC Open Access service and resolves PubMed IDs to PMC IDs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-extractor/internal/httputil"
	"github.com/pdiddy/paper-extractor/pkg/types"
)

const (
	// DefaultBaseURL is the BioC PMC service root.
	DefaultBaseURL = "https://www.ncbi.nlm.nih.gov/research/bionlp/RESTful/pmcoa.cgi"

	// DefaultIDConverterURL is the NCBI PMID/PMCID conversion endpoint.
	DefaultIDConverterURL = "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"

	// DefaultTool identifies this application to NCBI.
	DefaultTool = "paper-extractor"

	// Rate limits per NCBI policy.
	RateWithoutKey = 3  // requests per second without API key
	RateWithKey    = 10 // requests per second with API key

	// DefaultMaxResponseBytes is the maximum response body size (50 MB).
	DefaultMaxResponseBytes int64 = 50 * 1024 * 1024

	defaultTimeout = 30 * time.Second
)

// Fetcher is a rate-limited client for the BioC article API. One Fetcher
// should be shared by all concurrent extractions so the limiter applies
// across them.
type Fetcher struct {
	BaseURL        string
	IDConverterURL string
	Encoding       string
	APIKey         string
	Tool           string
	Email          string
	UserAgent      string
	MaxRetries     int
	MaxBytes       int64
	HTTPClient     *http.Client
	Limiter        *rate.Limiter

	logger *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.HTTPClient = hc }
}

// WithLimiter replaces the request rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(f *Fetcher) { f.Limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithMaxResponseBytes sets the maximum allowed response body size.
func WithMaxResponseBytes(n int64) Option {
	return func(f *Fetcher) { f.MaxBytes = n }
}

// New creates a Fetcher from cfg. Zero values fall back to defaults.
func New(cfg types.FetchConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		BaseURL:        cfg.BaseURL,
		IDConverterURL: cfg.IDConverterURL,
		Encoding:       cfg.Encoding,
		APIKey:         cfg.APIKey,
		Tool:           cfg.Tool,
		Email:          cfg.Email,
		UserAgent:      cfg.UserAgent,
		MaxRetries:     cfg.MaxRetries,
		MaxBytes:       DefaultMaxResponseBytes,
		logger:         zap.NewNop(),
	}
	if f.BaseURL == "" {
		f.BaseURL = DefaultBaseURL
	}
	if f.Encoding == "" {
		f.Encoding = "unicode"
	}
	if f.Tool == "" {
		f.Tool = DefaultTool
	}

	limit := RateWithoutKey
	if f.APIKey != "" {
		limit = RateWithKey
	}
	f.Limiter = rate.NewLimiter(rate.Limit(limit), 1)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	f.HTTPClient = &http.Client{Timeout: timeout}

	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f
}

// Fetch retrieves the article with the given canonical PMC identifier and
// returns a partial record: title, abstract and figures without entities.
//
// Errors wrap one of types.ErrInvalidIdentifier, types.ErrNotFound,
// types.ErrTransientFetch or types.ErrParse. Context cancellation is
// returned unwrapped.
func (f *Fetcher) Fetch(ctx context.Context, identifier string) (*types.PaperRecord, error) {
	idType, id := Classify(identifier)
	if idType != TypePMC {
		return nil, fmt.Errorf("%w: %q is not a PMC identifier", types.ErrInvalidIdentifier, identifier)
	}

	endpoint, err := url.JoinPath(f.BaseURL, "BioC_xml", id, f.Encoding)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}

	f.logger.Debug("fetching article", zap.String("id", id))
	start := time.Now()

	body, err := f.get(ctx, id, endpoint, f.commonParams())
	if err != nil {
		return nil, err
	}

	rec, err := ParseBioC(id, body)
	if err != nil {
		var pe *types.ParseError
		if errors.As(err, &pe) {
			f.logger.Warn("unparseable article response",
				zap.String("id", id),
				zap.String("payload", pe.Payload),
				zap.Error(pe.Err))
		}
		return nil, err
	}

	f.logger.Debug("fetched article",
		zap.String("id", id),
		zap.Int("figures", len(rec.Figures)),
		zap.Duration("elapsed", time.Since(start)))
	return rec, nil
}

func (f *Fetcher) commonParams() url.Values {
	params := url.Values{}
	if f.APIKey != "" {
		params.Set("api_key", f.APIKey)
	}
	if f.Tool != "" {
		params.Set("tool", f.Tool)
	}
	if f.Email != "" {
		params.Set("email", f.Email)
	}
	return params
}

// get performs a rate-limited GET with retries and maps the outcome onto
// the error taxonomy.
func (f *Fetcher) get(ctx context.Context, id, endpoint string, params url.Values) ([]byte, error) {
	if err := f.Limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	fullURL := endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, f.HTTPClient, req, f.MaxRetries)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", types.ErrTransientFetch, id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case httputil.IsTransientStatus(resp.StatusCode):
		return nil, fmt.Errorf("%w: %s: HTTP %d", types.ErrTransientFetch, id, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: %s: HTTP %d", types.ErrNotFound, id, resp.StatusCode)
	}

	// Read up to MaxBytes+1 to detect oversized responses.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: reading response: %v", types.ErrTransientFetch, id, err)
	}
	if int64(len(body)) > f.MaxBytes {
		return nil, types.NewParseError(id, body, fmt.Errorf("response exceeds maximum size of %d bytes", f.MaxBytes))
	}
	return body, nil
}
