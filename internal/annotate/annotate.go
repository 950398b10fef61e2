// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package annotate recognizes biomedical entities in figure captions using
// a BERN2-style annotation service.
//
// Text is submitted with POST {base}/plain. The service either answers at
// once with an annotation document (200) or accepts the text as a job
// (202) whose result is polled until ready. The whole exchange runs under
// one deadline. Any failure degrades to an empty result wrapped in
// types.ErrAnnotationDegraded; annotation never fails an extraction.
package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/internal/httputil"
	"github.com/pdiddy/paper-extractor/pkg/types"
)

const (
	// DefaultBaseURL is the public BERN2 service.
	DefaultBaseURL = "http://bern2.korea.ac.kr"

	DefaultDeadline         = 30 * time.Second
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultMaxPollInterval  = 5 * time.Second
	DefaultMinCaptionLength = 20

	maxResponseBytes int64 = 10 * 1024 * 1024
)

// Client annotates captions. It is safe for concurrent use.
type Client struct {
	BaseURL          string
	UserAgent        string
	Deadline         time.Duration
	PollInterval     time.Duration
	MaxPollInterval  time.Duration
	MinCaptionLength int
	MaxRetries       int
	HTTPClient       *http.Client

	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client from cfg. Zero durations fall back to defaults; a
// zero MinCaptionLength annotates captions of any length.
func New(cfg types.AnnotatorConfig, opts ...Option) *Client {
	c := &Client{
		BaseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		UserAgent:        cfg.UserAgent,
		Deadline:         cfg.Deadline,
		PollInterval:     cfg.PollInterval,
		MaxPollInterval:  cfg.MaxPollInterval,
		MinCaptionLength: cfg.MinCaptionLength,
		MaxRetries:       cfg.MaxRetries,
		HTTPClient:       &http.Client{Timeout: cfg.Timeout},
		logger:           zap.NewNop(),
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = max(DefaultMaxPollInterval, c.PollInterval)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Annotate returns the entity mentions found in caption, in the order the
// service reports them. Captions shorter than MinCaptionLength yield no
// mentions without contacting the service.
//
// On timeout, transport failure, an error status or a malformed document
// Annotate returns an empty slice and an error wrapping
// types.ErrAnnotationDegraded. Cancellation of ctx itself is returned as
// ctx.Err().
func (c *Client) Annotate(ctx context.Context, caption string) ([]types.EntityMention, error) {
	caption = strings.TrimSpace(caption)
	if caption == "" || utf8.RuneCountInString(caption) < c.MinCaptionLength {
		return []types.EntityMention{}, nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()

	start := time.Now()
	mentions, err := c.annotate(jobCtx, caption)
	if err != nil {
		if ctx.Err() != nil {
			return []types.EntityMention{}, ctx.Err()
		}
		c.logger.Warn("annotation degraded",
			zap.Int("caption_length", len(caption)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return []types.EntityMention{}, fmt.Errorf("%w: %v", types.ErrAnnotationDegraded, err)
	}

	c.logger.Debug("annotated caption",
		zap.Int("mentions", len(mentions)),
		zap.Duration("elapsed", time.Since(start)))
	return mentions, nil
}

type submitRequest struct {
	Text string `json:"text"`
}

type jobTicket struct {
	ID string `json:"id"`
}

func (c *Client) annotate(ctx context.Context, caption string) ([]types.EntityMention, error) {
	payload, err := json.Marshal(submitRequest{Text: caption})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/plain", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := httputil.DoWithRetry(ctx, c.HTTPClient, req, c.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("submitting caption: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return decodeAnnotations(body)
	case http.StatusAccepted:
		loc, err := c.jobLocation(resp.Header.Get("Location"), body)
		if err != nil {
			return nil, err
		}
		return c.poll(ctx, loc)
	default:
		return nil, fmt.Errorf("annotator returned HTTP %d", resp.StatusCode)
	}
}

// jobLocation finds the result URL of an accepted job: the Location
// header when present, else {base}/result/{id} from the ticket body.
func (c *Client) jobLocation(location string, body []byte) (string, error) {
	base, err := url.Parse(c.BaseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	if location != "" {
		ref, err := url.Parse(location)
		if err != nil {
			return "", fmt.Errorf("parsing job location %q: %w", location, err)
		}
		return base.ResolveReference(ref).String(), nil
	}

	var ticket jobTicket
	if err := json.Unmarshal(body, &ticket); err != nil || ticket.ID == "" {
		return "", fmt.Errorf("accepted job has no location or id")
	}
	return c.BaseURL + "/result/" + url.PathEscape(ticket.ID), nil
}

// poll waits for an accepted job, doubling the interval between polls up
// to MaxPollInterval. The deadline on ctx bounds the total wait.
func (c *Client) poll(ctx context.Context, loc string) ([]types.EntityMention, error) {
	interval := c.PollInterval
	for attempt := 1; ; attempt++ {
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("waiting for annotation job after %d poll(s): %w", attempt-1, ctx.Err())
		case <-t.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
		if err != nil {
			return nil, fmt.Errorf("creating poll request: %w", err)
		}
		c.setHeaders(req)

		resp, err := httputil.DoWithRetry(ctx, c.HTTPClient, req, c.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("polling annotation job: %w", err)
		}
		body, err := readBody(resp)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return decodeAnnotations(body)
		case http.StatusAccepted:
			c.logger.Debug("annotation job pending", zap.Int("poll", attempt), zap.Duration("next", interval))
		default:
			return nil, fmt.Errorf("annotation job returned HTTP %d", resp.StatusCode)
		}

		interval *= 2
		if interval > c.MaxPollInterval {
			interval = c.MaxPollInterval
		}
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > maxResponseBytes {
		return nil, fmt.Errorf("response exceeds maximum size of %d bytes", maxResponseBytes)
	}
	return body, nil
}
