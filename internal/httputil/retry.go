// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the remote API clients.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// transient failures. Tests override this to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

// MaxRetryDelay caps a single backoff wait, including waits requested by
// a Retry-After header.
var MaxRetryDelay = 30 * time.Second

const defaultMaxRetries = 3

// IsTransientStatus reports whether an HTTP status is worth retrying:
// 429 (Too Many Requests) and the 5xx gateway and availability errors.
func IsTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// DoWithRetry executes an HTTP request and retries transient failures with
// exponential backoff. The delay starts at RetryBaseDelay and doubles each
// attempt; a Retry-After header, when present, replaces the computed delay.
//
// When maxRetries is 0 the default (3) is used. Transport errors are
// retried unless the context is done. Requests with a body must set
// GetBody (http.NewRequest does this for in-memory readers) so the body can
// be replayed. After exhausting retries the last transient response is
// returned so the caller can inspect it, or the last transport error.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewinding request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt >= maxRetries {
				return nil, err
			}
			if err := sleep(ctx, backoff(attempt, "")); err != nil {
				return nil, err
			}
			continue
		}

		if !IsTransientStatus(resp.StatusCode) {
			return resp, nil
		}

		// Exhausted retries; hand the transient response back as-is.
		if attempt >= maxRetries {
			return resp, nil
		}

		wait := backoff(attempt, resp.Header.Get("Retry-After"))

		// Drain and close the body before retrying.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// IsTimeout reports whether err is a client-side timeout.
func IsTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func backoff(attempt int, retryAfter string) time.Duration {
	d := retryAfterDuration(retryAfter)
	if d <= 0 {
		d = time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
	}
	if d > MaxRetryDelay {
		d = MaxRetryDelay
	}
	return d
}

func retryAfterDuration(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
