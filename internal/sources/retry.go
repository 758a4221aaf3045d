package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"litgate/internal/core"
	"litgate/internal/ratelimit"
)

const (
	maxAttempts = 3
	// parseSnippetLen bounds how much of a bad payload is echoed into an
	// error message.
	parseSnippetLen = 200
)

// baseRetryDelay is a var so tests can shrink the backoff.
var baseRetryDelay = 2 * time.Second

// retryableMarkers are the upstream error substrings that justify a retry
// in addition to retryable status codes.
var retryableMarkers = []string{
	"service unavailable",
	"rate limit",
	"backend failed",
	"temporarily unavailable",
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func retryableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range retryableMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isRetryable decides whether an attempt may be repeated: transient kind
// tags, timeouts, and the known marker substrings.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if core.IsKind(err, core.KindUpstreamTransient) {
		return true
	}
	return retryableMessage(err.Error())
}

// doWithRetry runs fn up to maxAttempts times with exponential backoff
// (base 2s). Non-retryable errors surface immediately; exhaustion wraps
// the last error as KindUpstreamUnavailable.
func doWithRetry(ctx context.Context, source string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		delay := baseRetryDelay * time.Duration(1<<(attempt-1))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &core.Error{
		Kind:    core.KindUpstreamUnavailable,
		Source:  source,
		Message: fmt.Sprintf("gave up after %d attempts", maxAttempts),
		Err:     lastErr,
	}
}

// getJSON performs one rate-limited GET with retries and decodes the JSON
// body into v.
func getJSON(ctx context.Context, client *http.Client, limiter *ratelimit.Limiter, source, url string, headers map[string]string, v any) error {
	return doWithRetry(ctx, source, func() error {
		body, err := fetchBody(ctx, client, limiter, source, url, headers)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, v); err != nil {
			return &core.Error{
				Kind:    core.KindUpstreamParse,
				Source:  source,
				Message: fmt.Sprintf("unexpected payload: %s", snippet(body)),
				Err:     err,
			}
		}
		return nil
	})
}

// getRaw performs one rate-limited GET with retries and returns the body.
func getRaw(ctx context.Context, client *http.Client, limiter *ratelimit.Limiter, source, url string, headers map[string]string) ([]byte, error) {
	var body []byte
	err := doWithRetry(ctx, source, func() error {
		var err error
		body, err = fetchBody(ctx, client, limiter, source, url, headers)
		return err
	})
	return body, err
}

func fetchBody(ctx context.Context, client *http.Client, limiter *ratelimit.Limiter, source, url string, headers map[string]string) ([]byte, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Transport errors (timeouts, DNS, resets) are transient.
		return nil, &core.Error{Kind: core.KindUpstreamTransient, Source: source, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.Error{Kind: core.KindUpstreamTransient, Source: source, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		kind := core.KindUpstreamUnavailable
		if retryableStatus(resp.StatusCode) || retryableMessage(string(body)) {
			kind = core.KindUpstreamTransient
		}
		return nil, &core.Error{
			Kind:    kind,
			Source:  source,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(body)),
		}
	}
	return body, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > parseSnippetLen {
		s = s[:parseSnippetLen]
	}
	return s
}
