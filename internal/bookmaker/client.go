package bookmaker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/metrics"
)

const (
	defaultMaxAttempts = 5
	minBackoff         = time.Second
	maxBackoff         = 3 * time.Second
)

// noDataMarkers are the answers feeds give for a day without activity.
var noDataMarkers = []string{"no data", "no hay datos", "no records found", "sin resultados"}

// Client performs feed requests with bounded retries.
type Client struct {
	source      string
	http        *http.Client
	maxAttempts int
	backoff     func() time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption { return func(c *Client) { c.http = h } }

func WithMaxAttempts(n int) ClientOption { return func(c *Client) { c.maxAttempts = n } }

// WithoutBackoff makes retries immediate.
func WithoutBackoff() ClientOption {
	return func(c *Client) {
		c.sleep = func(context.Context, time.Duration) error { return nil }
	}
}

func NewClient(source string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		source:      source,
		http:        &http.Client{Timeout: timeout},
		maxAttempts: defaultMaxAttempts,
		backoff:     randomBackoff,
		sleep:       sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// withJar returns a copy of c whose HTTP client keeps cookies in jar.
func (c *Client) withJar(jar http.CookieJar) *Client {
	cp := *c
	h := *c.http
	h.Jar = jar
	cp.http = &h
	return &cp
}

func randomBackoff() time.Duration {
	return minBackoff + time.Duration(rand.Int63n(int64(maxBackoff-minBackoff)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do sends the request built by newReq until it answers 200, retrying
// transient failures. newReq is called once per attempt so bodies can be
// replayed.
func (c *Client) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", c.source, err)
		}

		body, status, err := c.once(req)
		if err == nil && status == http.StatusOK {
			return body, nil
		}
		if err == nil {
			lastErr = &domain.UpstreamError{Source: c.source, Status: status, Err: fmt.Errorf("%s", snippet(body))}
			if !retryable(status) {
				return nil, lastErr
			}
		} else {
			lastErr = &domain.UpstreamError{Source: c.source, Err: err}
		}

		if attempt == c.maxAttempts {
			break
		}
		slog.Warn("feed request failed, retrying", "source", c.source, "attempt", attempt, "error", lastErr)
		if err := c.sleep(ctx, c.backoff()); err != nil {
			return nil, &domain.UpstreamError{Source: c.source, Err: err}
		}
	}
	return nil, lastErr
}

func (c *Client) once(req *http.Request) ([]byte, int, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream(c.source, 0, start)
		return nil, 0, err
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(c.source, resp.StatusCode, start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Client errors that retrying cannot fix.
func retryable(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	}
	return true
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	if s == "" {
		s = "empty body"
	}
	return s
}

// IsNoData reports whether a payload is a feed's "no data" answer rather
// than a report.
func IsNoData(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return true
	}
	if len(trimmed) > 256 {
		return false
	}
	lower := strings.ToLower(string(trimmed))
	for _, m := range noDataMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// dropUnregistered removes rows whose punter is the NotRegistered sentinel.
func dropUnregistered(name string, rows []RawRow) ([]RawRow, []string) {
	kept := rows[:0]
	dropped := 0
	for _, r := range rows {
		if p, ok := r[ColPunterID]; ok && strings.EqualFold(strings.TrimSpace(fmt.Sprint(p)), NotRegistered) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	if dropped == 0 {
		return kept, nil
	}
	return kept, []string{fmt.Sprintf("%s: dropped %d row(s) for %q punters", name, dropped, NotRegistered)}
}

func noDataWarning(name string, date time.Time) []string {
	return []string{fmt.Sprintf("%s: no data for %s", name, date.Format("2006-01-02"))}
}
