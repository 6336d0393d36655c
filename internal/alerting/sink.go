// Package alerting posts run summaries and aggregated warnings to chat
// webhooks. Delivery is best effort: failures are logged and swallowed.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/betenlace/affiliates/internal/metrics"
)

type Severity string

const (
	Info    Severity = "INFO"
	Warning Severity = "WARNING"
	Error   Severity = "ERROR"
)

// MaxMessageBytes is the largest text a single webhook post may carry.
const MaxMessageBytes = 4096

// Sink accepts alerts. Implementations never fail the caller.
type Sink interface {
	Send(ctx context.Context, sev Severity, msg, channel string)
}

// ChatSink posts {"text": ...} messages to one webhook URL per channel.
type ChatSink struct {
	webhooks    map[string]string
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*ChatSink)

func WithHTTPClient(c *http.Client) Option { return func(s *ChatSink) { s.client = c } }

// WithBackoff sets the first retry delay; later retries double it.
func WithBackoff(d time.Duration) Option { return func(s *ChatSink) { s.backoff = d } }

func WithMaxAttempts(n int) Option { return func(s *ChatSink) { s.maxAttempts = n } }

func NewChatSink(webhooks map[string]string, opts ...Option) *ChatSink {
	s := &ChatSink{
		webhooks:    webhooks,
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: 5,
		backoff:     time.Second,
		sleep:       sleepCtx,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Send delivers msg to channel, or to the channel named after sev when
// channel is empty. Messages are split into MaxMessageBytes chunks.
func (s *ChatSink) Send(ctx context.Context, sev Severity, msg, channel string) {
	if channel == "" {
		channel = string(sev)
	}
	url, ok := s.webhooks[channel]
	if !ok || url == "" {
		slog.Info("alert (no webhook configured)", "channel", channel, "severity", sev, "message", msg)
		return
	}

	for _, chunk := range Chunk(msg, MaxMessageBytes) {
		if !s.post(ctx, url, channel, chunk) {
			return
		}
	}
}

// post returns false when the remaining chunks should not be attempted.
func (s *ChatSink) post(ctx context.Context, url, channel, text string) bool {
	body, _ := json.Marshal(map[string]string{"text": text})
	delay := s.backoff

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			slog.Error("alert request build failed", "channel", channel, "error", err)
			metrics.AlertPosts.WithLabelValues(channel, "error").Inc()
			return false
		}
		req.Header.Set("Content-Type", "application/json")

		status, retryAfter, err := s.do(req)
		switch {
		case err == nil && status >= 200 && status < 300:
			metrics.AlertPosts.WithLabelValues(channel, "ok").Inc()
			return true
		case err == nil && status == http.StatusBadRequest:
			slog.Warn("alert rejected by webhook", "channel", channel, "status", status)
			metrics.AlertPosts.WithLabelValues(channel, "rejected").Inc()
			return false
		case err == nil && status != http.StatusTooManyRequests && status < 500:
			slog.Warn("alert not accepted", "channel", channel, "status", status)
			metrics.AlertPosts.WithLabelValues(channel, "rejected").Inc()
			return false
		}

		slog.Warn("alert post failed, retrying", "channel", channel, "attempt", attempt, "status", status, "error", err)
		if attempt == s.maxAttempts {
			break
		}
		wait := delay
		if retryAfter > wait {
			wait = retryAfter
		}
		if err := s.sleep(ctx, wait); err != nil {
			break
		}
		delay *= 2
	}

	slog.Error("alert dropped after retries", "channel", channel)
	metrics.AlertPosts.WithLabelValues(channel, "dropped").Inc()
	return false
}

func (s *ChatSink) do(req *http.Request) (int, time.Duration, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	var retryAfter time.Duration
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return resp.StatusCode, retryAfter, nil
}

// Chunk splits s into pieces of at most limit bytes without cutting a UTF-8
// sequence. A newline inside the window is preferred as the cut point.
// Invalid input with no rune start inside the window is cut at limit.
func Chunk(s string, limit int) []string {
	if s == "" {
		return nil
	}
	if limit < utf8.UTFMax {
		limit = utf8.UTFMax
	}
	var out []string
	for len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		if nl := lastNewline(s[:cut]); nl > cut/2 {
			cut = nl + 1
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	return append(out, s)
}

func lastNewline(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
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

// LogSink only writes alerts to the process log.
type LogSink struct{}

func (LogSink) Send(_ context.Context, sev Severity, msg, channel string) {
	slog.Info("alert", "channel", channel, "severity", sev, "message", msg)
}
