package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestChunkRespectsLimitAndRunes(t *testing.T) {
	msg := strings.Repeat("ñ", 3000) // 6000 bytes
	chunks := Chunk(msg, MaxMessageBytes)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if strings.Join(chunks, "") != msg {
		t.Fatalf("chunks do not reassemble the message")
	}
	for i, c := range chunks {
		if len(c) > MaxMessageBytes {
			t.Fatalf("chunk %d has %d bytes", i, len(c))
		}
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d splits a rune", i)
		}
	}
}

func TestChunkPrefersNewline(t *testing.T) {
	msg := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 15)
	chunks := Chunk(msg, 40)
	if len(chunks) != 2 || chunks[0] != strings.Repeat("a", 30)+"\n" {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
}

func TestChunkTerminatesOnInvalidUTF8(t *testing.T) {
	msg := strings.Repeat("\x80", 5000)
	done := make(chan []string, 1)
	go func() { done <- Chunk(msg, MaxMessageBytes) }()

	select {
	case chunks := <-done:
		if len(chunks) != 2 || len(chunks[0]) != MaxMessageBytes || strings.Join(chunks, "") != msg {
			t.Fatalf("unexpected chunks: %d pieces", len(chunks))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Chunk did not return")
	}
}

func TestChatSinkRetriesOnRateLimit(t *testing.T) {
	var calls int32
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var body struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		got = body.Text
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewChatSink(map[string]string{"ERROR": srv.URL})
	s.sleep = noSleep
	s.Send(context.Background(), Error, "ingestion failed", "")

	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
	if got != "ingestion failed" {
		t.Fatalf("body text: %q", got)
	}
}

func TestChatSinkStopsOnBadRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewChatSink(map[string]string{"WARNING": srv.URL})
	s.sleep = noSleep
	s.Send(context.Background(), Warning, strings.Repeat("x", MaxMessageBytes*3), "")

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected a single call after 400, got %d", n)
	}
}

func TestChatSinkGivesUpOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewChatSink(map[string]string{"INFO": srv.URL}, WithMaxAttempts(3))
	s.sleep = noSleep
	s.Send(context.Background(), Info, "hello", "INFO")

	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestChatSinkWithoutWebhookDoesNothing(t *testing.T) {
	s := NewChatSink(nil)
	s.Send(context.Background(), Error, "nobody listens", "")
}

func TestBatchMessage(t *testing.T) {
	b := NewBatch("betplay_co 2024-03-05")
	if b.Message() != "" {
		t.Fatalf("empty batch should render nothing")
	}
	b.Warn("unknown prom_code %q", "X1")
	b.Warn("unknown prom_code %q", "X1")
	b.Warn("link %s gated", "L2")

	if b.Len() != 3 || len(b.Warnings()) != 2 {
		t.Fatalf("len=%d distinct=%d", b.Len(), len(b.Warnings()))
	}
	want := "betplay_co 2024-03-05: 3 warning(s)\n- unknown prom_code \"X1\" (x2)\n- link L2 gated"
	if got := b.Message(); got != want {
		t.Fatalf("message:\n%s\nwant:\n%s", got, want)
	}
}

type recordingSink struct {
	sent []string
}

func (r *recordingSink) Send(_ context.Context, sev Severity, msg, _ string) {
	r.sent = append(r.sent, string(sev)+": "+msg)
}

func TestBatchFlush(t *testing.T) {
	rec := &recordingSink{}
	b := NewBatch("run")
	b.Flush(context.Background(), rec)
	if len(rec.sent) != 0 {
		t.Fatalf("empty batch must not send")
	}
	b.Warn("x")
	b.Flush(context.Background(), rec)
	if len(rec.sent) != 1 || !strings.HasPrefix(rec.sent[0], "WARNING: run: 1 warning(s)") {
		t.Fatalf("sent: %q", rec.sent)
	}
}
