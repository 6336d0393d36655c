package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Batch collects the per-row warnings of one run so they can be emitted as
// a single message once the run is over. Identical warnings are collapsed.
type Batch struct {
	mu     sync.Mutex
	title  string
	order  []string
	counts map[string]int
}

func NewBatch(title string) *Batch {
	return &Batch{title: title, counts: map[string]int{}}
}

// Warn records a warning and logs it.
func (b *Batch) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Warn(msg, "run", b.title)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counts[msg] == 0 {
		b.order = append(b.order, msg)
	}
	b.counts[msg]++
}

// Len is the number of warnings recorded, duplicates included.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.counts {
		n += c
	}
	return n
}

// Warnings returns the distinct warnings in first-seen order.
func (b *Batch) Warnings() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

// Message renders the aggregated warning text, or "" when empty.
func (b *Batch) Message() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return ""
	}
	var sb strings.Builder
	total := 0
	for _, c := range b.counts {
		total += c
	}
	fmt.Fprintf(&sb, "%s: %d warning(s)\n", b.title, total)
	for _, w := range b.order {
		if c := b.counts[w]; c > 1 {
			fmt.Fprintf(&sb, "- %s (x%d)\n", w, c)
		} else {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Flush sends the aggregated message at WARNING severity, if any.
func (b *Batch) Flush(ctx context.Context, sink Sink) {
	if msg := b.Message(); msg != "" && sink != nil {
		sink.Send(ctx, Warning, msg, "")
	}
}
