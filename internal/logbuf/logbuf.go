// Package logbuf keeps the most recent log lines in memory so the control
// panel can show what the watcher is doing without any log shipping.
package logbuf

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Buffer is a fixed-size ring of log entries. Safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	max   int
	lines []Entry
}

func New(max int) *Buffer {
	if max <= 0 {
		max = 500
	}
	return &Buffer{max: max}
}

// Entries returns a copy of the buffered lines, oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b *Buffer) append(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, e)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

// Handler returns a slog.Handler that records every line into the buffer and
// forwards it to next.
func (b *Buffer) Handler(next slog.Handler) slog.Handler {
	return &handler{buf: b, next: next}
}

type handler struct {
	buf   *Buffer
	next  slog.Handler
	attrs []slog.Attr
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	writeAttr := func(a slog.Attr) {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Any())
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})
	h.buf.append(Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: sb.String(),
	})
	return h.next.Handle(ctx, r)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &handler{buf: h.buf, next: h.next.WithAttrs(attrs), attrs: merged}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{buf: h.buf, next: h.next.WithGroup(name), attrs: h.attrs}
}
