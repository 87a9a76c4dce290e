// Package notify delivers seat alerts. The Dispatcher deduplicates per run;
// the transport is fire-and-forget: a delivery failure never reaches the
// poll loop.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/srt-watcher/internal/itinerary"
	"github.com/example/srt-watcher/internal/monitor"
)

// Transport sends one plain-text message.
type Transport interface {
	Send(ctx context.Context, text string) error
}

// Dispatcher implements monitor.Notifier: at most one alert per
// (train, class) pair within a run, regardless of how many cycles still see
// the pair available.
type Dispatcher struct {
	transport Transport
	log       *slog.Logger

	mu   sync.Mutex
	seen map[monitor.Opening]struct{}
}

// NewDispatcher creates a dispatcher. transport may be nil, in which case
// alerts are only logged.
func NewDispatcher(transport Transport, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		transport: transport,
		log:       log,
		seen:      make(map[monitor.Opening]struct{}),
	}
}

// Reset clears the dedup set. Called by the scheduler when a run starts.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.seen = make(map[monitor.Opening]struct{})
	d.mu.Unlock()
}

// Notify alerts each opening not seen before in this run and returns that
// subset. A pair is marked seen even when delivery fails, so it is announced
// at most once per run.
func (d *Dispatcher) Notify(ctx context.Context, q itinerary.Query, openings []monitor.Opening) []monitor.Opening {
	d.mu.Lock()
	var newly []monitor.Opening
	for _, o := range openings {
		if _, ok := d.seen[o]; ok {
			continue
		}
		d.seen[o] = struct{}{}
		newly = append(newly, o)
	}
	d.mu.Unlock()

	for _, o := range newly {
		d.send(ctx, fmt.Sprintf("Seats open: train #%d (%s) — %s", o.Train, o.Class, q.Summary()))
		d.log.Info("seat alert", "train", o.Train, "class", o.Class)
	}
	return newly
}

// Announce sends a lifecycle message (run started, booked, failed) without
// dedup bookkeeping.
func (d *Dispatcher) Announce(ctx context.Context, text string) {
	d.send(ctx, text)
}

func (d *Dispatcher) send(ctx context.Context, text string) {
	if d.transport == nil {
		return
	}
	if err := d.transport.Send(ctx, text); err != nil {
		d.log.Warn("notification delivery failed", "error", err)
	}
}
