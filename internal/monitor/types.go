// Package monitor owns the watch run: the start/stop state machine, the poll
// loop with its retry discipline, and the evaluation of seat snapshots.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/srt-watcher/internal/itinerary"
)

// TrainStatus is one row of the schedule table.
type TrainStatus struct {
	Index    int  // 1-based row position on the results page
	Special  bool // 특실 bookable
	Standard bool // 일반실 bookable
	Standby  bool // 예약대기 open
}

func (t TrainStatus) available(c itinerary.SeatClass) bool {
	switch c {
	case itinerary.ClassSpecial:
		return t.Special
	case itinerary.ClassStandard:
		return t.Standard
	case itinerary.ClassStandby:
		return t.Standby
	}
	return false
}

// SeatSnapshot is the result of one schedule search. Ephemeral: nothing but
// the dedup bookkeeping survives the cycle.
type SeatSnapshot struct {
	Taken  time.Time
	Trains []TrainStatus
}

// Opening is an actionable (train, class) pair.
type Opening struct {
	Train int                 `json:"train"`
	Class itinerary.SeatClass `json:"class"`
}

// Attempt summarises one poll cycle for the optional history store.
type Attempt struct {
	At       time.Time
	OK       bool
	Openings int
	Failures int // consecutive transient failures after this cycle
	Err      string
}

// ScrapeClient is the capability boundary around the browser session. The
// session is stateful and non-reentrant; a client instance is owned
// exclusively by the scheduler's run goroutine.
type ScrapeClient interface {
	Login(ctx context.Context) error
	Search(ctx context.Context, q itinerary.Query) (SeatSnapshot, error)
	Book(ctx context.Context, train int, class itinerary.SeatClass) error
	Close() error
}

// ScrapeFactory opens a fresh scrape session for a run.
type ScrapeFactory func(ctx context.Context) (ScrapeClient, error)

// Notifier dispatches alerts for newly available seats. Notify returns the
// subset that had not been announced before; Reset clears the dedup set at
// the start of a run. Announce sends a plain lifecycle message.
type Notifier interface {
	Reset()
	Notify(ctx context.Context, q itinerary.Query, openings []Opening) []Opening
	Announce(ctx context.Context, text string)
}

// Recorder persists attempt and alert history. Implementations must never
// block or fail the loop; errors are theirs to swallow.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt)
	RecordAlert(ctx context.Context, q itinerary.Query, o Opening)
}

// AuthError is a login rejection. Fatal: the run transitions to Failed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// ScrapeError wraps a failure from the scrape collaborator. Transient errors
// are retried with backoff; fatal ones (structural incompatibility with the
// site) end the run.
type ScrapeError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *ScrapeError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("scrape %s (%s): %v", e.Op, kind, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// Transient builds a retryable scrape error.
func Transient(op string, err error) *ScrapeError {
	return &ScrapeError{Op: op, Err: err, Transient: true}
}

// Fatal builds a scrape error that ends the run.
func Fatal(op string, err error) *ScrapeError {
	return &ScrapeError{Op: op, Err: err}
}

// BookingError is a failed booking attempt: logged, treated as transient.
type BookingError struct {
	Train  int
	Class  itinerary.SeatClass
	Reason string
}

func (e *BookingError) Error() string {
	return fmt.Sprintf("booking train %d (%s) failed: %s", e.Train, e.Class, e.Reason)
}

var (
	// ErrRunFinished is returned by Start when a previous run reached a
	// terminal state and Reset has not been called.
	ErrRunFinished = errors.New("monitor: previous run finished, reset required")
	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("monitor: not running")
	// ErrRunning is returned by Reset while a run is still active.
	ErrRunning = errors.New("monitor: still running")
)
