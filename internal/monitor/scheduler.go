package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/srt-watcher/internal/itinerary"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusStopping  Status = "stopping"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
	StatusSucceeded Status = "succeeded"
)

// Terminal reports whether the status ends a run. Only Reset leaves a
// terminal state.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusFailed || s == StatusSucceeded
}

// State is the operator-visible snapshot of the current run. Written only by
// the scheduler; Status() hands out copies.
type State struct {
	Status    Status           `json:"status"`
	Itinerary *itinerary.Query `json:"itinerary,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	LastCheck time.Time        `json:"last_check"`
	LastError string           `json:"last_error,omitempty"`
	Failures  int              `json:"failures"`
	Checks    int              `json:"checks"`
}

// Config tunes the poll loop.
type Config struct {
	// PollInterval is the sleep between successful cycles. Default: 2s.
	PollInterval time.Duration
	// BackoffBase is the first retry delay after a transient failure; it
	// doubles per consecutive failure up to BackoffMax. Defaults: 2s / 60s.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// FailureCeiling is the number of consecutive transient failures
	// tolerated before the run fails. Default: 5.
	FailureCeiling int
	// AutoBook attempts a booking for newly available seats.
	AutoBook bool
	// Standby also watches the 예약대기 column when no seat is open.
	Standby bool
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = time.Minute
	}
	if c.FailureCeiling <= 0 {
		c.FailureCeiling = 5
	}
}

// Scheduler runs at most one watch at a time. The control surface calls
// Start/Stop/Status/Reset; everything else happens on the run goroutine,
// which exclusively owns the scrape session.
type Scheduler struct {
	cfg       Config
	newScrape ScrapeFactory
	notifier  Notifier
	recorder  Recorder
	log       *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle scheduler. recorder may be nil.
func New(cfg Config, scrape ScrapeFactory, notifier Notifier, recorder Recorder, log *slog.Logger) *Scheduler {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	done := make(chan struct{})
	close(done)
	return &Scheduler{
		cfg:       cfg,
		newScrape: scrape,
		notifier:  notifier,
		recorder:  recorder,
		log:       log,
		state:     State{Status: StatusIdle},
		done:      done,
	}
}

// Start begins watching q. Calling Start while a run is active is a no-op,
// not an error. After a run ends, Reset must be called first.
func (s *Scheduler) Start(q itinerary.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state.Status == StatusRunning || s.state.Status == StatusStopping:
		s.log.Info("start ignored, already running")
		return nil
	case s.state.Status.Terminal():
		return ErrRunFinished
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = State{
		Status:    StatusRunning,
		Itinerary: &q,
		StartedAt: time.Now(),
	}
	s.notifier.Reset()
	s.log.Info("watch starting", "itinerary", q.Summary())
	go s.run(ctx, q)
	return nil
}

// Stop requests cooperative cancellation. The loop observes it at the top of
// the cycle and during sleeps; an in-flight scrape call may still complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Status {
	case StatusRunning:
		s.state.Status = StatusStopping
		s.cancel()
		s.log.Info("stop requested")
		return nil
	case StatusStopping:
		return nil
	default:
		return ErrNotRunning
	}
}

// Reset returns a terminal scheduler to Idle.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status == StatusRunning || s.state.Status == StatusStopping {
		return ErrRunning
	}
	s.state = State{Status: StatusIdle}
	return nil
}

// Status returns a copy of the current state.
func (s *Scheduler) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel closed when the current run's goroutine has exited.
// Closed when no run is active.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) run(ctx context.Context, q itinerary.Query) {
	client, err := s.newScrape(ctx)
	if err != nil {
		s.fail(ctx, fmt.Errorf("open scrape session: %w", err))
		return
	}
	defer client.Close()

	s.notifier.Announce(ctx, "Watch started: "+q.Summary())

	backoff := s.cfg.BackoffBase
	loggedIn := false

	for {
		if ctx.Err() != nil {
			s.finish(StatusStopped, "")
			return
		}

		if !loggedIn {
			if err := client.Login(ctx); err != nil {
				if ctx.Err() != nil {
					s.finish(StatusStopped, "")
					return
				}
				var authErr *AuthError
				if errors.As(err, &authErr) || isFatalScrape(err) {
					s.fail(ctx, err)
					return
				}
				if !s.retryTransient(ctx, err, &backoff) {
					return
				}
				continue
			}
			loggedIn = true
			s.log.Info("logged in")
		}

		snap, err := client.Search(ctx, q)
		s.touch()
		if err != nil {
			if ctx.Err() != nil {
				s.finish(StatusStopped, "")
				return
			}
			if isFatalScrape(err) {
				s.fail(ctx, err)
				return
			}
			if !s.retryTransient(ctx, err, &backoff) {
				return
			}
			continue
		}
		s.clearFailures()
		backoff = s.cfg.BackoffBase

		openings := Evaluate(snap, q)
		if s.cfg.Standby {
			openings = append(openings, StandbyOpenings(snap, q)...)
		}

		var newly []Opening
		if len(openings) > 0 {
			newly = s.notifier.Notify(ctx, q, openings)
			for _, o := range newly {
				s.recordAlert(ctx, q, o)
			}
		}
		s.recordAttempt(ctx, Attempt{At: time.Now(), OK: true, Openings: len(openings)})

		if s.cfg.AutoBook && s.book(ctx, client, q, newly) {
			return
		}

		if !s.sleep(ctx, s.cfg.PollInterval) {
			s.finish(StatusStopped, "")
			return
		}
	}
}

// book attempts each newly announced opening in order. Returns true when the
// run ended (booking succeeded).
func (s *Scheduler) book(ctx context.Context, client ScrapeClient, q itinerary.Query, newly []Opening) bool {
	for _, o := range newly {
		if err := client.Book(ctx, o.Train, o.Class); err != nil {
			if ctx.Err() != nil {
				s.finish(StatusStopped, "")
				return true
			}
			// Booking races are expected: someone else grabbed the seat.
			s.log.Warn("booking attempt failed", "train", o.Train, "class", o.Class, "error", err)
			continue
		}
		s.log.Info("booking succeeded", "train", o.Train, "class", o.Class)
		s.notifier.Announce(ctx, fmt.Sprintf("Booked train #%d (%s) — %s. Pay within 10 minutes.", o.Train, o.Class, q.Summary()))
		s.finish(StatusSucceeded, "")
		return true
	}
	return false
}

// retryTransient counts the failure and sleeps the backoff. Returns false
// when the run ended (ceiling exceeded or stop observed during the wait).
func (s *Scheduler) retryTransient(ctx context.Context, cause error, backoff *time.Duration) bool {
	s.mu.Lock()
	s.state.Failures++
	s.state.LastError = cause.Error()
	failures := s.state.Failures
	s.mu.Unlock()

	s.recordAttempt(ctx, Attempt{At: time.Now(), Failures: failures, Err: cause.Error()})

	if failures > s.cfg.FailureCeiling {
		s.fail(ctx, fmt.Errorf("%d consecutive failures, last: %w", failures, cause))
		return false
	}

	s.log.Warn("transient failure, backing off", "error", cause, "failures", failures, "backoff", *backoff)
	if !s.sleep(ctx, *backoff) {
		s.finish(StatusStopped, "")
		return false
	}
	*backoff = min(*backoff*2, s.cfg.BackoffMax)
	return true
}

// sleep waits d or until cancellation. Returns false when cancelled.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Scheduler) touch() {
	s.mu.Lock()
	s.state.LastCheck = time.Now()
	s.state.Checks++
	s.mu.Unlock()
}

func (s *Scheduler) clearFailures() {
	s.mu.Lock()
	s.state.Failures = 0
	s.state.LastError = ""
	s.mu.Unlock()
}

func (s *Scheduler) fail(ctx context.Context, cause error) {
	s.notifier.Announce(ctx, "Watch failed: "+cause.Error())
	s.finish(StatusFailed, cause.Error())
}

func (s *Scheduler) finish(status Status, lastErr string) {
	s.mu.Lock()
	s.state.Status = status
	if lastErr != "" {
		s.state.LastError = lastErr
	}
	s.cancel()
	close(s.done)
	s.mu.Unlock()
	s.log.Info("watch finished", "status", status)
}

func (s *Scheduler) recordAttempt(ctx context.Context, a Attempt) {
	if s.recorder != nil {
		s.recorder.RecordAttempt(ctx, a)
	}
}

func (s *Scheduler) recordAlert(ctx context.Context, q itinerary.Query, o Opening) {
	if s.recorder != nil {
		s.recorder.RecordAlert(ctx, q, o)
	}
}

type noopNotifier struct{}

func (noopNotifier) Reset() {}
func (noopNotifier) Notify(ctx context.Context, q itinerary.Query, openings []Opening) []Opening {
	return openings
}
func (noopNotifier) Announce(ctx context.Context, text string) {}

func isFatalScrape(err error) bool {
	var se *ScrapeError
	return errors.As(err, &se) && !se.Transient
}
