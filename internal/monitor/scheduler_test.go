package monitor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/srt-watcher/internal/itinerary"
	"github.com/example/srt-watcher/internal/monitor"
	"github.com/example/srt-watcher/internal/notify"
)

type result struct {
	snap monitor.SeatSnapshot
	err  error
}

// fakeScrape scripts the collaborator: login errors are consumed in order,
// search results too, with the last one repeating.
type fakeScrape struct {
	mu        sync.Mutex
	loginErrs []error
	logins    int
	results   []result
	searches  int
	bookErr   error
	booked    []monitor.Opening
	closed    bool
}

func (f *fakeScrape) Login(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if len(f.loginErrs) > 0 {
		err := f.loginErrs[0]
		f.loginErrs = f.loginErrs[1:]
		return err
	}
	return nil
}

func (f *fakeScrape) Search(ctx context.Context, q itinerary.Query) (monitor.SeatSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		f.searches++
		return monitor.SeatSnapshot{Taken: time.Now()}, nil
	}
	i := f.searches
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.searches++
	return f.results[i].snap, f.results[i].err
}

func (f *fakeScrape) Book(ctx context.Context, train int, class itinerary.SeatClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.booked = append(f.booked, monitor.Opening{Train: train, Class: class})
	return f.bookErr
}

func (f *fakeScrape) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type captureTransport struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (c *captureTransport) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return c.err
}

func (c *captureTransport) alerts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.sent {
		if strings.HasPrefix(m, "Seats open") {
			n++
		}
	}
	return n
}

func fastConfig() monitor.Config {
	return monitor.Config{
		PollInterval:   2 * time.Millisecond,
		BackoffBase:    time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
		FailureCeiling: 2,
	}
}

func testQuery() itinerary.Query {
	return itinerary.Query{
		Origin:      "A",
		Destination: "B",
		Date:        "20240501",
		Hour:        "16",
		FromTrain:   1,
		ToTrain:     10,
		Seats:       itinerary.PreferStandard,
	}
}

func newScheduler(t *testing.T, cfg monitor.Config, f *fakeScrape, tr *captureTransport) *monitor.Scheduler {
	t.Helper()
	d := notify.NewDispatcher(tr, nil)
	factory := func(ctx context.Context) (monitor.ScrapeClient, error) { return f, nil }
	return monitor.New(cfg, factory, d, nil, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached within 2s")
}

func waitDone(t *testing.T, s *monitor.Scheduler) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish within 2s")
	}
}

func stopAndWait(t *testing.T, s *monitor.Scheduler) {
	t.Helper()
	_ = s.Stop()
	waitDone(t, s)
}

func standardSnapshot(trains ...int) monitor.SeatSnapshot {
	snap := monitor.SeatSnapshot{Taken: time.Now()}
	for i := 1; i <= itinerary.MaxTrains; i++ {
		ts := monitor.TrainStatus{Index: i}
		for _, n := range trains {
			if n == i {
				ts.Standard = true
			}
		}
		snap.Trains = append(snap.Trains, ts)
	}
	return snap
}

func TestStartIsIdempotent(t *testing.T) {
	f := &fakeScrape{}
	s := newScheduler(t, fastConfig(), f, &captureTransport{})
	q := testQuery()

	if err := s.Start(q); err != nil {
		t.Fatal(err)
	}
	defer stopAndWait(t, s)

	if err := s.Start(q); err != nil {
		t.Fatalf("second start: %v", err)
	}
	st := s.Status()
	if st.Status != monitor.StatusRunning {
		t.Fatalf("status = %s", st.Status)
	}
	if st.Itinerary == nil || st.Itinerary.Origin != "A" {
		t.Fatalf("itinerary changed: %+v", st.Itinerary)
	}
}

func TestStopWithinBound(t *testing.T) {
	f := &fakeScrape{}
	s := newScheduler(t, fastConfig(), f, &captureTransport{})
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Status().Checks >= 1 })

	start := time.Now()
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, s)
	if d := time.Since(start); d > time.Second {
		t.Fatalf("stop latency %v", d)
	}
	if st := s.Status(); st.Status != monitor.StatusStopped {
		t.Fatalf("status = %s", st.Status)
	}
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if !closed {
		t.Fatal("scrape session not closed")
	}
}

func TestStartAfterTerminalRequiresReset(t *testing.T) {
	f := &fakeScrape{}
	s := newScheduler(t, fastConfig(), f, &captureTransport{})
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	stopAndWait(t, s)

	if err := s.Start(testQuery()); !errors.Is(err, monitor.ErrRunFinished) {
		t.Fatalf("err = %v, want ErrRunFinished", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if st := s.Status(); st.Status != monitor.StatusIdle || st.Itinerary != nil {
		t.Fatalf("state after reset: %+v", st)
	}
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	stopAndWait(t, s)
}

func TestFailureCeilingFailsRun(t *testing.T) {
	f := &fakeScrape{results: []result{{err: monitor.Transient("search", errors.New("boom"))}}}
	s := newScheduler(t, fastConfig(), f, &captureTransport{})
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, s)

	st := s.Status()
	if st.Status != monitor.StatusFailed {
		t.Fatalf("status = %s", st.Status)
	}
	if st.LastError == "" {
		t.Fatal("last error empty")
	}
	// ceiling 2: the third consecutive failure exceeds it
	if st.Failures != 3 {
		t.Fatalf("failures = %d, want 3", st.Failures)
	}
}

func TestFailureCounterResetsOnSuccess(t *testing.T) {
	boom := monitor.Transient("search", errors.New("blip"))
	f := &fakeScrape{results: []result{
		{err: boom},
		{err: boom},
		{snap: standardSnapshot()},
	}}
	s := newScheduler(t, fastConfig(), f, &captureTransport{})
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	defer stopAndWait(t, s)

	waitFor(t, func() bool {
		st := s.Status()
		return st.Checks >= 3 && st.Failures == 0 && st.LastError == ""
	})
}

func TestDedupAcrossCycles(t *testing.T) {
	tr := &captureTransport{}
	f := &fakeScrape{results: []result{{snap: standardSnapshot(1, 7)}}}
	s := newScheduler(t, fastConfig(), f, tr)
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	// Let the same availability be observed on at least five cycles.
	waitFor(t, func() bool { return s.Status().Checks >= 5 })
	stopAndWait(t, s)

	if got := tr.alerts(); got != 2 {
		t.Fatalf("alerts = %d, want exactly 2 (trains 1 and 7)", got)
	}
}

func TestTransportFailureDoesNotStopLoop(t *testing.T) {
	tr := &captureTransport{err: errors.New("webhook unreachable")}
	f := &fakeScrape{results: []result{{snap: standardSnapshot(4)}}}
	s := newScheduler(t, fastConfig(), f, tr)
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Status().Checks >= 3 })
	stopAndWait(t, s)

	if st := s.Status(); st.Status != monitor.StatusStopped {
		t.Fatalf("status = %s, want stopped", st.Status)
	}
}

func TestAutoBookSucceeds(t *testing.T) {
	cfg := fastConfig()
	cfg.AutoBook = true
	f := &fakeScrape{results: []result{{snap: standardSnapshot(2)}}}
	s := newScheduler(t, cfg, f, &captureTransport{})
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, s)

	if st := s.Status(); st.Status != monitor.StatusSucceeded {
		t.Fatalf("status = %s", st.Status)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.booked) != 1 || f.booked[0].Train != 2 || f.booked[0].Class != itinerary.ClassStandard {
		t.Fatalf("booked = %+v", f.booked)
	}
}

func TestAutoBookFailureKeepsPolling(t *testing.T) {
	cfg := fastConfig()
	cfg.AutoBook = true
	f := &fakeScrape{
		results: []result{{snap: standardSnapshot(2)}},
		bookErr: &monitor.BookingError{Train: 2, Class: itinerary.ClassStandard, Reason: "seat taken"},
	}
	s := newScheduler(t, cfg, f, &captureTransport{})
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Status().Checks >= 3 })
	stopAndWait(t, s)

	if st := s.Status(); st.Status != monitor.StatusStopped {
		t.Fatalf("status = %s, want stopped (booking failure is transient)", st.Status)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	// dedup: the opening is only "newly available" once, so one attempt
	if len(f.booked) != 1 {
		t.Fatalf("booking attempts = %d, want 1", len(f.booked))
	}
}

func TestAuthErrorIsFatal(t *testing.T) {
	f := &fakeScrape{loginErrs: []error{&monitor.AuthError{Reason: "bad credentials"}}}
	s := newScheduler(t, fastConfig(), f, &captureTransport{})
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, s)

	st := s.Status()
	if st.Status != monitor.StatusFailed {
		t.Fatalf("status = %s", st.Status)
	}
	if !strings.Contains(st.LastError, "authentication") {
		t.Fatalf("last error = %q", st.LastError)
	}
}

func TestFatalScrapeErrorFailsRun(t *testing.T) {
	f := &fakeScrape{results: []result{{err: monitor.Fatal("search", errors.New("layout changed"))}}}
	s := newScheduler(t, fastConfig(), f, &captureTransport{})
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, s)

	if st := s.Status(); st.Status != monitor.StatusFailed {
		t.Fatalf("status = %s", st.Status)
	}
}

func TestTransientLoginRetries(t *testing.T) {
	f := &fakeScrape{
		loginErrs: []error{monitor.Transient("login page", errors.New("timeout"))},
		results:   []result{{snap: standardSnapshot()}},
	}
	s := newScheduler(t, fastConfig(), f, &captureTransport{})
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	defer stopAndWait(t, s)

	waitFor(t, func() bool { return s.Status().Checks >= 1 })
	f.mu.Lock()
	logins := f.logins
	f.mu.Unlock()
	if logins < 2 {
		t.Fatalf("logins = %d, want retry after transient failure", logins)
	}
}

func TestStandbyOpeningDispatched(t *testing.T) {
	cfg := fastConfig()
	cfg.Standby = true
	tr := &captureTransport{}
	snap := standardSnapshot()
	snap.Trains[5].Standby = true // train 6 waitlist only
	f := &fakeScrape{results: []result{{snap: snap}}}
	s := newScheduler(t, cfg, f, tr)
	if err := s.Start(testQuery()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Status().Checks >= 2 })
	stopAndWait(t, s)

	if got := tr.alerts(); got != 1 {
		t.Fatalf("alerts = %d, want 1 standby alert", got)
	}
}
