// Package history persists poll attempts and dispatched alerts when a
// database is configured. Failures are logged and swallowed; the watch loop
// never waits on the audit trail.
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/srt-watcher/internal/db"
	"github.com/example/srt-watcher/internal/itinerary"
	"github.com/example/srt-watcher/internal/monitor"
)

type Repo struct {
	db  *db.DB
	log *slog.Logger
}

func NewRepo(d *db.DB, log *slog.Logger) *Repo {
	if log == nil {
		log = slog.Default()
	}
	return &Repo{db: d, log: log}
}

func (r *Repo) RecordAttempt(ctx context.Context, a monitor.Attempt) {
	err := r.db.Exec(ctx,
		`INSERT INTO poll_attempts(at, ok, openings, failures, error) VALUES ($1,$2,$3,$4,$5)`,
		a.At, a.OK, a.Openings, a.Failures, a.Err)
	if err != nil {
		r.log.Warn("record attempt failed", "error", err)
	}
}

func (r *Repo) RecordAlert(ctx context.Context, q itinerary.Query, o monitor.Opening) {
	err := r.db.Exec(ctx,
		`INSERT INTO alerts(origin, destination, travel_date, travel_hour, train_no, seat_class)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		q.Origin, q.Destination, q.Date, q.Hour, o.Train, string(o.Class))
	if err != nil {
		r.log.Warn("record alert failed", "error", err)
	}
}

// AttemptRow is one persisted poll attempt, newest first from RecentAttempts.
type AttemptRow struct {
	At       time.Time
	OK       bool
	Openings int
	Failures int
	Err      string
}

func (r *Repo) RecentAttempts(ctx context.Context, limit int) ([]AttemptRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT at, ok, openings, failures, error FROM poll_attempts ORDER BY at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRow
	for rows.Next() {
		var a AttemptRow
		if err := rows.Scan(&a.At, &a.OK, &a.Openings, &a.Failures, &a.Err); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
