// Package itinerary models the operator's search target: which route, which
// departure date/hour, which rows of the schedule table, and which seat
// classes are acceptable.
package itinerary

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxTrains is the number of rows the SRT schedule page shows per search.
const MaxTrains = 10

type SeatClass string

const (
	ClassSpecial  SeatClass = "special"
	ClassStandard SeatClass = "standard"
	// ClassStandby is the 예약대기 (waitlist) column. It is never part of a
	// seat preference; the scheduler appends standby openings separately.
	ClassStandby SeatClass = "standby"
)

// Preference is the operator-facing seat-class choice.
type Preference string

const (
	PreferStandard Preference = "standard"
	PreferSpecial  Preference = "special"
	PreferBoth     Preference = "both"
)

// Raw is an unvalidated itinerary as it arrives from a form or CLI flags.
type Raw struct {
	Origin      string
	Destination string
	Date        string // YYYYMMDD or YYYY-MM-DD
	Hour        string // even hour on the 00..22 grid
	FromTrain   int
	ToTrain     int
	Seats       string // standard | special | both (empty = both)
}

// Query is a validated itinerary. Immutable once a run starts.
type Query struct {
	Origin      string     `json:"origin"`
	Destination string     `json:"destination"`
	Date        string     `json:"date"` // YYYYMMDD, the select value the SRT site uses
	Hour        string     `json:"hour"` // "00".."22", even
	FromTrain   int        `json:"from_train"`
	ToTrain     int        `json:"to_train"`
	Seats       Preference `json:"seats"`
}

// Classes expands the seat preference into the concrete classes to evaluate,
// in booking-priority order (special first, as the site lists it first).
func (q Query) Classes() []SeatClass {
	switch q.Seats {
	case PreferStandard:
		return []SeatClass{ClassStandard}
	case PreferSpecial:
		return []SeatClass{ClassSpecial}
	default:
		return []SeatClass{ClassSpecial, ClassStandard}
	}
}

// Summary renders a one-line description used in alerts and the panel.
func (q Query) Summary() string {
	return fmt.Sprintf("%s → %s %s-%s-%s %s:00 trains %d-%d (%s)",
		q.Origin, q.Destination,
		q.Date[:4], q.Date[4:6], q.Date[6:8],
		q.Hour, q.FromTrain, q.ToTrain, q.Seats)
}

// ValidationError names the offending field. A query is rejected whole; it is
// never partially applied or silently corrected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// seoul is the timezone the SRT schedule operates in. LoadLocation can fail
// on systems without tzdata, so fall back to a fixed KST offset.
var seoul = func() *time.Location {
	if loc, err := time.LoadLocation("Asia/Seoul"); err == nil {
		return loc
	}
	return time.FixedZone("KST", 9*60*60)
}()

// Validate checks a raw itinerary and returns an immutable Query. A departure
// window already in the past is rejected here rather than surfacing later as
// a failed run.
func Validate(raw Raw) (Query, error) {
	return validate(raw, time.Now())
}

func validate(raw Raw, now time.Time) (Query, error) {
	origin := strings.TrimSpace(raw.Origin)
	destination := strings.TrimSpace(raw.Destination)
	if origin == "" {
		return Query{}, &ValidationError{Field: "origin", Reason: "required"}
	}
	if destination == "" {
		return Query{}, &ValidationError{Field: "destination", Reason: "required"}
	}
	if origin == destination {
		return Query{}, &ValidationError{Field: "destination", Reason: "must differ from origin"}
	}

	date, err := parseDate(raw.Date)
	if err != nil {
		return Query{}, &ValidationError{Field: "date", Reason: err.Error()}
	}

	hour, err := parseHour(raw.Hour)
	if err != nil {
		return Query{}, &ValidationError{Field: "hour", Reason: err.Error()}
	}

	if raw.FromTrain < 1 {
		return Query{}, &ValidationError{Field: "from_train", Reason: "must be >= 1"}
	}
	if raw.ToTrain > MaxTrains {
		return Query{}, &ValidationError{Field: "to_train", Reason: fmt.Sprintf("must be <= %d", MaxTrains)}
	}
	if raw.FromTrain > raw.ToTrain {
		return Query{}, &ValidationError{Field: "from_train", Reason: "must be <= to_train"}
	}

	seats, err := parseSeats(raw.Seats)
	if err != nil {
		return Query{}, &ValidationError{Field: "seats", Reason: err.Error()}
	}

	// Reject itineraries whose departure window has already passed.
	dep, err := time.ParseInLocation("20060102 15", date+" "+hour, seoul)
	if err != nil {
		return Query{}, &ValidationError{Field: "date", Reason: "not a calendar date"}
	}
	if dep.Before(now) {
		return Query{}, &ValidationError{Field: "date", Reason: "departure window already passed"}
	}

	return Query{
		Origin:      origin,
		Destination: destination,
		Date:        date,
		Hour:        hour,
		FromTrain:   raw.FromTrain,
		ToTrain:     raw.ToTrain,
		Seats:       seats,
	}, nil
}

func parseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("required")
	}
	// The panel's date input submits YYYY-MM-DD; the SRT site (and the CLI
	// default) use YYYYMMDD.
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, seoul); err == nil {
			return t.Format("20060102"), nil
		}
	}
	return "", fmt.Errorf("want YYYYMMDD, got %q", s)
}

func parseHour(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("required")
	}
	h, err := strconv.Atoi(s)
	if err != nil {
		return "", fmt.Errorf("want an even hour 00..22, got %q", s)
	}
	if h < 0 || h > 22 || h%2 != 0 {
		return "", fmt.Errorf("want an even hour 00..22, got %q", s)
	}
	return fmt.Sprintf("%02d", h), nil
}

func parseSeats(s string) (Preference, error) {
	switch Preference(strings.ToLower(strings.TrimSpace(s))) {
	case PreferStandard:
		return PreferStandard, nil
	case PreferSpecial:
		return PreferSpecial, nil
	case PreferBoth, "":
		return PreferBoth, nil
	default:
		return "", fmt.Errorf("want standard, special or both, got %q", s)
	}
}
