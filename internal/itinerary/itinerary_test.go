package itinerary

import (
	"errors"
	"testing"
	"time"
)

func futureDate() string {
	return time.Now().AddDate(0, 0, 30).Format("20060102")
}

func validRaw() Raw {
	return Raw{
		Origin:      "동탄",
		Destination: "동대구",
		Date:        futureDate(),
		Hour:        "18",
		FromTrain:   1,
		ToTrain:     10,
		Seats:       "standard",
	}
}

func TestValidateOK(t *testing.T) {
	q, err := Validate(validRaw())
	if err != nil {
		t.Fatal(err)
	}
	if q.Origin != "동탄" || q.Destination != "동대구" {
		t.Fatalf("stations mangled: %+v", q)
	}
	if q.Hour != "18" {
		t.Fatalf("hour = %q, want 18", q.Hour)
	}
	if q.Seats != PreferStandard {
		t.Fatalf("seats = %q", q.Seats)
	}
}

func TestValidateAcceptsDashedDate(t *testing.T) {
	raw := validRaw()
	raw.Date = time.Now().AddDate(0, 0, 30).Format("2006-01-02")
	q, err := Validate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Date) != 8 {
		t.Fatalf("date not normalised: %q", q.Date)
	}
}

func TestValidateNormalisesHour(t *testing.T) {
	raw := validRaw()
	raw.Hour = "8"
	q, err := Validate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if q.Hour != "08" {
		t.Fatalf("hour = %q, want 08", q.Hour)
	}
}

func TestValidateDefaultsSeatsToBoth(t *testing.T) {
	raw := validRaw()
	raw.Seats = ""
	q, err := Validate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if q.Seats != PreferBoth {
		t.Fatalf("seats = %q, want both", q.Seats)
	}
	if n := len(q.Classes()); n != 2 {
		t.Fatalf("classes = %d, want 2", n)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Raw)
		field  string
	}{
		{"missing origin", func(r *Raw) { r.Origin = " " }, "origin"},
		{"same stations", func(r *Raw) { r.Destination = r.Origin }, "destination"},
		{"bad date", func(r *Raw) { r.Date = "not-a-date" }, "date"},
		{"odd hour", func(r *Raw) { r.Hour = "17" }, "hour"},
		{"hour out of grid", func(r *Raw) { r.Hour = "24" }, "hour"},
		{"from below 1", func(r *Raw) { r.FromTrain = 0 }, "from_train"},
		{"to above max", func(r *Raw) { r.ToTrain = 11 }, "to_train"},
		{"inverted range", func(r *Raw) { r.FromTrain = 5; r.ToTrain = 3 }, "from_train"},
		{"unknown seats", func(r *Raw) { r.Seats = "first" }, "seats"},
		{"past departure", func(r *Raw) { r.Date = "20200101" }, "date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRaw()
			tc.mutate(&raw)
			_, err := Validate(raw)
			if err == nil {
				t.Fatal("expected error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type %T", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestValidatePastHourSameDay(t *testing.T) {
	// A date of today with an hour that has already passed must be rejected.
	now := time.Date(2030, 5, 1, 17, 0, 0, 0, seoul)
	raw := validRaw()
	raw.Date = "20300501"
	raw.Hour = "16"
	if _, err := validate(raw, now); err == nil {
		t.Fatal("expected past-window rejection")
	}
	raw.Hour = "18"
	if _, err := validate(raw, now); err != nil {
		t.Fatalf("future hour rejected: %v", err)
	}
}
