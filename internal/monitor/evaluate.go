package monitor

import "github.com/example/srt-watcher/internal/itinerary"

// Evaluate turns a snapshot into the list of bookable (train, class) pairs
// matching the query. Pure function: only trains inside [FromTrain, ToTrain]
// with an available flag for one of the query's classes count. An empty
// snapshot yields an empty result.
func Evaluate(snap SeatSnapshot, q itinerary.Query) []Opening {
	var out []Opening
	for _, t := range snap.Trains {
		if t.Index < q.FromTrain || t.Index > q.ToTrain {
			continue
		}
		for _, c := range q.Classes() {
			if t.available(c) {
				out = append(out, Opening{Train: t.Index, Class: c})
			}
		}
	}
	return out
}

// StandbyOpenings lists trains in range whose waitlist is open while none of
// the queried seat classes are. The scheduler appends these only when standby
// watching is enabled.
func StandbyOpenings(snap SeatSnapshot, q itinerary.Query) []Opening {
	var out []Opening
	for _, t := range snap.Trains {
		if t.Index < q.FromTrain || t.Index > q.ToTrain || !t.Standby {
			continue
		}
		seatOpen := false
		for _, c := range q.Classes() {
			if t.available(c) {
				seatOpen = true
				break
			}
		}
		if !seatOpen {
			out = append(out, Opening{Train: t.Index, Class: itinerary.ClassStandby})
		}
	}
	return out
}
