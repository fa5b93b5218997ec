package health

import "time"

// Outcome classifies a single probe attempt.
type Outcome uint8

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure         // connection error or non-2xx status
	OutcomeTimeout         // probe exceeded its per-attempt deadline
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Record is one probe observation. Records live only inside the window.
type Record struct {
	Time    time.Time
	Outcome Outcome
}

// Window is an owned, bounded ring buffer of the most recent probe records.
// Its size is the consecutive-failure threshold: classification only ever
// needs the last N outcomes.
type Window struct {
	records []Record
	next    int
	count   int
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{records: make([]Record, size)}
}

// Push adds a record, evicting the oldest once the window is full.
func (w *Window) Push(r Record) {
	w.records[w.next] = r
	w.next = (w.next + 1) % len(w.records)
	if w.count < len(w.records) {
		w.count++
	}
}

// Len reports how many records the window currently holds.
func (w *Window) Len() int {
	return w.count
}

// Full reports whether the window holds its maximum number of records.
func (w *Window) Full() bool {
	return w.count == len(w.records)
}

// FailureStreak counts the unbroken run of non-success outcomes ending at
// the most recent record. A single success resets the streak to zero.
func (w *Window) FailureStreak() int {
	streak := 0
	for i := 0; i < w.count; i++ {
		idx := (w.next - 1 - i + len(w.records)) % len(w.records)
		if w.records[idx].Outcome == OutcomeSuccess {
			break
		}
		streak++
	}
	return streak
}
