package health

import (
	"testing"
	"time"
)

func push(w *Window, outcomes ...Outcome) {
	for _, o := range outcomes {
		w.Push(Record{Time: time.Now(), Outcome: o})
	}
}

func TestWindowBounded(t *testing.T) {
	w := NewWindow(3)
	push(w, OutcomeSuccess, OutcomeFailure, OutcomeSuccess, OutcomeFailure)

	if w.Len() != 3 {
		t.Errorf("Len = %d, want 3", w.Len())
	}
	if !w.Full() {
		t.Error("window not full after 4 pushes into size 3")
	}
}

func TestFailureStreak(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []Outcome
		want     int
	}{
		{name: "empty", outcomes: nil, want: 0},
		{name: "all success", outcomes: []Outcome{OutcomeSuccess, OutcomeSuccess}, want: 0},
		{name: "trailing failure", outcomes: []Outcome{OutcomeSuccess, OutcomeFailure}, want: 1},
		{name: "success resets streak", outcomes: []Outcome{OutcomeFailure, OutcomeFailure, OutcomeSuccess}, want: 0},
		{name: "full failure window", outcomes: []Outcome{OutcomeFailure, OutcomeTimeout, OutcomeFailure}, want: 3},
		{name: "timeout counts as failure", outcomes: []Outcome{OutcomeSuccess, OutcomeTimeout}, want: 1},
		{name: "streak after eviction", outcomes: []Outcome{OutcomeSuccess, OutcomeFailure, OutcomeFailure, OutcomeFailure}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(3)
			push(w, tt.outcomes...)
			if got := w.FailureStreak(); got != tt.want {
				t.Errorf("FailureStreak = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeSuccess.String() != "success" || OutcomeFailure.String() != "failure" || OutcomeTimeout.String() != "timeout" {
		t.Error("unexpected outcome strings")
	}
}
