package run

import (
	"fmt"
	"time"
)

// Window is the UTC time range of a run and its lumisection bookkeeping
type Window struct {
	Start               time.Time     // Run start, UTC
	Stop                time.Time     // Start + Lumisections × LumisectionDuration
	Lumisections        int           // Number of lumisections in the run
	LumisectionDuration time.Duration // Duration of one lumisection
}

// NewWindow builds the window of a run starting at start
func NewWindow(start time.Time, lumisections int, lumisectionDuration time.Duration) (Window, error) {
	if lumisections <= 0 {
		return Window{}, fmt.Errorf("lumisection count must be positive: %d", lumisections)
	}
	if lumisectionDuration <= 0 {
		return Window{}, fmt.Errorf("lumisection duration must be positive: %s", lumisectionDuration)
	}

	start = start.UTC()
	return Window{
		Start:               start,
		Stop:                start.Add(time.Duration(lumisections) * lumisectionDuration),
		Lumisections:        lumisections,
		LumisectionDuration: lumisectionDuration,
	}, nil
}

// Contains reports whether t lies strictly inside the run
func (w Window) Contains(t time.Time) bool {
	return t.After(w.Start) && t.Before(w.Stop)
}

// Lumisection returns the zero-based lumisection index of t,
// floor((t - Start) / LumisectionDuration). t must not precede Start.
func (w Window) Lumisection(t time.Time) int {
	return int(t.Sub(w.Start) / w.LumisectionDuration)
}

// Duration returns the run length
func (w Window) Duration() time.Duration {
	return w.Stop.Sub(w.Start)
}
