package hv

import (
	"fmt"
	"time"
)

// Span is a closed time interval [Start, End]
type Span struct {
	Start time.Time
	End   time.Time
}

// Range returns the widest span in which at least one of the channels has
// data: from the earliest first sample to the latest last sample.
func Range(channels []ChannelSeries) (Span, error) {
	if len(channels) == 0 {
		return Span{}, fmt.Errorf("%w: no channels", ErrDataUnavailable)
	}

	var span Span
	for i := range channels {
		if len(channels[i].Samples) == 0 {
			return Span{}, fmt.Errorf("%w: channel %s is empty", ErrDataUnavailable, channels[i].Channel)
		}

		first, last := channels[i].First().Timestamp, channels[i].Last().Timestamp
		if i == 0 || first.Before(span.Start) {
			span.Start = first
		}
		if i == 0 || last.After(span.End) {
			span.End = last
		}
	}
	return span, nil
}

// Widen extends the span so it covers other as well
func (s Span) Widen(other Span) Span {
	if other.Start.Before(s.Start) {
		s.Start = other.Start
	}
	if other.End.After(s.End) {
		s.End = other.End
	}
	return s
}

// Covers reports whether s fully contains other
func (s Span) Covers(other Span) bool {
	return !s.Start.After(other.Start) && !s.End.Before(other.End)
}

// Grid returns evenly spaced timestamps from span.Start, step apart, up to
// and including span.End when it falls on the grid.
func Grid(span Span, step time.Duration) []time.Time {
	if step <= 0 || span.End.Before(span.Start) {
		return nil
	}

	n := int(span.End.Sub(span.Start)/step) + 1
	grid := make([]time.Time, n)
	for i := range grid {
		grid[i] = span.Start.Add(time.Duration(i) * step)
	}
	return grid
}

// Fill evaluates the series on the grid using step-hold ("previous value")
// interpolation: every grid point takes the latest sample at or before it.
// Points before the first sample take the first value and points after the
// last sample take the last value. The grid must be sorted.
func Fill(series *ChannelSeries, grid []time.Time) []float64 {
	values := make([]float64, len(grid))
	if len(series.Samples) == 0 {
		return values
	}

	next := 0 // index of the first sample after the current grid point
	held := series.Samples[0].Value
	for i, t := range grid {
		for next < len(series.Samples) && !series.Samples[next].Timestamp.After(t) {
			held = series.Samples[next].Value
			next++
		}
		values[i] = held
	}
	return values
}

// Unify validates the seven channels of a superchamber and fills them on a
// common grid with the given granularity. The grid spans the union of the
// channels' ranges, widened to include cover when it is not zero. Missing,
// duplicated or non-informative channels produce an error wrapping
// ErrDataUnavailable.
func Unify(channels []ChannelSeries, granularity time.Duration, cover Span) (*UnifiedSeries, error) {
	if granularity <= 0 {
		return nil, fmt.Errorf("granularity must be positive: %s", granularity)
	}

	ordered, err := orderChannels(channels)
	if err != nil {
		return nil, err
	}

	span, err := Range(ordered)
	if err != nil {
		return nil, err
	}
	if !cover.Start.IsZero() || !cover.End.IsZero() {
		span = span.Widen(cover)
	}

	grid := Grid(span, granularity)
	unified := &UnifiedSeries{
		Timestamps: grid,
		Channels:   make([]Channel, len(ordered)),
		Values:     make([][]float64, len(ordered)),
	}
	for i := range ordered {
		unified.Channels[i] = ordered[i].Channel
		unified.Values[i] = Fill(&ordered[i], grid)
	}
	return unified, nil
}

// orderChannels returns the channels in Channels order after checking that
// each of the seven is present exactly once and is informative.
func orderChannels(channels []ChannelSeries) ([]ChannelSeries, error) {
	byName := make(map[Channel]int, len(channels))
	for i := range channels {
		if !channels[i].Channel.IsValid() {
			return nil, fmt.Errorf("%w: unknown channel %q", ErrDataUnavailable, channels[i].Channel)
		}
		if _, ok := byName[channels[i].Channel]; ok {
			return nil, fmt.Errorf("%w: duplicate channel %s", ErrDataUnavailable, channels[i].Channel)
		}
		byName[channels[i].Channel] = i
	}

	ordered := make([]ChannelSeries, len(Channels))
	for i, ch := range Channels {
		idx, ok := byName[ch]
		if !ok {
			return nil, fmt.Errorf("%w: missing channel %s", ErrDataUnavailable, ch)
		}
		if err := channels[idx].Validate(); err != nil {
			return nil, err
		}
		ordered[i] = channels[idx]
	}
	return ordered, nil
}
