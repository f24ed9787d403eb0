package hv

import (
	"errors"
	"fmt"
	"time"
)

const (
	G1Top Channel = "G1Top"
	G2Top Channel = "G2Top"
	G3Top Channel = "G3Top"
	G1Bot Channel = "G1Bot"
	G2Bot Channel = "G2Bot"
	G3Bot Channel = "G3Bot"
	Drift Channel = "Drift"

	// MinInformativeSamples is the number of samples below which a channel
	// carries no usable voltage history.
	MinInformativeSamples = 2
)

var (
	// ErrDataUnavailable is returned when a superchamber's channel data is
	// missing, too short or malformed. Such a superchamber is fully masked.
	ErrDataUnavailable = errors.New("channel data unavailable")

	// Channels lists the seven HV channels of a superchamber in the order
	// used by the unified series.
	Channels = []Channel{G1Top, G2Top, G3Top, G1Bot, G2Bot, G3Bot, Drift}
)

// Channel names one of the seven HV channels feeding a superchamber
type Channel string

func (c Channel) String() string {
	return string(c)
}

// IsValid reports whether c is one of the seven known channels
func (c Channel) IsValid() bool {
	for _, ch := range Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// Sample is a single monitored voltage reading. DCS stores readings only on
// change, so consecutive samples are irregularly spaced.
type Sample struct {
	Timestamp time.Time // UTC time of the reading
	Value     float64   // Monitored voltage in V
}

// ChannelSeries is the ordered voltage history of one HV channel
type ChannelSeries struct {
	Channel Channel
	Samples []Sample
}

// First returns the earliest sample of the series. It must not be called on
// an empty series.
func (s *ChannelSeries) First() Sample {
	return s.Samples[0]
}

// Last returns the latest sample of the series. It must not be called on an
// empty series.
func (s *ChannelSeries) Last() Sample {
	return s.Samples[len(s.Samples)-1]
}

// Validate checks the series is informative and strictly increasing in time.
// All failures wrap ErrDataUnavailable.
func (s *ChannelSeries) Validate() error {
	if len(s.Samples) < MinInformativeSamples {
		return fmt.Errorf("%w: channel %s has %d sample(s)", ErrDataUnavailable, s.Channel, len(s.Samples))
	}
	for i := 1; i < len(s.Samples); i++ {
		if !s.Samples[i].Timestamp.After(s.Samples[i-1].Timestamp) {
			return fmt.Errorf("%w: channel %s is not strictly increasing at sample %d", ErrDataUnavailable, s.Channel, i)
		}
	}
	return nil
}

// UnifiedSeries holds every channel of a superchamber filled on one common,
// evenly spaced time grid. Values[i][j] is the value of Channels[i] at
// Timestamps[j].
type UnifiedSeries struct {
	Timestamps []time.Time
	Channels   []Channel
	Values     [][]float64
}

// Len returns the number of grid points
func (u *UnifiedSeries) Len() int {
	return len(u.Timestamps)
}

// CurrentSeries is the equivalent divider current (Ieq, uA) of a
// superchamber on the unified grid.
type CurrentSeries struct {
	Timestamps []time.Time
	Current    []float64
}

// Len returns the number of grid points
func (c *CurrentSeries) Len() int {
	return len(c.Timestamps)
}
