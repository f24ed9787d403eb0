package mask

import (
	"fmt"
	"math"

	"github.com/roman-kulish/hv-mask/internal/hv"
	"github.com/roman-kulish/hv-mask/internal/run"
)

const (
	// DefaultThreshold is the Ieq deviation, in uA, from which a grid point is bad
	DefaultThreshold = 5.0

	// DefaultCoverage is the fraction of bad lumisections from which the
	// whole run is masked
	DefaultCoverage = 1.0
)

// Masker flags lumisections whose equivalent current deviates from the
// expected value
type Masker struct {
	Threshold float64 // Deviation in uA; |I - expected| >= Threshold is bad
	Coverage  float64 // Fraction in (0, 1] of bad lumisections collapsing to a full mask
}

// NewMasker creates a masker after validating its parameters
func NewMasker(threshold, coverage float64) (*Masker, error) {
	m := &Masker{Threshold: threshold, Coverage: coverage}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Masker) Validate() error {
	if m.Threshold <= 0 || math.IsNaN(m.Threshold) {
		return fmt.Errorf("threshold must be positive: %g", m.Threshold)
	}
	if m.Coverage <= 0 || m.Coverage > 1 || math.IsNaN(m.Coverage) {
		return fmt.Errorf("coverage must be in (0, 1]: %g", m.Coverage)
	}
	return nil
}

// Mask returns the lumisections of the window during which the current
// deviates from expected by at least the threshold. Only grid points
// strictly inside the window are considered; grid points falling in the
// same lumisection count once. When the bad lumisections reach the coverage
// fraction of the run, the whole run is masked.
func (m *Masker) Mask(current *hv.CurrentSeries, window run.Window, expected float64) Mask {
	bad := Partial()
	for i, t := range current.Timestamps {
		if !window.Contains(t) {
			continue
		}
		if math.Abs(current.Current[i]-expected) >= m.Threshold {
			bad.add(window.Lumisection(t))
		}
	}

	return m.collapse(bad, window.Lumisections)
}

func (m *Masker) collapse(bad Mask, lumisections int) Mask {
	if bad.IsFull() || bad.Len() == 0 {
		return bad
	}
	if float64(bad.Len()) >= m.Coverage*float64(lumisections) {
		return Full()
	}
	return bad
}
