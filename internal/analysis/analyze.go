package analysis

import (
	"fmt"
	"time"

	"github.com/roman-kulish/hv-mask/internal/hv"
	"github.com/roman-kulish/hv-mask/internal/mask"
	"github.com/roman-kulish/hv-mask/internal/run"
)

// Params holds the physical and algorithmic constants of the analysis.
// They vary across deployments and are never process-wide.
type Params struct {
	Granularity      time.Duration // Maximum spacing of the unified grid; below the lumisection duration
	ConversionFactor float64       // Summed voltage (V) to Ieq (uA) divisor
	Masker           *mask.Masker
}

// Validate checks the parameters against the run window
func (p Params) Validate(window run.Window) error {
	if p.Granularity <= 0 {
		return fmt.Errorf("granularity must be positive: %s", p.Granularity)
	}
	if p.Granularity >= window.LumisectionDuration {
		return fmt.Errorf("granularity %s must be below the lumisection duration %s", p.Granularity, window.LumisectionDuration)
	}
	if p.ConversionFactor <= 0 {
		return fmt.Errorf("conversion factor must be positive: %g", p.ConversionFactor)
	}
	if p.Masker == nil {
		return fmt.Errorf("masker is required")
	}
	return p.Masker.Validate()
}

// Overrides is the set of chambers forced to a whole-run mask by an
// independent quality signal
type Overrides map[hv.ChamberID]struct{}

// NewOverrides builds an override set
func NewOverrides(ids ...hv.ChamberID) Overrides {
	o := make(Overrides, len(ids))
	for _, id := range ids {
		o[id] = struct{}{}
	}
	return o
}

// Has reports whether the chamber is forced bad
func (o Overrides) Has(id hv.ChamberID) bool {
	_, ok := o[id]
	return ok
}

// Decision is the mask of one chamber (layer)
type Decision struct {
	Chamber hv.ChamberID
	Mask    mask.Mask
	Reason  mask.Reason
}

// Result is the outcome of analyzing one superchamber
type Result struct {
	SuperChamber hv.SuperChamber
	Current      *hv.CurrentSeries // nil when the data was unavailable
	Expected     float64
	Decisions    [2]Decision
	Err          error // why Current is nil, wraps hv.ErrDataUnavailable
}

// Curve unifies the seven channels of a superchamber and converts them to
// its equivalent current. The grid is widened to cover the run window.
func Curve(channels []hv.ChannelSeries, window run.Window, params Params) (*hv.CurrentSeries, error) {
	unified, err := hv.Unify(channels, params.Granularity, hv.Span{Start: window.Start, End: window.Stop})
	if err != nil {
		return nil, err
	}
	return hv.Aggregate(unified, params.ConversionFactor)
}

// Decide masks both layers of a superchamber from its current series.
// A nil current (data unavailable) and forced overrides yield full masks.
func Decide(sc hv.SuperChamber, current *hv.CurrentSeries, window run.Window, expected float64, overrides Overrides, masker *mask.Masker) [2]Decision {
	var voltage mask.Mask
	reason := mask.ReasonVoltage
	if current == nil {
		voltage, reason = mask.Full(), mask.ReasonDataUnavailable
	} else {
		voltage = masker.Mask(current, window, expected)
	}

	var decisions [2]Decision
	for i, id := range sc.Layers() {
		decisions[i] = Decision{Chamber: id, Mask: voltage, Reason: reason}
		if overrides.Has(id) {
			decisions[i].Mask, decisions[i].Reason = mask.Full(), mask.ReasonQualityFlagged
		}
	}
	return decisions
}

// Analyze maps the seven channel series of a superchamber, the run window,
// the expected current and the forced overrides to the masks of both of its
// layers. It has no side effects.
func Analyze(sc hv.SuperChamber, channels []hv.ChannelSeries, window run.Window, expected float64, overrides Overrides, params Params) Result {
	current, err := Curve(channels, window, params)
	return Result{
		SuperChamber: sc,
		Current:      current,
		Expected:     expected,
		Decisions:    Decide(sc, current, window, expected, overrides, params.Masker),
		Err:          err,
	}
}
