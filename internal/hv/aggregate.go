package hv

import "fmt"

// DefaultConversionFactor converts the summed superchamber voltage (V) to
// the equivalent divider current (uA) of the GE1/1 HV divider (4.7 MOhm).
const DefaultConversionFactor = 4.7

// Aggregate sums the filled channel voltages at each grid point and divides
// by the conversion factor, giving the superchamber's equivalent current.
func Aggregate(unified *UnifiedSeries, conversionFactor float64) (*CurrentSeries, error) {
	if conversionFactor <= 0 {
		return nil, fmt.Errorf("conversion factor must be positive: %g", conversionFactor)
	}
	for i, values := range unified.Values {
		if len(values) != unified.Len() {
			return nil, fmt.Errorf("channel %s has %d values on a %d point grid", unified.Channels[i], len(values), unified.Len())
		}
	}

	current := &CurrentSeries{
		Timestamps: unified.Timestamps,
		Current:    make([]float64, unified.Len()),
	}
	for j := range current.Current {
		var sum float64
		for i := range unified.Values {
			sum += unified.Values[i][j]
		}
		current.Current[j] = sum / conversionFactor
	}
	return current, nil
}
