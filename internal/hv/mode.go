package hv

import (
	"math"
	"time"
)

// Histogram counts values in 1 uA bins centred on integers
type Histogram struct {
	bins       map[int]uint64 // Map of bin value to count
	totalCount uint64
}

// NewHistogram creates an empty histogram
func NewHistogram() *Histogram {
	return &Histogram{bins: make(map[int]uint64)}
}

// getBin rounds a value to its bin, half away from zero
func getBin(value float64) int {
	return int(math.Round(value))
}

// Update adds a value to the histogram. NaN and infinite values are ignored.
func (h *Histogram) Update(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	h.bins[getBin(value)]++
	h.totalCount++
}

// Count returns the number of values added
func (h *Histogram) Count() uint64 {
	return h.totalCount
}

// Mode returns the most frequent bin. Ties are broken by the smallest bin
// value. ok is false when the histogram is empty.
func (h *Histogram) Mode() (mode int, ok bool) {
	var best uint64
	for bin, count := range h.bins {
		if count > best || (count == best && bin < mode) {
			mode, best = bin, count
		}
	}
	return mode, best > 0
}

// Clear resets the histogram
func (h *Histogram) Clear() {
	clear(h.bins)
	h.totalCount = 0
}

// EstimateMode returns the modal current of the series over the grid points
// strictly inside (start, stop). ok is false when no point falls inside.
func EstimateMode(current *CurrentSeries, start, stop time.Time) (mode int, ok bool) {
	h := NewHistogram()
	for i, t := range current.Timestamps {
		if t.After(start) && t.Before(stop) {
			h.Update(current.Current[i])
		}
	}
	return h.Mode()
}

// PlantMode returns the mode of per-superchamber modes, used as the
// expected current for superchambers without an explicit target.
func PlantMode(modes []int) (mode int, ok bool) {
	h := NewHistogram()
	for _, m := range modes {
		h.Update(float64(m))
	}
	return h.Mode()
}
