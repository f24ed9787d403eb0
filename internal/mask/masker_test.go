package mask

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hv-mask/internal/hv"
	"github.com/roman-kulish/hv-mask/internal/run"
)

func testWindow(t *testing.T) run.Window {
	t.Helper()

	w, err := run.NewWindow(time.Unix(1000, 0), 10, 24*time.Second)
	require.NoError(t, err)
	return w
}

// currentSeries builds a series on a 4 second grid over [1000, 1240] with
// the value returned by fn for each grid timestamp
func currentSeries(fn func(sec int64) float64) *hv.CurrentSeries {
	c := &hv.CurrentSeries{}
	for sec := int64(1000); sec <= 1240; sec += 4 {
		c.Timestamps = append(c.Timestamps, time.Unix(sec, 0).UTC())
		c.Current = append(c.Current, fn(sec))
	}
	return c
}

func TestMasker_ThresholdBoundary(t *testing.T) {
	const expected = 893.0

	tests := []struct {
		name  string
		value float64
		bad   bool
	}{
		{"exactly above", expected + 5, true},
		{"exactly below", expected - 5, true},
		{"just inside above", expected + 4.999, false},
		{"just inside below", expected - 4.999, false},
		{"far away", 0, true},
		{"on target", expected, false},
	}

	m, err := NewMasker(DefaultThreshold, DefaultCoverage)
	require.NoError(t, err)
	w := testWindow(t)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			current := currentSeries(func(sec int64) float64 {
				if sec == 1100 {
					return tc.value
				}
				return expected
			})

			got := m.Mask(current, w, expected)
			require.False(t, got.IsFull())
			if tc.bad {
				assert.Equal(t, []int{4}, got.Lumisections())
			} else {
				assert.True(t, got.IsEmpty())
			}
		})
	}
}

func TestMasker_Deduplicates(t *testing.T) {
	m, err := NewMasker(DefaultThreshold, DefaultCoverage)
	require.NoError(t, err)

	// six grid points fall in [1072, 1096)
	current := currentSeries(func(sec int64) float64 {
		if sec >= 1072 && sec < 1096 {
			return 880
		}
		return 893.6
	})

	got := m.Mask(current, testWindow(t), 893)
	assert.Equal(t, []int{3}, got.Lumisections())
	assert.Equal(t, 1, got.Len())
}

func TestMasker_IgnoresPointsOutsideWindow(t *testing.T) {
	m, err := NewMasker(DefaultThreshold, DefaultCoverage)
	require.NoError(t, err)

	current := &hv.CurrentSeries{
		Timestamps: []time.Time{time.Unix(900, 0), time.Unix(1000, 0), time.Unix(1240, 0), time.Unix(1300, 0)},
		Current:    []float64{0, 0, 0, 0},
	}

	got := m.Mask(current, testWindow(t), 893)
	assert.True(t, got.IsEmpty())
}

func TestMasker_WholeRunCollapse(t *testing.T) {
	tests := []struct {
		name     string
		coverage float64
		badFrom  int64
		full     bool
		count    int
	}{
		{"every lumisection", 1.0, 1000, true, 0},
		{"nine of ten, strict", 1.0, 1024, false, 9},
		{"nine of ten, relaxed", 0.9, 1024, true, 0},
		{"eight of ten, relaxed", 0.9, 1048, false, 8},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := NewMasker(DefaultThreshold, tc.coverage)
			require.NoError(t, err)

			current := currentSeries(func(sec int64) float64 {
				if sec >= tc.badFrom {
					return 0
				}
				return 893
			})

			got := m.Mask(current, testWindow(t), 893)
			assert.Equal(t, tc.full, got.IsFull())
			assert.Equal(t, tc.count, got.Len())
		})
	}
}

func TestNewMasker_Invalid(t *testing.T) {
	for _, tc := range []struct{ threshold, coverage float64 }{
		{0, 1},
		{-1, 1},
		{5, 0},
		{5, 1.1},
	} {
		_, err := NewMasker(tc.threshold, tc.coverage)
		assert.Error(t, err, "threshold=%g coverage=%g", tc.threshold, tc.coverage)
	}
}
