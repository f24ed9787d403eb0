package hv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	channels := constantChannels(1000, 1240, 600)
	channels[0] = series(G1Top, [2]float64{1000, 600}, [2]float64{1072, 550}, [2]float64{1096, 600}, [2]float64{1240, 600})

	unified, err := Unify(channels, 8*time.Second, Span{})
	require.NoError(t, err)

	current, err := Aggregate(unified, DefaultConversionFactor)
	require.NoError(t, err)
	require.Equal(t, unified.Len(), current.Len())

	for i, ts := range current.Timestamps {
		sec := ts.Unix()
		if sec >= 1072 && sec < 1096 {
			assert.InDelta(t, 4150/4.7, current.Current[i], 1e-9, "t=%d", sec)
		} else {
			assert.InDelta(t, 4200/4.7, current.Current[i], 1e-9, "t=%d", sec)
		}
	}
}

func TestAggregate_InvalidInput(t *testing.T) {
	unified, err := Unify(constantChannels(0, 10, 1), time.Second, Span{})
	require.NoError(t, err)

	_, err = Aggregate(unified, 0)
	assert.Error(t, err)

	unified.Values[3] = unified.Values[3][:2]
	_, err = Aggregate(unified, DefaultConversionFactor)
	assert.Error(t, err)
}

func TestHistogram_Mode(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   int
		ok     bool
	}{
		{"empty", nil, 0, false},
		{"single", []float64{690.2}, 690, true},
		{"rounds half away from zero", []float64{689.5, 689.5, 690.4}, 690, true},
		{"majority", []float64{690, 690.1, 689.9, 700, 700.3}, 690, true},
		{"tie picks smallest", []float64{700, 700, 690, 690, 695}, 690, true},
		{"ignores NaN", []float64{0 / zero(), 12}, 12, true},
		{"negative values", []float64{-3.4, -3.2, 5}, -3, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHistogram()
			for _, v := range tc.values {
				h.Update(v)
			}

			mode, ok := h.Mode()
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, mode)
		})
	}
}

func zero() float64 { return 0 }

func TestHistogram_Clear(t *testing.T) {
	h := NewHistogram()
	h.Update(1)
	h.Update(2)
	require.EqualValues(t, 2, h.Count())

	h.Clear()

	_, ok := h.Mode()
	assert.False(t, ok)
	assert.Zero(t, h.Count())
}

func TestEstimateMode_RestrictsToWindow(t *testing.T) {
	current := &CurrentSeries{
		Timestamps: []time.Time{ts(0), ts(10), ts(20), ts(30), ts(40), ts(50)},
		Current:    []float64{500, 500, 690, 690.4, 500, 500},
	}

	mode, ok := EstimateMode(current, ts(10), ts(40))
	require.True(t, ok)
	assert.Equal(t, 690, mode)

	_, ok = EstimateMode(current, ts(100), ts(200))
	assert.False(t, ok)
}

func TestPlantMode(t *testing.T) {
	mode, ok := PlantMode([]int{690, 700, 690, 680, 700})
	require.True(t, ok)
	assert.Equal(t, 690, mode)

	_, ok = PlantMode(nil)
	assert.False(t, ok)
}
