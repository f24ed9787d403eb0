package hv

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func series(ch Channel, points ...[2]float64) ChannelSeries {
	s := ChannelSeries{Channel: ch}
	for _, p := range points {
		s.Samples = append(s.Samples, Sample{Timestamp: ts(int64(p[0])), Value: p[1]})
	}
	return s
}

func constantChannels(from, to int64, value float64) []ChannelSeries {
	channels := make([]ChannelSeries, len(Channels))
	for i, ch := range Channels {
		channels[i] = series(ch, [2]float64{float64(from), value}, [2]float64{float64(to), value})
	}
	return channels
}

func TestFill_StepHold(t *testing.T) {
	s := series(G1Top, [2]float64{100, 10}, [2]float64{110, 20}, [2]float64{130, 30})
	grid := []time.Time{ts(90), ts(100), ts(105), ts(109), ts(110), ts(129), ts(130), ts(200)}

	got := Fill(&s, grid)

	assert.Equal(t, []float64{10, 10, 10, 10, 20, 20, 30, 30}, got)
}

func TestFill_NeverInterpolates(t *testing.T) {
	s := series(Drift, [2]float64{0, 0}, [2]float64{100, 1000})
	grid := Grid(Span{Start: ts(0), End: ts(99)}, time.Second)

	for i, v := range Fill(&s, grid) {
		require.Equalf(t, 0.0, v, "grid point %d interpolated", i)
	}
}

func TestGrid(t *testing.T) {
	tests := []struct {
		name string
		span Span
		step time.Duration
		want int
	}{
		{"exact multiple", Span{ts(0), ts(100)}, 20 * time.Second, 6},
		{"remainder", Span{ts(0), ts(99)}, 20 * time.Second, 5},
		{"single point", Span{ts(5), ts(5)}, time.Second, 1},
		{"non-positive step", Span{ts(0), ts(10)}, 0, 0},
		{"inverted span", Span{ts(10), ts(0)}, time.Second, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			grid := Grid(tc.span, tc.step)
			require.Len(t, grid, tc.want)
			for i := 1; i < len(grid); i++ {
				assert.Equal(t, tc.step, grid[i].Sub(grid[i-1]))
			}
		})
	}
}

func TestUnify_CoversUnionOfRanges(t *testing.T) {
	channels := constantChannels(1000, 1200, 600)
	channels[2] = series(G3Top, [2]float64{950, 600}, [2]float64{1100, 610})
	channels[6] = series(Drift, [2]float64{1010, 500}, [2]float64{1300, 500})

	unified, err := Unify(channels, 10*time.Second, Span{})
	require.NoError(t, err)

	first, last := unified.Timestamps[0], unified.Timestamps[unified.Len()-1]
	assert.Equal(t, ts(950), first)
	assert.Equal(t, ts(1300), last)
	assert.Equal(t, Channels, unified.Channels)

	// G3Top holds its last value forward, Drift holds its first value backward
	assert.Equal(t, 610.0, unified.Values[2][unified.Len()-1])
	assert.Equal(t, 500.0, unified.Values[6][0])
}

func TestUnify_WidensToCover(t *testing.T) {
	channels := constantChannels(1000, 1100, 600)

	unified, err := Unify(channels, 4*time.Second, Span{Start: ts(1000), End: ts(1240)})
	require.NoError(t, err)

	assert.Equal(t, ts(1000), unified.Timestamps[0])
	assert.Equal(t, ts(1240), unified.Timestamps[unified.Len()-1])
	for _, values := range unified.Values {
		assert.Equal(t, 600.0, values[unified.Len()-1])
	}
}

func TestUnify_OrdersChannels(t *testing.T) {
	channels := constantChannels(0, 100, 1)
	reversed := make([]ChannelSeries, len(channels))
	for i := range channels {
		reversed[len(channels)-1-i] = channels[i]
	}

	unified, err := Unify(reversed, time.Second, Span{})
	require.NoError(t, err)
	assert.Equal(t, Channels, unified.Channels)
}

func TestUnify_DataUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]ChannelSeries) []ChannelSeries
	}{
		{"single sample", func(c []ChannelSeries) []ChannelSeries {
			c[3] = series(G1Bot, [2]float64{1000, 600})
			return c
		}},
		{"empty channel", func(c []ChannelSeries) []ChannelSeries {
			c[0].Samples = nil
			return c
		}},
		{"missing channel", func(c []ChannelSeries) []ChannelSeries {
			return c[:6]
		}},
		{"duplicate channel", func(c []ChannelSeries) []ChannelSeries {
			c[1].Channel = G1Top
			return c
		}},
		{"unknown channel", func(c []ChannelSeries) []ChannelSeries {
			c[1].Channel = "G4Top"
			return c
		}},
		{"unordered samples", func(c []ChannelSeries) []ChannelSeries {
			c[4] = series(G2Bot, [2]float64{1100, 600}, [2]float64{1000, 600})
			return c
		}},
		{"no channels", func([]ChannelSeries) []ChannelSeries {
			return nil
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unify(tc.mutate(constantChannels(1000, 1240, 600)), time.Second, Span{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDataUnavailable), "got %v", err)
		})
	}
}

func TestUnify_Deterministic(t *testing.T) {
	channels := constantChannels(1000, 1240, 600)
	channels[0] = series(G1Top, [2]float64{1000, 600}, [2]float64{1072, 550}, [2]float64{1096, 600}, [2]float64{1240, 600})

	a, err := Unify(channels, 5*time.Second, Span{})
	require.NoError(t, err)
	b, err := Unify(channels, 5*time.Second, Span{})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestUnify_InvalidGranularity(t *testing.T) {
	_, err := Unify(constantChannels(0, 10, 1), 0, Span{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDataUnavailable))
}
