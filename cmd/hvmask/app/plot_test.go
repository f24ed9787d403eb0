package app

import (
	"context"
	"image/color"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hv-mask/internal/analysis"
	"github.com/roman-kulish/hv-mask/internal/hv"
	"github.com/roman-kulish/hv-mask/internal/mask"
	"github.com/roman-kulish/hv-mask/internal/run"
)

func testTrace(t *testing.T) *analysis.Trace {
	t.Helper()

	window, err := run.NewWindow(time.Unix(1000, 0), 10, 24*time.Second)
	require.NoError(t, err)

	current := &hv.CurrentSeries{}
	for ts := int64(996); ts <= 1244; ts += 4 {
		v := 893.6
		if ts >= 1072 && ts < 1096 {
			v = 883
		}
		current.Timestamps = append(current.Timestamps, time.Unix(ts, 0).UTC())
		current.Current = append(current.Current, v)
	}

	layers := dipSC.Layers()
	return &analysis.Trace{
		Run:          testRun,
		SuperChamber: dipSC,
		Current:      current,
		Window:       window,
		Expected:     894,
		Decisions: [2]analysis.Decision{
			{Chamber: layers[0], Mask: mask.Partial(3), Reason: mask.ReasonVoltage},
			{Chamber: layers[1], Mask: mask.Partial(3), Reason: mask.ReasonVoltage},
		},
	}
}

func newTestPlotSink(t *testing.T) *PlotSink {
	t.Helper()

	config := NewConfig().Plots
	config.Directory = t.TempDir()

	s, err := NewPlotSink(&config, mask.DefaultThreshold)
	require.NoError(t, err)
	return s
}

func TestPlotSink_Render(t *testing.T) {
	s := newTestPlotSink(t)
	trace := testTrace(t)

	img, err := s.Render(trace)
	require.NoError(t, err)
	assert.Equal(t, defaultPlotWidth, img.Bounds().Dx())
	assert.Equal(t, defaultPlotHeight, img.Bounds().Dy())

	area := s.area(trace)
	assert.True(t, area.rect.In(img.Bounds()))
	assert.LessOrEqual(t, area.low, 883.0)
	assert.GreaterOrEqual(t, area.high, 894+2*mask.DefaultThreshold)

	// Masked lumisection 3 is shaded near the top of the plot area
	ls3 := trace.Window.Start.Add(3*trace.Window.LumisectionDuration + trace.Window.LumisectionDuration/2)
	r, g, b, _ := img.At(area.x(ls3), area.rect.Min.Y+2).RGBA()
	mr, mg, mb, _ := maskedColor.RGBA()
	assert.Equal(t, [3]uint32{mr >> 8, mg >> 8, mb >> 8}, [3]uint32{r >> 8, g >> 8, b >> 8})

	// An unmasked lumisection is not
	ls7 := trace.Window.Start.Add(7*trace.Window.LumisectionDuration + trace.Window.LumisectionDuration/2)
	assert.Equal(t, color.RGBAModel.Convert(color.White), img.At(area.x(ls7), area.rect.Min.Y+2))
}

func TestPlotSink_Consume(t *testing.T) {
	s := newTestPlotSink(t)
	trace := testTrace(t)

	require.NoError(t, s.Consume(context.Background(), trace))

	f, err := os.Open(s.Path(testRun, dipSC))
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, defaultPlotWidth, img.Bounds().Dx())
}

func TestPlotSink_NoCurrent(t *testing.T) {
	s := newTestPlotSink(t)
	trace := testTrace(t)
	trace.Current = nil

	assert.Error(t, s.Consume(context.Background(), trace))
}
