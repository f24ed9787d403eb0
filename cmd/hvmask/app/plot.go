package app

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/hv-mask/internal/analysis"
	"github.com/roman-kulish/hv-mask/internal/hv"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5
	yLabels        = 6
	xLabels        = 8

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 70
	defaultBottomBorder = 50
	defaultRightBorder  = 20

	defaultTimeFormat = "15:04:05"
)

var (
	curveColor    = color.Black
	windowColor   = colorful.Hsv(220, 0.8, 0.8)
	expectedColor = colorful.Hsv(120, 0.8, 0.6)
	bandColor     = colorful.Hsv(120, 0.15, 1)
	maskedColor   = colorful.Hsv(0, 0.25, 1)
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for the current scale
	Bottom int // Space for the time scale and information bar
	Right  int // Right padding
}

// PlotSink renders the equivalent current of every superchamber with its run
// window, expected level and masked lumisections to
// <directory>/<run>/<DCS name>.png
type PlotSink struct {
	directory string
	width     int
	height    int
	threshold float64
	borders   BorderConfig
	font      *truetype.Font
}

// NewPlotSink creates a plot sink writing under directory
func NewPlotSink(config *PlotsConfig, threshold float64) (*PlotSink, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &PlotSink{
		directory: config.Directory,
		width:     config.Width,
		height:    config.Height,
		threshold: threshold,
		borders: BorderConfig{
			Top:    defaultTopBorder,
			Left:   defaultLeftBorder,
			Bottom: defaultBottomBorder,
			Right:  defaultRightBorder,
		},
		font: parsedFont,
	}, nil
}

// Path returns the image path of a superchamber plot
func (s *PlotSink) Path(run int, sc hv.SuperChamber) string {
	return filepath.Join(s.directory, strconv.Itoa(run), sc.DCSName()+".png")
}

// Consume renders the trace and writes it as PNG
func (s *PlotSink) Consume(ctx context.Context, trace *analysis.Trace) (err error) {
	if err = ctx.Err(); err != nil {
		return
	}

	img, err := s.Render(trace)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", trace.SuperChamber, err)
	}

	path := s.Path(trace.Run, trace.SuperChamber)
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating plot directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating plot file: %w", err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing plot file: %w", cErr)
		}
	}()

	return png.Encode(out, img)
}

// plotArea maps times and currents to pixels of the plot area
type plotArea struct {
	rect       image.Rectangle
	start, end time.Time
	low, high  float64
}

func (a *plotArea) x(t time.Time) int {
	ratio := float64(t.Sub(a.start)) / float64(a.end.Sub(a.start))
	return a.rect.Min.X + int(math.Round(ratio*float64(a.rect.Dx()-1)))
}

func (a *plotArea) y(v float64) int {
	ratio := (v - a.low) / (a.high - a.low)
	return a.rect.Max.Y - 1 - int(math.Round(ratio*float64(a.rect.Dy()-1)))
}

// Render draws the trace
func (s *PlotSink) Render(trace *analysis.Trace) (*image.RGBA, error) {
	current := trace.Current
	if current == nil || current.Len() == 0 {
		return nil, fmt.Errorf("no current series")
	}

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := s.area(trace)
	window := trace.Window

	// Masked lumisections, then the tolerated band around the expected current
	for _, d := range trace.Decisions {
		if d.Mask.IsFull() {
			fillRect(img, image.Rect(area.x(window.Start), area.rect.Min.Y, area.x(window.Stop)+1, area.rect.Max.Y), maskedColor)
			continue
		}
		for _, ls := range d.Mask.Lumisections() {
			from := window.Start.Add(time.Duration(ls) * window.LumisectionDuration)
			to := from.Add(window.LumisectionDuration)
			fillRect(img, image.Rect(area.x(from), area.rect.Min.Y, area.x(to)+1, area.rect.Max.Y), maskedColor)
		}
	}

	fillRect(img, image.Rect(area.rect.Min.X, area.y(trace.Expected+s.threshold), area.rect.Max.X, area.y(trace.Expected-s.threshold)+1), bandColor)
	drawLine(img, area.rect.Min.X, area.y(trace.Expected), area.rect.Max.X-1, area.y(trace.Expected), expectedColor)

	for _, t := range []time.Time{window.Start, window.Stop} {
		drawLine(img, area.x(t), area.rect.Min.Y, area.x(t), area.rect.Max.Y-1, windowColor)
	}

	// Step curve: the value holds until the next grid point
	for i := 1; i < current.Len(); i++ {
		x0, x1 := area.x(current.Timestamps[i-1]), area.x(current.Timestamps[i])
		y0, y1 := area.y(current.Current[i-1]), area.y(current.Current[i])
		drawLine(img, x0, y0, x1, y0, curveColor)
		drawLine(img, x1, y0, x1, y1, curveColor)
	}

	ann, err := s.newAnnotator()
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, &area, trace, s.threshold); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}
	return img, nil
}

func (s *PlotSink) area(trace *analysis.Trace) plotArea {
	current := trace.Current

	area := plotArea{
		rect: image.Rect(
			s.borders.Left,
			s.borders.Top,
			s.width-s.borders.Right,
			s.height-s.borders.Bottom,
		),
		start: current.Timestamps[0],
		end:   current.Timestamps[current.Len()-1],
		low:   trace.Expected - 2*s.threshold,
		high:  trace.Expected + 2*s.threshold,
	}
	if trace.Window.Start.Before(area.start) {
		area.start = trace.Window.Start
	}
	if trace.Window.Stop.After(area.end) {
		area.end = trace.Window.Stop
	}
	if !area.end.After(area.start) {
		area.end = area.start.Add(time.Second)
	}

	for _, v := range current.Current {
		area.low = math.Min(area.low, v)
		area.high = math.Max(area.high, v)
	}
	pad := (area.high - area.low) * 0.05
	area.low, area.high = area.low-pad, area.high+pad
	if area.high == area.low {
		area.high++
	}
	return area
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
}

func (s *PlotSink) newAnnotator() (*annotator, error) {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(s.font)
	ctx.SetFontSize(fontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		fontFace: truetype.NewFace(s.font, &truetype.Options{
			Size:    fontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, area *plotArea, trace *analysis.Trace, threshold float64) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawTitle(area, trace); err != nil {
		return fmt.Errorf("drawing title: %w", err)
	}
	if err := a.drawCurrentScale(img, area); err != nil {
		return fmt.Errorf("drawing current scale: %w", err)
	}
	if err := a.drawTimeScale(img, area); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, area, trace, threshold); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawTitle(area *plotArea, trace *analysis.Trace) error {
	title := fmt.Sprintf("Run %d  %s  Ieq (uA)", trace.Run, trace.SuperChamber)
	pt := freetype.Pt(area.rect.Min.X, area.rect.Min.Y-a.fontHeight()/2)
	_, err := a.context.DrawString(title, pt)
	return err
}

func (a *annotator) drawCurrentScale(img *image.RGBA, area *plotArea) error {
	step := (area.high - area.low) / yLabels
	descent := a.fontFace.Metrics().Descent.Round()

	for i := 0; i <= yLabels; i++ {
		v := area.low + float64(i)*step
		y := area.y(v)

		drawLine(img, area.rect.Min.X-tickMarkLength, y, area.rect.Min.X-1, y, color.Black)

		label := humanize.FtoaWithDigits(math.Round(v*10)/10, 1)
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(area.rect.Min.X-tickMarkLength-3-width, y+a.fontHeight()/2-descent)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing current label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area *plotArea) error {
	step := area.end.Sub(area.start) / xLabels
	textY := area.rect.Max.Y + tickMarkLength + a.fontHeight()

	for i := 0; i <= xLabels; i++ {
		t := area.start.Add(time.Duration(i) * step)
		x := area.x(t)

		drawLine(img, x, area.rect.Max.Y, x, area.rect.Max.Y+tickMarkLength-1, color.Black)

		label := t.UTC().Format(defaultTimeFormat)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, area *plotArea, trace *analysis.Trace, threshold float64) error {
	masked := make(map[int]struct{})
	full := false
	for _, d := range trace.Decisions {
		full = full || d.Mask.IsFull()
		for _, ls := range d.Mask.Lumisections() {
			masked[ls] = struct{}{}
		}
	}

	maskedInfo := fmt.Sprintf("%s of %s LS masked", humanize.Comma(int64(len(masked))), humanize.Comma(int64(trace.Window.Lumisections)))
	if full {
		maskedInfo = "whole run masked"
	}

	info := fmt.Sprintf("Expected %s +/- %s uA; %s; start %s UTC",
		humanize.FtoaWithDigits(trace.Expected, 2),
		humanize.FtoaWithDigits(threshold, 2),
		maskedInfo,
		trace.Window.Start.UTC().Format(time.DateTime))

	textY := img.Bounds().Max.Y - a.fontFace.Metrics().Descent.Round() - 3
	_, err := a.context.DrawString(info, freetype.Pt(area.rect.Min.X, textY))
	return err
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

// drawLine draws a straight line with Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		if e2 := 2 * e; e2 >= dy {
			e += dy
			x0 += sx
		} else {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
