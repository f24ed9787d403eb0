package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/roman-kulish/hv-mask/internal/hv"
	"github.com/roman-kulish/hv-mask/internal/mask"
	"github.com/roman-kulish/hv-mask/internal/run"
)

const (
	// FallbackPlant uses the mode of per-superchamber modes for every
	// superchamber without an explicit target
	FallbackPlant Fallback = "plant"
	// FallbackChamber uses each superchamber's own modal current
	FallbackChamber Fallback = "chamber"
)

// ErrNoExpectedCurrent is set on results for which neither a target nor an
// estimate of the expected current exists
var ErrNoExpectedCurrent = errors.New("no expected current")

var validFallbacks = map[Fallback]struct{}{
	FallbackPlant:   {},
	FallbackChamber: {},
}

// Fallback selects how the expected current is estimated when none is given
type Fallback string

func (f Fallback) Validate() error {
	if _, ok := validFallbacks[f]; !ok {
		return fmt.Errorf("invalid expected current fallback: %q", f)
	}
	return nil
}

// Source provides the HV channel series of a superchamber
type Source interface {
	Channels(ctx context.Context, sc hv.SuperChamber) ([]hv.ChannelSeries, error)
}

// Trace is the per-superchamber intermediate handed to a Sink
type Trace struct {
	Run          int
	SuperChamber hv.SuperChamber
	Current      *hv.CurrentSeries
	Window       run.Window
	Expected     float64
	Decisions    [2]Decision
}

// Sink consumes analysis traces, e.g. for diagnostic plots. The analysis
// output does not depend on it.
type Sink interface {
	Consume(ctx context.Context, trace *Trace) error
}

// Job describes one run to process
type Job struct {
	Run       int
	Window    run.Window
	Expected  *float64 // Run-level expected current; nil to estimate it
	Overrides Overrides
}

// Report is the outcome of processing one run
type Report struct {
	Run       int
	Window    run.Window
	Document  *mask.Document
	PlantMode *int
	Results   []Result
}

// WithLogger sets the logger for the processor
func WithLogger(logger *slog.Logger) func(*Processor) {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithSink attaches a diagnostic sink
func WithSink(sink Sink) func(*Processor) {
	return func(p *Processor) {
		p.sink = sink
	}
}

// WithConcurrency bounds the number of superchambers processed at once
func WithConcurrency(n int) func(*Processor) {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithDetector sets the detector prefix of chamber names
func WithDetector(detector string) func(*Processor) {
	return func(p *Processor) {
		p.detector = detector
	}
}

// WithFallback sets how missing expected currents are estimated
func WithFallback(f Fallback) func(*Processor) {
	return func(p *Processor) {
		p.fallback = f
	}
}

// WithTargets sets explicit expected currents per superchamber. They take
// precedence over the run-level expected current.
func WithTargets(targets map[hv.SuperChamber]float64) func(*Processor) {
	return func(p *Processor) {
		p.targets = targets
	}
}

// Processor runs the analysis over every superchamber of the detector,
// one goroutine per superchamber, and gathers the masks into one document.
type Processor struct {
	params      Params
	detector    string
	fallback    Fallback
	targets     map[hv.SuperChamber]float64
	sink        Sink
	concurrency int
	logger      *slog.Logger
}

// NewProcessor creates a Processor with a discard logger
func NewProcessor(params Params, options ...func(*Processor)) (*Processor, error) {
	p := Processor{
		params:      params,
		detector:    hv.DefaultDetector,
		fallback:    FallbackPlant,
		concurrency: runtime.GOMAXPROCS(0),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&p)
	}

	if err := p.fallback.Validate(); err != nil {
		return nil, err
	}
	if p.params.Masker == nil {
		return nil, errors.New("masker is required")
	}

	return &p, nil
}

// Process analyzes one run. Channel data problems confined to a
// superchamber mask that superchamber and never fail the run; a cancelled
// context does.
func (p *Processor) Process(ctx context.Context, job Job, source Source) (*Report, error) {
	if err := p.params.Validate(job.Window); err != nil {
		return nil, fmt.Errorf("invalid analysis parameters: %w", err)
	}

	logger := p.logger.With(slog.Int("run", job.Run))
	scs := hv.AllSuperChambers()

	// Fan out: fetch, unify and aggregate each superchamber independently
	results := forEach(scs, p.concurrency, func(sc hv.SuperChamber) Result {
		channels, err := source.Channels(ctx, sc)
		if err != nil {
			return Result{SuperChamber: sc, Err: fmt.Errorf("%w: %w", hv.ErrDataUnavailable, err)}
		}

		current, err := Curve(channels, job.Window, p.params)
		return Result{SuperChamber: sc, Current: current, Err: err}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plantMode := p.resolveExpected(results, job, logger)

	results = forEach(results, p.concurrency, func(r Result) Result {
		r.Decisions = Decide(r.SuperChamber, r.Current, job.Window, r.Expected, job.Overrides, p.params.Masker)
		if errors.Is(r.Err, ErrNoExpectedCurrent) {
			for i := range r.Decisions {
				if r.Decisions[i].Reason == mask.ReasonDataUnavailable {
					r.Decisions[i].Reason = mask.ReasonNoExpectedCurrent
				}
			}
		}
		return r
	})

	// Fan in: a single writer builds the document
	doc := mask.NewDocument(p.detector)
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("superchamber fully masked", slog.String("superChamber", r.SuperChamber.String()), slog.String("reason", r.Err.Error()))
		}
		for _, d := range r.Decisions {
			doc.Set(d.Chamber, d.Mask, d.Reason)
		}
	}

	for id := range job.Overrides {
		doc.ForceFull(id, mask.ReasonQualityFlagged)
	}

	p.feedSink(ctx, job, results, logger)

	return &Report{
		Run:       job.Run,
		Window:    job.Window,
		Document:  doc,
		PlantMode: plantMode,
		Results:   results,
	}, nil
}

// resolveExpected sets the expected current of each result: explicit
// target, then the run-level value, then the configured fallback estimate.
// Results with no expected current are marked unavailable.
func (p *Processor) resolveExpected(results []Result, job Job, logger *slog.Logger) *int {
	modes := make(map[hv.SuperChamber]int, len(results))
	for _, r := range results {
		if r.Current == nil {
			continue
		}
		if mode, ok := hv.EstimateMode(r.Current, job.Window.Start, job.Window.Stop); ok {
			modes[r.SuperChamber] = mode
		}
	}

	var plantMode *int
	if len(modes) > 0 {
		all := make([]int, 0, len(modes))
		for _, m := range modes {
			all = append(all, m)
		}
		if mode, ok := hv.PlantMode(all); ok {
			plantMode = &mode
			logger.Info("estimated plant operating point", slog.Int("ieq", mode), slog.Int("superChambers", len(modes)))
		}
	}

	for i := range results {
		r := &results[i]
		if r.Current == nil {
			continue
		}

		if target, ok := p.targets[r.SuperChamber]; ok {
			r.Expected = target
			continue
		}
		if job.Expected != nil {
			r.Expected = *job.Expected
			continue
		}

		switch p.fallback {
		case FallbackChamber:
			if mode, ok := modes[r.SuperChamber]; ok {
				r.Expected = float64(mode)
				continue
			}
		default:
			if plantMode != nil {
				r.Expected = float64(*plantMode)
				continue
			}
		}

		r.Current = nil
		r.Err = ErrNoExpectedCurrent
	}
	return plantMode
}

func (p *Processor) feedSink(ctx context.Context, job Job, results []Result, logger *slog.Logger) {
	if p.sink == nil {
		return
	}

	for _, r := range results {
		if r.Current == nil {
			continue
		}

		trace := Trace{
			Run:          job.Run,
			SuperChamber: r.SuperChamber,
			Current:      r.Current,
			Window:       job.Window,
			Expected:     r.Expected,
			Decisions:    r.Decisions,
		}
		if err := p.sink.Consume(ctx, &trace); err != nil {
			logger.Warn(fmt.Sprintf("diagnostic sink failed: %s", err.Error()), slog.String("superChamber", r.SuperChamber.String()))
		}
	}
}

// forEach applies fn to every item with at most limit goroutines and
// returns the results in item order
func forEach[T, R any](items []T, limit int, fn func(T) R) []R {
	results := make([]R, len(items))
	sem := make(chan struct{}, max(limit, 1))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = fn(item)
		}()
	}
	wg.Wait()

	return results
}
