package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/hv-mask/internal/analysis"
	"github.com/roman-kulish/hv-mask/internal/archive"
	"github.com/roman-kulish/hv-mask/internal/mask"
	"github.com/roman-kulish/hv-mask/internal/run"
	"github.com/roman-kulish/hv-mask/internal/runinfo"
	"github.com/roman-kulish/hv-mask/internal/storage"
)

const outputFileFormat = "ChamberOFF_Run_%d.json"

// WithStore sets the store used to cache archives and record mask documents
func WithStore(store storage.Store) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithPlots renders diagnostic plots for every processed run
func WithPlots(sink analysis.Sink) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.plots = sink
	}
}

// WithRefetch acquires archives again even when a cached copy exists
func WithRefetch(refetch bool) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.refetch = refetch
	}
}

// Orchestrator generates the mask document of a run: it reads the run sheet,
// resolves the run window, loads the HV archive, runs the analysis over
// every superchamber and writes the document.
type Orchestrator struct {
	config   *Config
	registry *runinfo.Registry
	resolver *run.Resolver
	loader   *archive.Loader

	logger  *slog.Logger
	store   storage.Store
	plots   analysis.Sink
	refetch bool
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(config *Config, logger *slog.Logger, options ...func(*Orchestrator)) (*Orchestrator, error) {
	resolver, err := run.NewResolver(config.Run.Location)
	if err != nil {
		return nil, fmt.Errorf("creating run window resolver: %w", err)
	}
	if config.Run.Layout != "" {
		resolver.Layout = config.Run.Layout
	}
	resolver.Ambiguous = config.Run.Ambiguous
	resolver.Nonexistent = config.Run.Nonexistent

	o := Orchestrator{
		config:   config,
		registry: &runinfo.Registry{Pattern: config.Run.Sheets},
		resolver: resolver,
		logger:   logger,
	}

	for _, option := range options {
		option(&o)
	}

	loaderOptions := []func(*archive.Loader){archive.WithLogger(logger)}
	if o.store != nil {
		loaderOptions = append(loaderOptions, archive.WithCache(o.store))
	}
	if config.Archive.Attempts > 0 {
		loaderOptions = append(loaderOptions, archive.WithAttempts(config.Archive.Attempts))
	}
	if config.Archive.AttemptTimeout > 0 {
		loaderOptions = append(loaderOptions, archive.WithAttemptTimeout(time.Duration(config.Archive.AttemptTimeout)))
	}
	o.loader = archive.NewLoader(&archive.FileFetcher{Pattern: config.Archive.Dumps}, loaderOptions...)

	return &o, nil
}

// Process generates, writes and records the mask document of one run and
// returns the path of the written document
func (o *Orchestrator) Process(ctx context.Context, request RunRequest) (string, error) {
	logger := o.logger.With(slog.Int("run", request.Run))

	sheet, err := o.registry.Sheet(ctx, request.Run)
	if err != nil {
		return "", fmt.Errorf("loading run sheet: %w", err)
	}

	window, err := o.resolver.Window(sheet.Start, sheet.Lumisections, time.Duration(o.config.Run.LumisectionDuration))
	if err != nil {
		return "", fmt.Errorf("resolving run window: %w", err)
	}

	var overrides analysis.Overrides
	if o.config.Quality.Enabled {
		overrides = analysis.NewOverrides(sheet.BadChambers(runinfo.Policy{
			StatusMask: o.config.Quality.StatusMask,
			MaxErrors:  o.config.Quality.MaxErrors,
		})...)
	}

	source, err := o.loader.Load(ctx, request.Run, o.refetch)
	if err != nil {
		return "", fmt.Errorf("loading HV archive: %w", err)
	}

	processor, err := o.newProcessor()
	if err != nil {
		return "", err
	}

	report, err := processor.Process(ctx, analysis.Job{
		Run:       request.Run,
		Window:    window,
		Expected:  request.Expected,
		Overrides: overrides,
	}, source)
	if err != nil {
		return "", fmt.Errorf("analyzing run: %w", err)
	}

	path := filepath.Join(o.config.Output.Directory, fmt.Sprintf(outputFileFormat, request.Run))
	if err = writeDocument(path, report.Document); err != nil {
		return "", fmt.Errorf("writing mask document: %w", err)
	}

	if o.store != nil {
		if err = o.record(ctx, request, report); err != nil {
			logger.Warn(fmt.Sprintf("failed to record mask document: %s", err.Error()))
		}
	}

	full, partial, clean := report.Document.Stats()
	attrs := []any{
		slog.String("start", window.Start.Format(time.RFC3339)),
		slog.Int("lumisections", window.Lumisections),
		slog.String("events", humanize.Comma(sheet.Events)),
		slog.Group("chambers",
			slog.Int("full", full),
			slog.Int("partial", partial),
			slog.Int("clean", clean),
		),
		slog.String("path", path),
	}
	if report.PlantMode != nil {
		attrs = append(attrs, slog.Int("plantMode", *report.PlantMode))
	}
	logger.Info("mask document written", attrs...)

	return path, nil
}

func (o *Orchestrator) newProcessor() (*analysis.Processor, error) {
	params, err := o.config.params()
	if err != nil {
		return nil, fmt.Errorf("invalid analysis parameters: %w", err)
	}
	targets, err := o.config.Analysis.targets()
	if err != nil {
		return nil, err
	}

	options := []func(*analysis.Processor){
		analysis.WithLogger(o.logger),
		analysis.WithConcurrency(o.config.Settings.Concurrency),
		analysis.WithDetector(o.config.Analysis.Detector),
		analysis.WithFallback(o.config.Analysis.Fallback),
		analysis.WithTargets(targets),
	}
	if o.plots != nil {
		options = append(options, analysis.WithSink(o.plots))
	}

	return analysis.NewProcessor(params, options...)
}

func (o *Orchestrator) record(ctx context.Context, request RunRequest, report *analysis.Report) error {
	p, err := json.Marshal(&o.config.Analysis)
	if err != nil {
		return fmt.Errorf("encoding analysis configuration: %w", err)
	}
	config := string(p)

	jobID, err := o.store.StoreMaskDocument(ctx, storage.MaskJob{
		Run:      request.Run,
		Detector: o.config.Analysis.Detector,
		Expected: request.Expected,
		Config:   &config,
	}, report.Document)
	if err != nil {
		return err
	}

	o.logger.Debug("mask document recorded", slog.Int("run", request.Run), slog.String("jobID", jobID.String()))
	return nil
}

// writeDocument writes the document next to its destination and renames it
// into place, so readers never see a partial file
func writeDocument(path string, doc *mask.Document) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err = encodeDocument(tmp, doc); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}

func encodeDocument(w io.Writer, doc *mask.Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding mask document: %w", err)
	}
	return nil
}
