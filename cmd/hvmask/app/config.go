package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/hv-mask/internal/analysis"
	"github.com/roman-kulish/hv-mask/internal/hv"
	"github.com/roman-kulish/hv-mask/internal/mask"
	"github.com/roman-kulish/hv-mask/internal/run"
)

const (
	defaultGranularity         = 4 * time.Second
	defaultLumisectionDuration = 23300 * time.Millisecond
	defaultDumps               = "HV_Run_{run}.json"
	defaultSheets              = "run_{run}.yaml"
	defaultPlotWidth           = 1200
	defaultPlotHeight          = 600
)

// Duration is a time.Duration read from strings such as "23.3s"
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalText parses environment overrides
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Run      RunConfig      `yaml:"run"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Quality  QualityConfig  `yaml:"quality"`
	Storage  StorageConfig  `yaml:"storage"`
	Output   OutputConfig   `yaml:"output"`
	Plots    PlotsConfig    `yaml:"plots"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel    string `yaml:"logLevel" env:"HVMASK_LOG_LEVEL"`
	Concurrency int    `yaml:"concurrency" env:"HVMASK_CONCURRENCY"`
}

// AnalysisConfig holds the constants of the mask analysis
type AnalysisConfig struct {
	Detector         string             `yaml:"detector"`
	Granularity      Duration           `yaml:"granularity" env:"HVMASK_GRANULARITY"`
	ConversionFactor float64            `yaml:"conversionFactor"`
	Threshold        float64            `yaml:"threshold" env:"HVMASK_THRESHOLD"`
	Coverage         float64            `yaml:"coverage"`
	Fallback         analysis.Fallback  `yaml:"fallback"`
	Targets          map[string]float64 `yaml:"targets"` // DCS folder name to expected Ieq
}

// RunConfig describes how run windows are derived from run sheets
type RunConfig struct {
	Sheets              string                `yaml:"sheets" env:"HVMASK_RUN_SHEETS"`
	LumisectionDuration Duration              `yaml:"lumisectionDuration"`
	Location            string                `yaml:"location"`
	Layout              string                `yaml:"layout"`
	Ambiguous           run.AmbiguousPolicy   `yaml:"ambiguous"`
	Nonexistent         run.NonexistentPolicy `yaml:"nonexistent"`
}

// ArchiveConfig describes where HV archives are acquired from
type ArchiveConfig struct {
	Dumps          string   `yaml:"dumps" env:"HVMASK_ARCHIVE_DUMPS"`
	Attempts       uint     `yaml:"attempts"`
	AttemptTimeout Duration `yaml:"attemptTimeout"`
}

// QualityConfig selects the chambers forced bad by the run sheet
type QualityConfig struct {
	Enabled    bool   `yaml:"enabled"`
	StatusMask uint32 `yaml:"statusMask"`
	MaxErrors  int64  `yaml:"maxErrors"`
}

// StorageConfig represents storage settings. An empty database disables the
// archive cache and the mask history.
type StorageConfig struct {
	Database string `yaml:"database" env:"HVMASK_DATABASE"`
}

// OutputConfig represents mask document output settings
type OutputConfig struct {
	Directory string `yaml:"directory" env:"HVMASK_OUTPUT_DIR"`
}

// PlotsConfig represents diagnostic plot settings
type PlotsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"HVMASK_PLOTS"`
	Directory string `yaml:"directory" env:"HVMASK_PLOTS_DIR"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
}

// NewConfig returns the configuration defaults
func NewConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel: slog.LevelInfo.String(),
		},
		Analysis: AnalysisConfig{
			Detector:         hv.DefaultDetector,
			Granularity:      Duration(defaultGranularity),
			ConversionFactor: hv.DefaultConversionFactor,
			Threshold:        mask.DefaultThreshold,
			Coverage:         mask.DefaultCoverage,
			Fallback:         analysis.FallbackPlant,
		},
		Run: RunConfig{
			Sheets:              defaultSheets,
			LumisectionDuration: Duration(defaultLumisectionDuration),
			Location:            run.DefaultLocation,
			Layout:              run.DefaultLayout,
			Ambiguous:           run.AmbiguousEarlier,
			Nonexistent:         run.NonexistentReject,
		},
		Archive: ArchiveConfig{
			Dumps: defaultDumps,
		},
		Quality: QualityConfig{
			MaxErrors: -1,
		},
		Output: OutputConfig{
			Directory: ".",
		},
		Plots: PlotsConfig{
			Directory: "plots",
			Width:     defaultPlotWidth,
			Height:    defaultPlotHeight,
		},
	}
}

// LoadConfig reads the YAML configuration file over the defaults and applies
// HVMASK_* environment overrides
func LoadConfig(path string) (*Config, error) {
	config := NewConfig()

	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	if err = yaml.Unmarshal(p, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err = env.Parse(config); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Settings.Concurrency < 0 {
		return fmt.Errorf("invalid concurrency: %d", c.Settings.Concurrency)
	}

	if c.Analysis.Detector == "" {
		return errors.New("detector is required")
	}
	if c.Analysis.Granularity <= 0 {
		return fmt.Errorf("granularity must be positive: %s", c.Analysis.Granularity)
	}
	if c.Run.LumisectionDuration <= 0 {
		return fmt.Errorf("lumisection duration must be positive: %s", c.Run.LumisectionDuration)
	}
	if c.Analysis.Granularity >= c.Run.LumisectionDuration {
		return fmt.Errorf("granularity %s must be below the lumisection duration %s", c.Analysis.Granularity, c.Run.LumisectionDuration)
	}
	if c.Analysis.ConversionFactor <= 0 {
		return fmt.Errorf("conversion factor must be positive: %g", c.Analysis.ConversionFactor)
	}
	if _, err := mask.NewMasker(c.Analysis.Threshold, c.Analysis.Coverage); err != nil {
		return err
	}
	if err := c.Analysis.Fallback.Validate(); err != nil {
		return err
	}
	if _, err := c.Analysis.targets(); err != nil {
		return err
	}

	if c.Run.Sheets == "" {
		return errors.New("run sheets location is required")
	}
	if _, err := time.LoadLocation(c.Run.Location); err != nil {
		return fmt.Errorf("invalid location: %w", err)
	}
	if err := c.Run.Ambiguous.Validate(); err != nil {
		return err
	}
	if err := c.Run.Nonexistent.Validate(); err != nil {
		return err
	}

	if c.Archive.Dumps == "" {
		return errors.New("archive dumps location is required")
	}
	if c.Archive.AttemptTimeout < 0 {
		return fmt.Errorf("attempt timeout must not be negative: %s", c.Archive.AttemptTimeout)
	}

	if c.Plots.Enabled && (c.Plots.Width <= 0 || c.Plots.Height <= 0) {
		return fmt.Errorf("invalid plot size %dx%d", c.Plots.Width, c.Plots.Height)
	}
	return nil
}

// LogLevel returns the configured log level
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.Settings.LogLevel))
	return level
}

// params returns the analysis parameters of the configuration
func (c *Config) params() (analysis.Params, error) {
	masker, err := mask.NewMasker(c.Analysis.Threshold, c.Analysis.Coverage)
	if err != nil {
		return analysis.Params{}, err
	}
	return analysis.Params{
		Granularity:      time.Duration(c.Analysis.Granularity),
		ConversionFactor: c.Analysis.ConversionFactor,
		Masker:           masker,
	}, nil
}

func (a *AnalysisConfig) targets() (map[hv.SuperChamber]float64, error) {
	targets := make(map[hv.SuperChamber]float64, len(a.Targets))
	for name, ieq := range a.Targets {
		sc, err := hv.ParseDCSName(name)
		if err != nil {
			return nil, fmt.Errorf("invalid target: %w", err)
		}
		if ieq <= 0 {
			return nil, fmt.Errorf("invalid target for %s: %g", name, ieq)
		}
		targets[sc] = ieq
	}
	return targets, nil
}
