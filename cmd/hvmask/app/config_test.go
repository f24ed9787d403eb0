package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hv-mask/internal/analysis"
	"github.com/roman-kulish/hv-mask/internal/hv"
	"github.com/roman-kulish/hv-mask/internal/run"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig(t *testing.T) {
	config := NewConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, hv.DefaultDetector, config.Analysis.Detector)
	assert.Equal(t, Duration(4*time.Second), config.Analysis.Granularity)
	assert.Equal(t, Duration(23300*time.Millisecond), config.Run.LumisectionDuration)
	assert.Equal(t, run.DefaultLocation, config.Run.Location)
	assert.Equal(t, analysis.FallbackPlant, config.Analysis.Fallback)
	assert.Equal(t, int64(-1), config.Quality.MaxErrors)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
settings:
  logLevel: debug
analysis:
  granularity: 2s
  threshold: 7.5
  fallback: chamber
  targets:
    GE+1_1_01: 700
    GE_1_1_36: 690.5
run:
  location: UTC
  lumisectionDuration: 23.3s
  ambiguous: reject
quality:
  enabled: true
  statusMask: 6
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", config.LogLevel().String())
	assert.Equal(t, Duration(2*time.Second), config.Analysis.Granularity)
	assert.Equal(t, 7.5, config.Analysis.Threshold)
	assert.Equal(t, analysis.FallbackChamber, config.Analysis.Fallback)
	assert.Equal(t, run.AmbiguousReject, config.Run.Ambiguous)
	assert.Equal(t, uint32(6), config.Quality.StatusMask)

	// defaults survive
	assert.Equal(t, hv.DefaultConversionFactor, config.Analysis.ConversionFactor)
	assert.Equal(t, run.DefaultLayout, config.Run.Layout)
	assert.Equal(t, defaultDumps, config.Archive.Dumps)

	targets, err := config.Analysis.targets()
	require.NoError(t, err)
	assert.Equal(t, map[hv.SuperChamber]float64{
		{Endcap: hv.EndcapPositive, Number: 1}:  700,
		{Endcap: hv.EndcapNegative, Number: 36}: 690.5,
	}, targets)

	params, err := config.params()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, params.Granularity)
	assert.Equal(t, 7.5, params.Masker.Threshold)
}

func TestLoadConfig_Environment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "analysis:\n  threshold: 7.5\n")

	t.Setenv("HVMASK_THRESHOLD", "9")
	t.Setenv("HVMASK_GRANULARITY", "3s")
	t.Setenv("HVMASK_DATABASE", "/var/lib/hvmask/hvmask.db")
	t.Setenv("HVMASK_PLOTS", "true")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9.0, config.Analysis.Threshold)
	assert.Equal(t, Duration(3*time.Second), config.Analysis.Granularity)
	assert.Equal(t, "/var/lib/hvmask/hvmask.db", config.Storage.Database)
	assert.True(t, config.Plots.Enabled)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	malformed := filepath.Join(dir, "malformed.yaml")
	writeFile(t, malformed, "analysis:\n  granularity: soon\n")
	_, err = LoadConfig(malformed)
	assert.ErrorContains(t, err, "parsing configuration")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"log level", func(c *Config) { c.Settings.LogLevel = "loud" }},
		{"concurrency", func(c *Config) { c.Settings.Concurrency = -1 }},
		{"detector", func(c *Config) { c.Analysis.Detector = "" }},
		{"granularity", func(c *Config) { c.Analysis.Granularity = 0 }},
		{"granularity above lumisection", func(c *Config) { c.Analysis.Granularity = Duration(30 * time.Second) }},
		{"conversion factor", func(c *Config) { c.Analysis.ConversionFactor = 0 }},
		{"threshold", func(c *Config) { c.Analysis.Threshold = -1 }},
		{"coverage", func(c *Config) { c.Analysis.Coverage = 1.5 }},
		{"fallback", func(c *Config) { c.Analysis.Fallback = "median" }},
		{"target name", func(c *Config) { c.Analysis.Targets = map[string]float64{"GE+1_1_37": 700} }},
		{"target value", func(c *Config) { c.Analysis.Targets = map[string]float64{"GE+1_1_01": 0} }},
		{"sheets", func(c *Config) { c.Run.Sheets = "" }},
		{"location", func(c *Config) { c.Run.Location = "Mars/Olympus" }},
		{"ambiguous policy", func(c *Config) { c.Run.Ambiguous = "both" }},
		{"nonexistent policy", func(c *Config) { c.Run.Nonexistent = "skip" }},
		{"dumps", func(c *Config) { c.Archive.Dumps = "" }},
		{"attempt timeout", func(c *Config) { c.Archive.AttemptTimeout = Duration(-time.Second) }},
		{"plot size", func(c *Config) { c.Plots.Enabled = true; c.Plots.Width = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig()
			tt.modify(config)
			assert.Error(t, config.Validate())
		})
	}
}
