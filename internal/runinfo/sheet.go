package runinfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/hv-mask/internal/hv"
)

// RunPlaceholder is replaced by the run number in sheet file patterns
const RunPlaceholder = "{run}"

// ErrSourceUnreachable is returned when the run sheet is missing or malformed
var ErrSourceUnreachable = errors.New("run metadata unreachable")

// Sheet holds the conditions of one run as recorded by the run registry and
// data quality monitoring
type Sheet struct {
	Run          int    `yaml:"run"`
	Start        string `yaml:"start"` // Local wall-clock start, e.g. 2021-07-30_19-28-00
	Lumisections int    `yaml:"lumisections"`
	Events       int64  `yaml:"events"`

	// ChamberStatus maps chamber names to their data quality status bitmap
	ChamberStatus map[string]uint32 `yaml:"chamberStatus"`
	// ChamberErrors maps chamber names to their readout error counters
	ChamberErrors map[string]int64 `yaml:"chamberErrors"`
}

// Validate checks the sheet fields and chamber names
func (s *Sheet) Validate() error {
	if s.Run <= 0 {
		return fmt.Errorf("invalid run number: %d", s.Run)
	}
	if s.Start == "" {
		return errors.New("start time is required")
	}
	if s.Lumisections <= 0 {
		return fmt.Errorf("invalid number of lumisections: %d", s.Lumisections)
	}
	if s.Events < 0 {
		return fmt.Errorf("invalid number of events: %d", s.Events)
	}
	for name := range s.ChamberStatus {
		if _, _, err := hv.ParseChamberID(name); err != nil {
			return fmt.Errorf("chamber status: %w", err)
		}
	}
	for name := range s.ChamberErrors {
		if _, _, err := hv.ParseChamberID(name); err != nil {
			return fmt.Errorf("chamber errors: %w", err)
		}
	}
	return nil
}

// Policy decides which chambers the quality signal forces bad
type Policy struct {
	StatusMask uint32 // Status bits that flag a chamber
	MaxErrors  int64  // Error counter above which a chamber is flagged; negative disables the check
}

// BadChambers returns the chambers flagged by the policy, sorted by name
func (s *Sheet) BadChambers(policy Policy) []hv.ChamberID {
	flagged := make(map[string]struct{})
	for name, status := range s.ChamberStatus {
		if status&policy.StatusMask != 0 {
			flagged[name] = struct{}{}
		}
	}
	if policy.MaxErrors >= 0 {
		for name, count := range s.ChamberErrors {
			if count > policy.MaxErrors {
				flagged[name] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(flagged))
	for name := range flagged {
		names = append(names, name)
	}
	slices.Sort(names)

	ids := make([]hv.ChamberID, 0, len(names))
	for _, name := range names {
		if id, _, err := hv.ParseChamberID(name); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Decode reads and validates a YAML run sheet
func Decode(r io.Reader) (*Sheet, error) {
	var s Sheet
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: decoding run sheet: %w", ErrSourceUnreachable, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	return &s, nil
}

// Registry reads run sheets from the filesystem. Pattern is a path that may
// contain RunPlaceholder, e.g. /data/runs/run_{run}.yaml.
type Registry struct {
	Pattern string
}

// Path returns the sheet path of the run
func (r *Registry) Path(run int) string {
	return strings.ReplaceAll(r.Pattern, RunPlaceholder, strconv.Itoa(run))
}

// Sheet loads the sheet of the run. The sheet must describe that run.
func (r *Registry) Sheet(ctx context.Context, run int) (*Sheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := r.Path(run)
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading run sheet: %w", ErrSourceUnreachable, err)
	}

	s, err := Decode(bytes.NewReader(p))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Run != run {
		return nil, fmt.Errorf("%w: %s describes run %d, not %d", ErrSourceUnreachable, path, s.Run, run)
	}
	return s, nil
}
