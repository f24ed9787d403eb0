package archive

import (
	"context"
	"errors"

	"github.com/roman-kulish/hv-mask/internal/hv"
)

var (
	// ErrNotFound is returned when an archive holds no data for the
	// requested run, superchamber or channel
	ErrNotFound = errors.New("not found in archive")

	// ErrSourceUnreachable is returned when the HV archive could not be
	// acquired for a run. It fails that run only.
	ErrSourceUnreachable = errors.New("hv archive unreachable")
)

// Source provides the HV channel series of a superchamber for one run
type Source interface {
	Channels(ctx context.Context, sc hv.SuperChamber) ([]hv.ChannelSeries, error)
}

// Fetcher acquires the complete HV archive of a run
type Fetcher interface {
	Fetch(ctx context.Context, run int) (*DumpSource, error)
}

// Cache keeps acquired archives so later invocations for the same run do
// not hit the archive again.
type Cache interface {
	// Lookup returns the cached archive of the run, if any
	Lookup(ctx context.Context, run int) (src Source, ok bool, err error)

	// Save caches the archive of the run and returns a Source reading it back
	Save(ctx context.Context, run int, dump *DumpSource) (Source, error)

	// Purge drops every cached archive of the run
	Purge(ctx context.Context, run int) error
}
