package storage

import (
	"context"
	"fmt"

	"github.com/roman-kulish/hv-mask/internal/archive"
	"github.com/roman-kulish/hv-mask/internal/hv"
)

// ArchiveSource reads the channel series of a cached archive
type ArchiveSource struct {
	store   *SqliteStore
	archive Archive
}

// NewArchiveSource creates a Source over a cached archive
func NewArchiveSource(store *SqliteStore, a *Archive) *ArchiveSource {
	return &ArchiveSource{store: store, archive: *a}
}

// Archive returns the metadata of the cached archive
func (a *ArchiveSource) Archive() Archive {
	return a.archive
}

// Channels returns the seven channel series of the superchamber. A missing
// channel is archive.ErrNotFound.
func (a *ArchiveSource) Channels(ctx context.Context, sc hv.SuperChamber) ([]hv.ChannelSeries, error) {
	series, err := a.store.ReadChannels(ctx, a.archive.ID, sc)
	if err != nil {
		return nil, err
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("%w: %s in archive %d", archive.ErrNotFound, sc.DCSName(), a.archive.ID)
	}
	if len(series) < len(hv.Channels) {
		return nil, fmt.Errorf("%w: %s has %d of %d channels in archive %d", archive.ErrNotFound, sc.DCSName(), len(series), len(hv.Channels), a.archive.ID)
	}
	return series, nil
}
