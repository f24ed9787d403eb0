package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/roman-kulish/hv-mask/internal/archive"
	"github.com/roman-kulish/hv-mask/internal/hv"
	"github.com/roman-kulish/hv-mask/internal/mask"
)

// Store provides an interface for caching HV archives and keeping the history
// of generated mask documents. It is safe for concurrent use; every write
// operation is atomic.
type Store interface {
	archive.Cache

	// CreateArchive registers a new, empty archive of a run.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - run: Run number the archive covers
	//   - origin: Where the archive was acquired from, e.g. a dump file path
	//
	// Returns:
	//   - archiveID: Unique identifier of the archive
	//   - error: If creation fails or context is cancelled
	CreateArchive(ctx context.Context, run int, origin string) (archiveID int64, err error)

	// StoreChannelSeries saves the channel series of a superchamber into an
	// archive. All samples are stored in a single transaction and keep their
	// order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - archiveID: Archive the series belong to
	//   - sc: Superchamber fed by the channels
	//   - series: Channel series to store
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreChannelSeries(ctx context.Context, archiveID int64, sc hv.SuperChamber, series []hv.ChannelSeries) error

	// LatestArchive returns the most recently created archive of a run.
	//
	// Returns:
	//   - archive: The archive metadata
	//   - error: ErrNoData if the run has no archive
	LatestArchive(ctx context.Context, run int) (*Archive, error)

	// DeleteArchives drops every archive of a run together with its samples.
	//
	// Returns:
	//   - deleted: Number of archives removed
	//   - error: If deletion fails or context is cancelled
	DeleteArchives(ctx context.Context, run int) (deleted int64, err error)

	// ReadChannels returns the channel series of a superchamber stored in an
	// archive, in hv.Channels order. Channels absent from the archive are
	// omitted.
	ReadChannels(ctx context.Context, archiveID int64, sc hv.SuperChamber) ([]hv.ChannelSeries, error)

	// StoreMaskDocument saves a generated mask document with its job record.
	// The job ID is assigned when job.JobID is zero.
	//
	// Returns:
	//   - jobID: Identifier of the stored job
	//   - error: If storage fails or context is cancelled
	StoreMaskDocument(ctx context.Context, job MaskJob, doc *mask.Document) (jobID uuid.UUID, err error)

	// MaskDocument returns the latest mask document generated for a run.
	//
	// Returns:
	//   - job: The job record of the document
	//   - doc: The mask document
	//   - error: ErrNoData if no document was stored for the run
	MaskDocument(ctx context.Context, run int) (job *MaskJob, doc *mask.Document, err error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
