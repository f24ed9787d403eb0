package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Archive is a cached copy of the HV archive of a run
type Archive struct {
	ID        int64
	Run       int
	Origin    string
	FetchedAt time.Time
}

// MaskJob records one generated mask document
type MaskJob struct {
	JobID     uuid.UUID
	Run       int
	CreatedAt time.Time
	Detector  string
	Expected  *float64 // Run-level expected current, nil when estimated
	Config    *string  // Analysis parameters as JSON
}

type channelSampleData struct {
	ArchiveID int64
	Endcap    int
	Chamber   int
	Channel   string
	Seq       int
	Timestamp int64
	Value     float64
}

type maskData struct {
	JobID        string
	Chamber      string
	WholeRun     bool
	Lumisections string
	Reason       string
}

type maskJobData struct {
	JobID     string
	Run       int
	CreatedAt time.Time
	Detector  string
	Expected  sql.NullFloat64
	Config    sql.NullString
}
