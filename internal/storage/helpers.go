package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/hv-mask/internal/hv"
	"github.com/roman-kulish/hv-mask/internal/mask"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError rolls back an unfinished transaction. Rolling back a
// committed transaction is not an error.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toChannelSampleData(archiveID int64, sc hv.SuperChamber, series *hv.ChannelSeries) []channelSampleData {
	rows := make([]channelSampleData, len(series.Samples))
	for i, s := range series.Samples {
		rows[i] = channelSampleData{
			ArchiveID: archiveID,
			Endcap:    int(sc.Endcap),
			Chamber:   sc.Number,
			Channel:   series.Channel.String(),
			Seq:       i,
			Timestamp: s.Timestamp.UnixMilli(),
			Value:     s.Value,
		}
	}
	return rows
}

func fromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toMaskData(jobID string, id hv.ChamberID, detector string, entry mask.Entry) (*maskData, error) {
	p, err := json.Marshal(entry.Mask)
	if err != nil {
		return nil, fmt.Errorf("marshaling mask of %s: %w", id, err)
	}

	return &maskData{
		JobID:        jobID,
		Chamber:      id.Name(detector),
		WholeRun:     entry.Mask.IsFull(),
		Lumisections: string(p),
		Reason:       string(entry.Reason),
	}, nil
}

func toSQLNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func toSQLNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
