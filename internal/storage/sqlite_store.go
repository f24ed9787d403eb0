package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/hv-mask/internal/archive"
	"github.com/roman-kulish/hv-mask/internal/hv"
	"github.com/roman-kulish/hv-mask/internal/mask"
)

// maxRowsPerInsert bounds a multi-row INSERT below the SQLite host parameter limit
const maxRowsPerInsert = 1000

// ErrNoData indicates that nothing is stored for the given parameters
var ErrNoData = errors.New("no data available")

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened and the schema is initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

// getReadDB opens the read-only connection. The write connection is opened
// first so the database file and its schema exist.
func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateArchive(ctx context.Context, run int, origin string) (archiveID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	if archiveID, err = insertArchive(ctx, tx, run, origin); err != nil {
		return
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
	}
	return
}

func insertArchive(ctx context.Context, tx *sql.Tx, run int, origin string) (int64, error) {
	result, err := tx.ExecContext(ctx, insertArchiveSQL, run, origin, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("inserting archive: %w", err)
	}

	archiveID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting archive ID: %w", err)
	}
	return archiveID, nil
}

func (s *SqliteStore) StoreChannelSeries(ctx context.Context, archiveID int64, sc hv.SuperChamber, series []hv.ChannelSeries) (err error) {
	if len(series) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if err = insertChannelSeries(ctx, tx, archiveID, sc, series); err != nil {
		return
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertChannelSeries(ctx context.Context, tx *sql.Tx, archiveID int64, sc hv.SuperChamber, series []hv.ChannelSeries) error {
	var rows []channelSampleData
	for i := range series {
		rows = append(rows, toChannelSampleData(archiveID, sc, &series[i])...)
	}

	for batch := range slices.Chunk(rows, maxRowsPerInsert) {
		values := make([]any, 0, len(batch)*7)

		var sb strings.Builder
		sb.WriteString(insertChannelSampleSQL)

		for i, data := range batch {
			values = append(values,
				data.ArchiveID,
				data.Endcap,
				data.Chamber,
				data.Channel,
				data.Seq,
				data.Timestamp,
				data.Value,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(channelSamplePlaceholder)
		}

		if _, err := tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting samples of %s: %w", sc, err)
		}
	}
	return nil
}

func (s *SqliteStore) LatestArchive(ctx context.Context, run int) (a *Archive, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	var data Archive
	err = db.QueryRowContext(ctx, selectLatestArchiveSQL, run).Scan(&data.ID, &data.Run, &data.Origin, &data.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no archive of run %d", ErrNoData, run)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning archive: %w", err)
	}

	return &data, nil
}

func (s *SqliteStore) DeleteArchives(ctx context.Context, run int) (deleted int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deleteArchiveSamplesSQL, run); err != nil {
		err = fmt.Errorf("deleting samples: %w", err)
		return
	}

	result, err := tx.ExecContext(ctx, deleteArchivesSQL, run)
	if err != nil {
		err = fmt.Errorf("deleting archives: %w", err)
		return
	}
	if deleted, err = result.RowsAffected(); err != nil {
		err = fmt.Errorf("counting deleted archives: %w", err)
		return
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
	}
	return
}

func (s *SqliteStore) ReadChannels(ctx context.Context, archiveID int64, sc hv.SuperChamber) (series []hv.ChannelSeries, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectChannelSamplesSQL, archiveID, int(sc.Endcap), sc.Number)
	if err != nil {
		err = fmt.Errorf("querying samples: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	// Rows are ordered by channel, so each channel is one contiguous run of rows
	byChannel := make(map[hv.Channel][]hv.Sample, len(hv.Channels))
	for rows.Next() {
		var (
			channel string
			ms      int64
			value   float64
		)
		if err = rows.Scan(&channel, &ms, &value); err != nil {
			err = fmt.Errorf("scanning sample: %w", err)
			return
		}

		ch := hv.Channel(channel)
		byChannel[ch] = append(byChannel[ch], hv.Sample{Timestamp: fromUnixMilli(ms), Value: value})
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating samples: %w", err)
		return
	}

	for _, ch := range hv.Channels {
		if samples, ok := byChannel[ch]; ok {
			series = append(series, hv.ChannelSeries{Channel: ch, Samples: samples})
		}
	}
	return
}

// Lookup returns the latest cached archive of the run
func (s *SqliteStore) Lookup(ctx context.Context, run int) (archive.Source, bool, error) {
	a, err := s.LatestArchive(ctx, run)
	if errors.Is(err, ErrNoData) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return NewArchiveSource(s, a), true, nil
}

// Save stores the dump as a new archive of the run in a single transaction
func (s *SqliteStore) Save(ctx context.Context, run int, dump *archive.DumpSource) (src archive.Source, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return nil, fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	archiveID, err := insertArchive(ctx, tx, run, dump.Origin)
	if err != nil {
		return nil, err
	}

	for sc, series := range dump.All() {
		if err = insertChannelSeries(ctx, tx, archiveID, sc, series); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	src, _, err = s.Lookup(ctx, run)
	return src, err
}

// Purge drops every cached archive of the run
func (s *SqliteStore) Purge(ctx context.Context, run int) error {
	_, err := s.DeleteArchives(ctx, run)
	return err
}

func (s *SqliteStore) StoreMaskDocument(ctx context.Context, job MaskJob, doc *mask.Document) (jobID uuid.UUID, err error) {
	jobID = job.JobID
	if jobID == uuid.Nil {
		jobID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	jobData := maskJobData{
		JobID:     jobID.String(),
		Run:       job.Run,
		CreatedAt: job.CreatedAt.UTC(),
		Detector:  doc.Detector,
		Expected:  toSQLNullFloat64(job.Expected),
		Config:    toSQLNullString(job.Config),
	}

	masks := make([]*maskData, 0, doc.Len())
	for _, id := range doc.Chambers() {
		entry, _ := doc.Entry(id)

		var data *maskData
		if data, err = toMaskData(jobData.JobID, id, doc.Detector, entry); err != nil {
			return
		}
		masks = append(masks, data)
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, insertMaskJobSQL,
		jobData.JobID,
		jobData.Run,
		jobData.CreatedAt,
		jobData.Detector,
		jobData.Expected,
		jobData.Config,
	); err != nil {
		err = fmt.Errorf("inserting mask job: %w", err)
		return
	}

	for batch := range slices.Chunk(masks, maxRowsPerInsert) {
		values := make([]any, 0, len(batch)*5)

		var sb strings.Builder
		sb.WriteString(insertMaskSQL)

		for i, data := range batch {
			values = append(values, data.JobID, data.Chamber, data.WholeRun, data.Lumisections, data.Reason)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(maskPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			err = fmt.Errorf("batch inserting masks: %w", err)
			return
		}
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
	}
	return
}

func (s *SqliteStore) MaskDocument(ctx context.Context, run int) (job *MaskJob, doc *mask.Document, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	var data maskJobData
	err = db.QueryRowContext(ctx, selectLatestMaskJobSQL, run).
		Scan(&data.JobID, &data.Run, &data.CreatedAt, &data.Detector, &data.Expected, &data.Config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: no mask document of run %d", ErrNoData, run)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scanning mask job: %w", err)
	}

	jobID, err := uuid.Parse(data.JobID)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing job ID: %w", err)
	}

	job = &MaskJob{
		JobID:     jobID,
		Run:       data.Run,
		CreatedAt: data.CreatedAt,
		Detector:  data.Detector,
	}
	if data.Expected.Valid {
		job.Expected = &data.Expected.Float64
	}
	if data.Config.Valid {
		job.Config = &data.Config.String
	}

	rows, err := db.QueryContext(ctx, selectMasksSQL, data.JobID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying masks: %w", err)
	}
	defer closeWithError(rows, &err)

	doc = mask.NewDocument(data.Detector)
	for rows.Next() {
		var chamber, lumisections, reason string
		if err = rows.Scan(&chamber, &lumisections, &reason); err != nil {
			return nil, nil, fmt.Errorf("scanning mask: %w", err)
		}

		id, _, pErr := hv.ParseChamberID(chamber)
		if pErr != nil {
			return nil, nil, fmt.Errorf("parsing stored chamber: %w", pErr)
		}

		var m mask.Mask
		if err = json.Unmarshal([]byte(lumisections), &m); err != nil {
			return nil, nil, fmt.Errorf("unmarshaling mask of %s: %w", chamber, err)
		}
		doc.Set(id, m, mask.Reason(reason))
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating masks: %w", err)
	}

	return job, doc, nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
