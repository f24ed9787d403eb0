package storage

import (
	_ "embed"
)

const (
	insertArchiveSQL = `
INSERT INTO archives (
                      run,
                      origin,
                      fetched_at)
VALUES (?, ?, ?)`

	selectLatestArchiveSQL = `
SELECT
    id,
    run,
    origin,
    fetched_at
FROM archives
WHERE
    run = ?
ORDER BY id DESC
LIMIT 1`

	deleteArchiveSamplesSQL = `
DELETE FROM channel_samples
WHERE
    archive_id IN (SELECT id FROM archives WHERE run = ?)`

	deleteArchivesSQL = `
DELETE FROM archives
WHERE
    run = ?`

	insertChannelSampleSQL = `
INSERT INTO channel_samples (
                             archive_id,
                             endcap,
                             chamber,
                             channel,
                             seq,
                             timestamp,
                             value)
VALUES `

	channelSamplePlaceholder = "(?, ?, ?, ?, ?, ?, ?)"

	selectChannelSamplesSQL = `
SELECT
    channel,
    timestamp,
    value
FROM channel_samples
WHERE
    archive_id = ?
    AND endcap = ?
    AND chamber = ?
ORDER BY channel, seq`

	insertMaskJobSQL = `
INSERT INTO mask_jobs (
                       job_id,
                       run,
                       created_at,
                       detector,
                       expected,
                       config)
VALUES (?, ?, ?, ?, ?, ?)`

	selectLatestMaskJobSQL = `
SELECT
    job_id,
    run,
    created_at,
    detector,
    expected,
    config
FROM mask_jobs
WHERE
    run = ?
ORDER BY id DESC
LIMIT 1`

	insertMaskSQL = `
INSERT INTO masks (
                   job_id,
                   chamber,
                   whole_run,
                   lumisections,
                   reason)
VALUES `

	maskPlaceholder = "(?, ?, ?, ?, ?)"

	selectMasksSQL = `
SELECT
    chamber,
    lumisections,
    reason
FROM masks
WHERE
    job_id = ?`
)

//go:embed schema.sql
var initSchemaSQL string
