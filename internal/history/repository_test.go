package history

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"codeberg.org/mutker/soilctl/internal/errors"
	"codeberg.org/mutker/soilctl/internal/logger"
	"codeberg.org/mutker/soilctl/internal/watermark"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

func tension(ch watermark.Channel, cb float64) watermark.Reading {
	return watermark.Reading{Channel: ch, Kind: watermark.KindTension, Value: cb, Valid: true, Time: epoch}
}

func noData(ch watermark.Channel) watermark.Reading {
	return watermark.Reading{Channel: ch, Kind: watermark.KindResistance, Value: math.NaN(), Time: epoch}
}

func expectClose(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("PRAGMA wal_checkpoint(TRUNCATE)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()
}

func TestRecordFlushesAtBatchSize(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := newRepository(db, Config{BatchSize: 2}, logger.Nop())

	require.NoError(t, repo.Record(tension(1, 62)))
	require.NoError(t, mock.ExpectationsWereMet(), "flushed before the batch filled")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO readings"))
	prep.ExpectExec().
		WithArgs(epoch.UnixMilli(), int64(1), "soil_water_tension", 62.0, int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(epoch.UnixMilli(), int64(2), "resistance", nil, int64(0)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Record(noData(2)))
	require.NoError(t, mock.ExpectationsWereMet())

	expectClose(mock)
	require.NoError(t, repo.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedFlushKeepsBuffer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := newRepository(db, Config{BatchSize: 1}, logger.Nop())

	mock.ExpectBegin().WillReturnError(fmt.Errorf("database is locked"))
	err = repo.Record(tension(3, 10))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrTransactionFailed))

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO readings")).
		ExpectExec().
		WithArgs(epoch.UnixMilli(), int64(3), "soil_water_tension", 10.0, int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Flush())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAfterClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := newRepository(db, Config{BatchSize: 4}, logger.Nop())

	expectClose(mock)
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())

	err = repo.Record(tension(1, 1))
	assert.True(t, errors.HasCode(err, ErrClosed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodicFlush(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO readings")).
		ExpectExec().
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := newRepository(db, Config{BatchSize: 100, BatchTimeout: 10 * time.Millisecond}, logger.Nop())
	require.NoError(t, repo.Record(tension(5, 30)))

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 5*time.Millisecond)

	expectClose(mock)
	require.NoError(t, repo.Close())
}

func TestServicePublish(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	svc := newService(newRepository(db, Config{BatchSize: 1}, logger.Nop()), logger.Nop())

	mock.ExpectBegin().WillReturnError(fmt.Errorf("disk I/O error"))
	assert.NotPanics(t, func() { svc.Publish(tension(1, 5)) })

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO readings")).
		ExpectExec().
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectClose(mock)

	// The reading that failed to store is retried on close.
	require.NoError(t, svc.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewServiceDisabled(t *testing.T) {
	rec, err := NewService(DefaultConfig(), logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, noopRecorder{}, rec)

	rec.Publish(tension(1, 1))
	assert.NoError(t, rec.Close())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg.DBPath = ""
	assert.True(t, errors.HasCode(cfg.Validate(), ErrInvalidDBPath))

	cfg = DefaultConfig()
	cfg.Enabled = true
	cfg.BatchSize = 0
	assert.True(t, errors.HasCode(cfg.Validate(), ErrInvalidConfig))

	_, err := NewService(cfg, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
}

func TestRepositoryOnDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Enabled:   true,
		DBPath:    filepath.Join(dir, "data", "history.db"),
		BackupDir: filepath.Join(dir, "backups"),
		BatchSize: 2,
	}

	repo, err := NewRepository(cfg, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, repo.Record(tension(1, 62)))
	require.NoError(t, repo.Record(noData(2)))
	require.NoError(t, repo.Record(tension(3, 80)))
	require.NoError(t, repo.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var total, nulls int
	require.NoError(t, db.QueryRow("SELECT COUNT(*), COUNT(*) - COUNT(value) FROM readings").Scan(&total, &nulls))
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, nulls)

	var value float64
	require.NoError(t, db.QueryRow("SELECT value FROM readings WHERE channel = 3").Scan(&value))
	assert.Equal(t, 80.0, value)

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	_, err = os.Stat(cfg.BackupDir)
	assert.True(t, os.IsNotExist(err), "fresh database should not be backed up")
}

func TestSchemaMismatchBacksUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")
	backups := filepath.Join(dir, "backups")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	require.NoError(t, InitSchema(db, logger.Nop()))
	_, err = db.Exec("INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'))")
	require.NoError(t, err)

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	require.Equal(t, 99, version)

	require.NoError(t, ValidateAndUpdateSchema(db, backups, logger.Nop()))

	version, err = GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
	require.NoError(t, db.Close())

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^history_v99_\d{8}T\d{6}Z\.db$`, entries[0].Name())
}
