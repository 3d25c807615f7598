package db

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/marcus-crane/steamcharts/frame"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunSkipped   RunStatus = "skipped"
	RunFailed    RunStatus = "failed"
)

// Run is one attempt at extract, transform and load
type Run struct {
	ID              string     `db:"id" json:"id"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	FinishedAt      *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Status          RunStatus  `db:"status" json:"status"`
	Attempt         int        `db:"attempt" json:"attempt"`
	RowsLoaded      int        `db:"rows_loaded" json:"rows_loaded"`
	RankingChecksum string     `db:"ranking_checksum" json:"ranking_checksum,omitempty"`
	Error           string     `db:"error" json:"error,omitempty"`
}

type Store interface {
	ApplyMigrations(ctx context.Context, migrations fs.FS) error
	// WriteTable appends every row of t to the named table
	WriteTable(ctx context.Context, name string, t *frame.Table) error
	InsertRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, run Run) error
	GetRecentRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// Open connects to the store for driver, either sqlite or postgres
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSqliteStore(dsn)
	case "postgres":
		return NewPostgresStore(dsn)
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}
