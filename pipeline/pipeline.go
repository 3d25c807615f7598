package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus-crane/steamcharts/db"
	"github.com/marcus-crane/steamcharts/extract"
	"github.com/marcus-crane/steamcharts/frame"
	"github.com/marcus-crane/steamcharts/snapshot"
	"github.com/marcus-crane/steamcharts/steam"
	"github.com/marcus-crane/steamcharts/transform"
)

type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
)

var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// Observer hears about every run once it has been recorded
type Observer interface {
	RunFinished(run db.Run)
}

type Pipeline struct {
	Client    *steam.Client
	Store     db.Store
	DataDir   string
	TableName string
	Logger    *slog.Logger
	Now       func() time.Time
	Observers []Observer

	m sync.Mutex
}

// StageError records which stage stopped a run
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Run performs a single attempt
func (p *Pipeline) Run(ctx context.Context) (db.Run, error) {
	return p.RunAttempt(ctx, 1)
}

// RunAttempt extracts, transforms and loads once. Extraction failures abort
// the run with an error, an empty ranking ends it as skipped without one.
func (p *Pipeline) RunAttempt(ctx context.Context, attempt int) (db.Run, error) {
	if !p.m.TryLock() {
		return db.Run{}, ErrRunInProgress
	}
	defer p.m.Unlock()

	now := p.Now
	if now == nil {
		now = time.Now
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	run := db.Run{
		ID:        uuid.NewString(),
		StartedAt: now(),
		Status:    db.RunRunning,
		Attempt:   attempt,
	}
	logger = logger.With(slog.String("run_id", run.ID), slog.Int("attempt", attempt))

	if err := p.Store.InsertRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to record run start: %w", err)
	}

	runErr := p.execute(ctx, &run, logger, now)

	finished := now()
	run.FinishedAt = &finished
	if runErr != nil {
		run.Status = db.RunFailed
		run.Error = runErr.Error()
		logger.Error("Pipeline run failed",
			slog.String("stack", runErr.Error()),
		)
	} else if run.Status == db.RunRunning {
		run.Status = db.RunSucceeded
	}

	// Record the outcome even when the caller's context is already done
	if err := p.Store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("Failed to record run outcome",
			slog.String("stack", err.Error()),
		)
	}
	for _, o := range p.Observers {
		o.RunFinished(run)
	}

	logger.Info("Pipeline run finished",
		slog.String("status", string(run.Status)),
		slog.Int("rows_loaded", run.RowsLoaded),
		slog.Duration("took", finished.Sub(run.StartedAt)),
	)
	return run, runErr
}

func (p *Pipeline) execute(ctx context.Context, run *db.Run, logger *slog.Logger, now func() time.Time) error {
	ws, err := snapshot.New(p.DataDir, run.ID)
	if err != nil {
		return &StageError{Stage: StageExtract, Err: err}
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logger.Warn("Failed to remove run directory",
				slog.String("stack", err.Error()),
				slog.String("dir", ws.Dir),
			)
		}
	}()

	logger.Info("Stage starting", slog.String("stage", string(StageExtract)))
	ex := extract.New(p.Client, ws, logger)

	ranking := ex.Ranking(ctx, p.Client.RankingURL(), snapshot.RankingFile)
	switch ranking.Status {
	case extract.StatusFailed:
		return &StageError{Stage: StageExtract, Err: ranking.Err}
	case extract.StatusEmpty:
		logger.Warn("No ranking data this run, skipping transform and load")
		run.Status = db.RunSkipped
		return nil
	}
	run.RankingChecksum = strconv.FormatUint(ranking.Checksum, 16)

	apps := ex.Catalog(ctx, p.Client.AppListURL(), snapshot.AppsFile)
	if apps.Status != extract.StatusOK {
		err := apps.Err
		if err == nil {
			err = fmt.Errorf("catalog extraction returned %s", apps.Status)
		}
		return &StageError{Stage: StageExtract, Err: err}
	}

	logger.Info("Stage starting", slog.String("stage", string(StageTransform)))
	tr := &transform.Transformer{
		RankingPath: ranking.Path,
		AppsPath:    apps.Path,
		Now:         now,
		Logger:      logger,
	}
	table, err := tr.Run()
	if err != nil {
		return &StageError{Stage: StageTransform, Err: err}
	}
	encoded, err := frame.Marshal(table)
	if err != nil {
		return &StageError{Stage: StageTransform, Err: err}
	}
	handoff, err := ws.WriteFile(snapshot.HandoffFile, encoded)
	if err != nil {
		return &StageError{Stage: StageTransform, Err: err}
	}

	logger.Info("Stage starting", slog.String("stage", string(StageLoad)))
	table, err = readHandoff(handoff)
	if err != nil {
		return &StageError{Stage: StageLoad, Err: err}
	}
	if err := p.Store.WriteTable(ctx, p.TableName, table); err != nil {
		return &StageError{Stage: StageLoad, Err: err}
	}
	run.RowsLoaded = table.Len()

	if err := ws.Promote(snapshot.RankingFile, snapshot.AppsFile, snapshot.HandoffFile); err != nil {
		return &StageError{Stage: StageLoad, Err: err}
	}
	return nil
}

func readHandoff(path string) (*frame.Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return frame.Unmarshal(b)
}
