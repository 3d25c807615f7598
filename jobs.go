package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/marcus-crane/steamcharts/config"
	"github.com/marcus-crane/steamcharts/db"
	"github.com/marcus-crane/steamcharts/pipeline"
)

// Reporter hears about runs that failed every attempt
type Reporter interface {
	Report(run db.Run, err error) error
}

func RunPipeline(ctx context.Context, cfg config.Config, p *pipeline.Pipeline, reporter Reporter) {
	run, err := pipeline.RunWithRetry(ctx, p, cfg.Pipeline.Retries, cfg.Pipeline.GetRetryDelay())
	if err == nil {
		return
	}
	if errors.Is(err, pipeline.ErrRunInProgress) {
		slog.Warn("Skipping scheduled run, previous run still going")
		return
	}
	if reporter == nil {
		return
	}
	if err := reporter.Report(run, err); err != nil {
		slog.Error("Failed to report exhausted pipeline run",
			slog.String("stack", err.Error()),
			slog.String("run_id", run.ID),
		)
	}
}

func SetupInBackground(ctx context.Context, cfg config.Config, p *pipeline.Pipeline, reporter Reporter) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.CronJob(cfg.Pipeline.Schedule, false),
		gocron.NewTask(RunPipeline, ctx, cfg, p, reporter),
		gocron.WithName("steam_pipeline"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	return s, nil
}
