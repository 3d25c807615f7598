package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcus-crane/steamcharts/config"
	"github.com/marcus-crane/steamcharts/db"
	"github.com/marcus-crane/steamcharts/events"
	"github.com/marcus-crane/steamcharts/migrations"
	"github.com/marcus-crane/steamcharts/notify"
	"github.com/marcus-crane/steamcharts/pipeline"
	"github.com/marcus-crane/steamcharts/routes"
	"github.com/marcus-crane/steamcharts/steam"
	"github.com/marcus-crane/steamcharts/utils"
)

func main() {
	cfg, err := config.Load(utils.GetEnv("CONFIG_PATH", config.DefaultPath))
	if err != nil {
		slog.Error("Failed to load config", slog.String("stack", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.GetLogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(cfg.Service.DbDriver, cfg.Service.DbPath)
	if err != nil {
		slog.Error("Failed to open database", slog.String("stack", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	if err := store.ApplyMigrations(ctx, migrations.GetMigrations()); err != nil {
		slog.Error("Failed to apply migrations", slog.String("stack", err.Error()))
		os.Exit(1)
	}

	client := steam.NewClient(cfg.Steam.Token)
	if cfg.Steam.APIBaseURL != "" {
		client.APIBaseURL = cfg.Steam.APIBaseURL
	}
	if cfg.Steam.Token == "" {
		slog.Warn("No Steam token configured, requests will carry an empty key")
	}

	broker := events.NewBroker(logger)
	defer broker.Close()

	p := &pipeline.Pipeline{
		Client:    client,
		Store:     store,
		DataDir:   cfg.Pipeline.DataDir,
		TableName: cfg.Pipeline.TableName,
		Logger:    logger,
		Observers: []pipeline.Observer{broker},
	}
	reporter := notify.New(cfg.Pushover, logger)

	jobScheduler, err := SetupInBackground(ctx, cfg, p, reporter)
	if err != nil {
		slog.Error("Failed to set up background jobs", slog.String("stack", err.Error()))
		os.Exit(1)
	}

	if cfg.Service.BackgroundJobsEnabled {
		jobScheduler.Start()
		slog.Info("Background jobs have started up in the background.",
			slog.String("schedule", cfg.Pipeline.Schedule),
		)
	} else {
		slog.Info("Background jobs are disabled.")
	}

	if cfg.Pipeline.RunOnStart {
		go RunPipeline(ctx, cfg, p, reporter)
	}

	router := routes.Register(http.NewServeMux(), store, broker)
	srv := &http.Server{Addr: cfg.Service.HTTPAddr, Handler: router}

	go func() {
		<-ctx.Done()
		slog.Info("Gracefully shutting down...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("Failed to shut down HTTP server", slog.String("stack", err.Error()))
		}
	}()

	slog.Info("steamcharts is running", slog.String("addr", cfg.Service.HTTPAddr))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("HTTP server stopped", slog.String("stack", err.Error()))
	}
	if err := jobScheduler.Shutdown(); err != nil {
		slog.Error("Failed to stop background jobs", slog.String("stack", err.Error()))
	}
}
