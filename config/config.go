package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
)

// DefaultPath is where the dotenv file lives relative to the working directory
const DefaultPath = "config/.env"

type Config struct {
	Service  ServiceConfig
	Pipeline PipelineConfig
	Pushover PushoverConfig
	Steam    SteamConfig
}

type ServiceConfig struct {
	BackgroundJobsEnabled bool   `env:"BACKGROUND_JOBS_ENABLED"`
	DbDriver              string `env:"DB_DRIVER"`
	DbPath                string `env:"DB_PATH"`
	HTTPAddr              string `env:"HTTP_ADDR"`
	LogLevel              string `env:"LOG_LEVEL"`
}

type PipelineConfig struct {
	DataDir    string `env:"PIPELINE_DATA_DIR"`
	Retries    int    `env:"PIPELINE_RETRIES"`
	RetryDelay string `env:"PIPELINE_RETRY_DELAY"`
	RunOnStart bool   `env:"PIPELINE_RUN_ON_START"`
	Schedule   string `env:"PIPELINE_SCHEDULE"`
	TableName  string `env:"PIPELINE_TABLE_NAME"`
}

type PushoverConfig struct {
	Recipient string `env:"PUSHOVER_RECIPIENT"`
	Token     string `env:"PUSHOVER_TOKEN"`
}

type SteamConfig struct {
	APIBaseURL string `env:"STEAM_API_BASE_URL"`
	Token      string `env:"STEAM_TOKEN"`
}

func Default() Config {
	return Config{
		Service: ServiceConfig{
			BackgroundJobsEnabled: true,
			DbDriver:              "sqlite",
			DbPath:                "steamcharts.db",
			HTTPAddr:              ":8080",
			LogLevel:              "info",
		},
		Pipeline: PipelineConfig{
			DataDir:    "data",
			Retries:    2,
			RetryDelay: "5m",
			Schedule:   "0 * * * *",
			TableName:  "steam_data",
		},
		Steam: SteamConfig{
			APIBaseURL: "https://api.steampowered.com",
		},
	}
}

// Load builds a Config from the defaults, the dotenv file at path (if present)
// and finally the process environment. A missing dotenv file is not an error,
// the Steam token is simply left empty.
func Load(path string) (Config, error) {
	cfg := Default()
	c := config.New()
	if _, err := os.Stat(path); err == nil {
		c.AddFeeder(feeder.DotEnv{Path: path})
	} else if !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	} else {
		slog.With(slog.String("path", path)).Info("No config file found, falling back to environment")
	}
	c.AddFeeder(feeder.Env{})
	c.AddStruct(&cfg)
	if err := c.Feed(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// GetRetryDelay parses the configured delay, falling back to five minutes
func (p PipelineConfig) GetRetryDelay() time.Duration {
	d, err := time.ParseDuration(p.RetryDelay)
	if err != nil || d < 0 {
		slog.With(slog.String("retry_delay", p.RetryDelay)).Info("Received invalid retry delay. Defaulting to 5m.")
		return 5 * time.Minute
	}
	return d
}

func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.Service.LogLevel)
	if logLevel == "error" {
		return slog.LevelError
	}
	if logLevel == "warning" || logLevel == "warn" {
		return slog.LevelWarn
	}
	if logLevel == "info" {
		return slog.LevelInfo
	}
	if logLevel == "debug" {
		return slog.LevelDebug
	}
	// default to info if unknown
	slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	return slog.LevelInfo
}
