package notify

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gregdel/pushover"

	"github.com/marcus-crane/steamcharts/config"
	"github.com/marcus-crane/steamcharts/db"
)

// Sender is the part of the Pushover client we need
type Sender interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
}

// Reporter tells a human when every attempt at a run has failed. Without
// Pushover credentials it only logs.
type Reporter struct {
	App       Sender
	Recipient *pushover.Recipient
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(cfg config.PushoverConfig, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{Logger: logger, Now: time.Now}
	if cfg.Token == "" || cfg.Recipient == "" {
		return r
	}
	r.App = pushover.New(cfg.Token)
	r.Recipient = pushover.NewRecipient(cfg.Recipient)
	return r
}

func (r *Reporter) Enabled() bool {
	return r.App != nil && r.Recipient != nil
}

// Report sends a high priority message describing the failed run
func (r *Reporter) Report(run db.Run, runErr error) error {
	if runErr == nil {
		return nil
	}
	r.Logger.Error("Pipeline gave up after exhausting retries",
		slog.String("stack", runErr.Error()),
		slog.String("run_id", run.ID),
		slog.Int("attempt", run.Attempt),
	)
	if !r.Enabled() {
		return nil
	}
	if _, err := r.App.SendMessage(r.message(run, runErr), r.Recipient); err != nil {
		r.Logger.Error("Failed to send failure report",
			slog.String("stack", err.Error()),
		)
		return fmt.Errorf("failed to notify about failed run: %w", err)
	}
	return nil
}

func (r *Reporter) message(run db.Run, runErr error) *pushover.Message {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return &pushover.Message{
		Message:    fmt.Sprintf("Run %s failed on attempt %d: %s", run.ID, run.Attempt, runErr),
		Title:      "Steam player count pipeline failed",
		Priority:   pushover.PriorityHigh,
		Timestamp:  now().Unix(),
		DeviceName: "steamcharts",
	}
}
