package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/r3labs/sse/v2"

	"github.com/marcus-crane/steamcharts/db"
)

// RunsStream carries one event per finished pipeline run
const RunsStream = "runs"

type Broker struct {
	Server *sse.Server
	Logger *slog.Logger
}

func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(RunsStream)
	return &Broker{Server: server, Logger: logger}
}

// RunFinished publishes the run to anyone listening on the runs stream
func (b *Broker) RunFinished(run db.Run) {
	byteStream := new(bytes.Buffer)
	if err := json.NewEncoder(byteStream).Encode(run); err != nil {
		b.Logger.Error("Failed to encode run event",
			slog.String("stack", err.Error()),
			slog.String("run_id", run.ID),
		)
		return
	}
	b.Server.Publish(RunsStream, &sse.Event{Data: bytes.TrimSpace(byteStream.Bytes())})
}

func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.Server.ServeHTTP(w, r)
}

func (b *Broker) Close() {
	b.Server.Close()
}
