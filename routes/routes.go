package routes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rs/cors"

	"github.com/marcus-crane/steamcharts/db"
)

const (
	defaultRunLimit = 10
	maxRunLimit     = 100
)

func renderJSONMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	res := map[string]string{"message": message}
	json.NewEncoder(w).Encode(res)
}

// Register wires the read-only status API onto mux. events may be nil when
// nothing is streaming run updates.
func Register(mux *http.ServeMux, store db.Store, events http.Handler) http.Handler {

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "steamcharts collects hourly Steam concurrent player counts.\nRecent runs live at /api/runs\n")
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		renderJSONMessage(w, http.StatusOK, "ok")
	})

	mux.HandleFunc("GET /api/runs", func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			renderJSONMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		runs, err := store.GetRecentRuns(r.Context(), limit)
		if err != nil {
			slog.Error("Failed to fetch recent runs",
				slog.String("stack", err.Error()),
			)
			renderJSONMessage(w, http.StatusInternalServerError, "failed to fetch recent runs")
			return
		}
		if runs == nil {
			runs = []db.Run{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	})

	if events != nil {
		mux.Handle("GET /events", events)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	})

	handler := c.Handler(mux)

	return handler
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultRunLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	return limit, nil
}
