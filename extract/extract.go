package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cespare/xxhash/v2"

	"github.com/marcus-crane/steamcharts/snapshot"
	"github.com/marcus-crane/steamcharts/steam"
)

type Extractor struct {
	Client    *steam.Client
	Workspace *snapshot.Workspace
	Logger    *slog.Logger
}

func New(client *steam.Client, ws *snapshot.Workspace, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{Client: client, Workspace: ws, Logger: logger}
}

// Ranking fetches the concurrent players chart and stores the body verbatim
// as filename inside the run workspace.
func (e *Extractor) Ranking(ctx context.Context, url, filename string) Result {
	logger := e.Logger.With(slog.String("snapshot", filename))

	res, err := e.Client.Get(ctx, url)
	if err != nil {
		logger.Error("Failed to contact Steam for rankings",
			slog.String("stack", err.Error()),
		)
		return failed("ranking request: %w", err)
	}
	if !res.OK() {
		logger.Error("Steam returned an unexpected status for rankings",
			slog.Int("status", res.StatusCode),
		)
		return failed("ranking request: unexpected status %d", res.StatusCode)
	}

	if len(bytes.TrimSpace(res.Body)) == 0 {
		logger.Warn("Steam returned no ranking data")
		return empty()
	}
	var data any
	if err := json.Unmarshal(res.Body, &data); err != nil {
		logger.Error("Failed to decode Steam ranking response",
			slog.String("stack", err.Error()),
		)
		return failed("ranking response: %w", err)
	}
	if isEmptyJSON(data) {
		logger.Warn("Steam returned no ranking data")
		return empty()
	}

	// The file is written from the raw body, the envelope only checks its shape
	var envelope steam.RankingEnvelope
	if err := json.Unmarshal(res.Body, &envelope); err != nil {
		logger.Error("Steam ranking response has an unexpected shape",
			slog.String("stack", err.Error()),
		)
		return failed("ranking response: %w", err)
	}

	path, err := e.Workspace.WriteFile(filename, res.Body)
	if err != nil {
		logger.Error("Failed to save ranking snapshot",
			slog.String("stack", err.Error()),
		)
		return failed("ranking snapshot: %w", err)
	}

	logger.Info("Saved ranking snapshot",
		slog.String("path", path),
		slog.Int("ranks", len(envelope.Response.Ranks)),
	)
	return ok(path, len(envelope.Response.Ranks), xxhash.Sum64(res.Body))
}

// Catalog walks every page of the app list using the last_appid cursor and
// stores the combined list as filename inside the run workspace. Any failed
// page throws away everything collected so far.
func (e *Extractor) Catalog(ctx context.Context, url, filename string) Result {
	logger := e.Logger.With(slog.String("snapshot", filename))

	apps := []json.RawMessage{}
	var cursor *int64
	pages := 0

	for {
		pageURL := url
		if cursor != nil {
			var err error
			pageURL, err = steam.WithCursor(url, *cursor)
			if err != nil {
				return failed("catalog cursor: %w", err)
			}
		}

		res, err := e.Client.Get(ctx, pageURL)
		if err != nil {
			logger.Error("Failed to contact Steam for the app list",
				slog.String("stack", err.Error()),
				slog.Int("page", pages+1),
			)
			return failed("catalog request: %w", err)
		}
		if !res.OK() {
			logger.Error("Steam returned an unexpected status for the app list",
				slog.Int("status", res.StatusCode),
				slog.Int("page", pages+1),
			)
			return failed("catalog request: unexpected status %d", res.StatusCode)
		}

		var page steam.AppListEnvelope
		if err := json.Unmarshal(res.Body, &page); err != nil {
			logger.Error("Failed to decode Steam app list page",
				slog.String("stack", err.Error()),
				slog.Int("page", pages+1),
			)
			return failed("catalog response: %w", err)
		}
		pages++
		apps = append(apps, page.Response.Apps...)
		logger.Debug("Fetched app list page",
			slog.Int("page", pages),
			slog.Int("batch", len(page.Response.Apps)),
			slog.Int("total", len(apps)),
		)

		if !page.Response.HaveMoreResults {
			break
		}
		next := page.Response.LastAppID
		if next == nil || (cursor != nil && *next == *cursor) {
			logger.Error("Steam reported more results without a usable cursor",
				slog.Int("page", pages),
			)
			return failed("catalog page %d: %w", pages, ErrCursorStalled)
		}
		cursor = next
	}

	body, err := json.MarshalIndent(steam.CatalogEnvelope{
		AppList: steam.CatalogList{Apps: apps},
	}, "", "    ")
	if err != nil {
		return failed("catalog snapshot: %w", err)
	}
	path, err := e.Workspace.WriteFile(filename, body)
	if err != nil {
		logger.Error("Failed to save catalog snapshot",
			slog.String("stack", err.Error()),
		)
		return failed("catalog snapshot: %w", err)
	}

	logger.Info("Saved catalog snapshot",
		slog.String("path", path),
		slog.Int("apps", len(apps)),
		slog.Int("pages", pages),
	)
	return ok(path, len(apps), xxhash.Sum64(body))
}

// isEmptyJSON mirrors what counts as "no data": null, empty objects, empty
// arrays, empty strings, false and zero.
func isEmptyJSON(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	}
	return false
}
