package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/marcus-crane/steamcharts/frame"
)

const (
	JoinKey      = "appid"
	TitleColumn  = "game_title"
	StampColumn  = "extracted_at"
	UnknownTitle = "Desconhecido"

	playersSource = "concurrent_in_game"
)

var (
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	DroppedColumns = []string{"last_modified", "price_change_number"}
	RenamedColumns = map[string]string{
		"appid":       "appid",
		"name":        "game_title",
		playersSource: "player_count",
	}

	// Ranking fields beyond the join key must come from the feed itself so a
	// missing one fails the rename
	rankingColumns = []string{"appid"}
	appColumns     = []string{"appid", "name", "last_modified", "price_change_number"}
)

type Transformer struct {
	RankingPath string
	AppsPath    string
	Now         func() time.Time
	Logger      *slog.Logger
}

// Run loads both snapshots and produces the merged table. It never writes
// anything; persisting the result is up to the caller.
func (tr *Transformer) Run() (*frame.Table, error) {
	logger := tr.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := tr.Now
	if now == nil {
		now = time.Now
	}

	ranking, err := loadTable(tr.RankingPath, []string{"response", "ranks"}, rankingColumns)
	if err != nil {
		return nil, err
	}
	// Zero ranks carry no schema at all, not a mismatched one
	if ranking.Len() == 0 && !ranking.HasColumn(playersSource) {
		if err := ranking.AddColumn(playersSource, []any{}); err != nil {
			return nil, err
		}
	}
	logger.Info("Built ranking table", slog.Int("rows", ranking.Len()))

	apps, err := loadTable(tr.AppsPath, []string{"applist", "apps"}, appColumns)
	if err != nil {
		return nil, err
	}
	logger.Info("Built apps table", slog.Int("rows", apps.Len()))

	merged, err := frame.LeftJoin(ranking, apps, JoinKey)
	if err != nil {
		return nil, err
	}
	if err := merged.Drop(DroppedColumns...); err != nil {
		return nil, err
	}
	if err := merged.Rename(RenamedColumns); err != nil {
		return nil, err
	}
	if err := merged.FillNull(TitleColumn, UnknownTitle); err != nil {
		return nil, err
	}
	if err := merged.WithConstant(StampColumn, now()); err != nil {
		return nil, err
	}

	logger.Info("Transformations complete",
		slog.Int("rows", merged.Len()),
		slog.Int("columns", len(merged.Columns())),
	)
	return merged, nil
}

func loadTable(path string, keys []string, declared []string) (*frame.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrSnapshotNotFound, path, fs.ErrNotExist)
		}
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedSnapshot, path, err)
	}

	node := doc
	for _, key := range keys {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s: missing %q", ErrMalformedSnapshot, path, key)
		}
		node, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s: missing %q", ErrMalformedSnapshot, path, key)
		}
	}
	records, ok := node.([]any)
	if !ok && node != nil {
		return nil, fmt.Errorf("%w: %s: records are %T, not a list", ErrMalformedSnapshot, path, node)
	}

	table, err := frame.Normalize(records, declared...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedSnapshot, path, err)
	}
	return table, nil
}
