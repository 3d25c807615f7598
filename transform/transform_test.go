package transform

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/steamcharts/frame"
)

var fixedNow = time.Date(2026, 2, 7, 13, 0, 0, 0, time.UTC)

func writeSnapshots(t *testing.T, ranking, apps string) *Transformer {
	t.Helper()
	dir := t.TempDir()
	tr := &Transformer{
		RankingPath: filepath.Join(dir, "steam_ranking.json"),
		AppsPath:    filepath.Join(dir, "steam_apps.json"),
		Now:         func() time.Time { return fixedNow },
	}
	if ranking != "" {
		require.NoError(t, os.WriteFile(tr.RankingPath, []byte(ranking), 0644))
	}
	if apps != "" {
		require.NoError(t, os.WriteFile(tr.AppsPath, []byte(apps), 0644))
	}
	return tr
}

func TestRun_LeftJoinWithUnknownTitle(t *testing.T) {
	t.Parallel()
	tr := writeSnapshots(t,
		`{"response":{"ranks":[{"appid":1,"concurrent_in_game":100},{"appid":2,"concurrent_in_game":50}]}}`,
		`{"applist":{"apps":[{"appid":1,"name":"Game A"}]}}`,
	)

	table, err := tr.Run()
	require.NoError(t, err)

	require.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"appid", "player_count", "game_title", "extracted_at"}, table.Columns())

	assert.Equal(t, int64(1), table.Value(0, "appid"))
	assert.Equal(t, "Game A", table.Value(0, "game_title"))
	assert.Equal(t, int64(100), table.Value(0, "player_count"))

	assert.Equal(t, int64(2), table.Value(1, "appid"))
	assert.Equal(t, UnknownTitle, table.Value(1, "game_title"))
	assert.Equal(t, int64(50), table.Value(1, "player_count"))
}

func TestRun_DropsCatalogBookkeepingColumns(t *testing.T) {
	t.Parallel()
	tr := writeSnapshots(t,
		`{"response":{"ranks":[{"rank":1,"appid":730,"concurrent_in_game":1000,"peak_in_game":1500}]}}`,
		`{"applist":{"apps":[{"appid":730,"name":"Counter-Strike 2","last_modified":1700000000,"price_change_number":42}]}}`,
	)

	table, err := tr.Run()
	require.NoError(t, err)

	for _, dropped := range DroppedColumns {
		assert.NotContains(t, table.Columns(), dropped)
	}
	assert.Contains(t, table.Columns(), "rank")
	assert.Contains(t, table.Columns(), "peak_in_game")
	assert.Equal(t, int64(1500), table.Value(0, "peak_in_game"))
}

func TestRun_SharedExtractionTimestamp(t *testing.T) {
	t.Parallel()
	calls := 0
	tr := writeSnapshots(t,
		`{"response":{"ranks":[{"appid":1,"concurrent_in_game":3},{"appid":2,"concurrent_in_game":2},{"appid":3,"concurrent_in_game":1}]}}`,
		`{"applist":{"apps":[]}}`,
	)
	tr.Now = func() time.Time {
		calls++
		return fixedNow.Add(time.Duration(calls) * time.Second)
	}

	table, err := tr.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	stamps, err := table.Column(StampColumn)
	require.NoError(t, err)
	for _, s := range stamps {
		assert.Equal(t, stamps[0], s)
	}
}

func TestRun_NullsOutsideTitlePropagate(t *testing.T) {
	t.Parallel()
	tr := writeSnapshots(t,
		`{"response":{"ranks":[{"appid":1,"concurrent_in_game":10,"peak_in_game":20},{"appid":2,"concurrent_in_game":5}]}}`,
		`{"applist":{"apps":[{"appid":1,"name":"A"},{"appid":2,"name":null}]}}`,
	)

	table, err := tr.Run()
	require.NoError(t, err)

	assert.Equal(t, UnknownTitle, table.Value(1, "game_title"))
	assert.Nil(t, table.Value(1, "peak_in_game"))
}

func TestRun_MissingSnapshots(t *testing.T) {
	t.Parallel()
	ranking := `{"response":{"ranks":[]}}`
	apps := `{"applist":{"apps":[]}}`
	for name, files := range map[string][2]string{
		"no ranking": {"", apps},
		"no apps":    {ranking, ""},
		"neither":    {"", ""},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			tr := writeSnapshots(t, files[0], files[1])
			_, err := tr.Run()
			assert.True(t, errors.Is(err, fs.ErrNotExist), err)
			assert.True(t, errors.Is(err, ErrSnapshotNotFound), err)
		})
	}
}

func TestRun_MalformedSnapshot(t *testing.T) {
	t.Parallel()
	tr := writeSnapshots(t,
		`{"response":{}}`,
		`{"applist":{"apps":[]}}`,
	)
	_, err := tr.Run()
	assert.True(t, errors.Is(err, ErrMalformedSnapshot), err)
}

func TestRun_EmptyRanking(t *testing.T) {
	t.Parallel()
	tr := writeSnapshots(t,
		`{"response":{"ranks":[]}}`,
		`{"applist":{"apps":[{"appid":1,"name":"A"}]}}`,
	)
	table, err := tr.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, []string{"appid", "player_count", "game_title", "extracted_at"}, table.Columns())
}

func TestRun_SchemaMismatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		ranking string
		apps    string
		wantErr error
	}{
		{
			name:    "ranking without player counts",
			ranking: `{"response":{"ranks":[{"appid":1}]}}`,
			apps:    `{"applist":{"apps":[{"appid":1,"name":"A","last_modified":1,"price_change_number":2}]}}`,
			wantErr: frame.ErrColumnNotFound,
		},
		{
			name:    "catalog without bookkeeping fields",
			ranking: `{"response":{"ranks":[{"appid":1,"concurrent_in_game":10}]}}`,
			apps:    `{"applist":{"apps":[{"appid":1,"name":"A"}]}}`,
		},
		{
			name:    "catalog without names",
			ranking: `{"response":{"ranks":[{"appid":1,"concurrent_in_game":10}]}}`,
			apps:    `{"applist":{"apps":[{"appid":1}]}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := writeSnapshots(t, tt.ranking, tt.apps)
			table, err := tr.Run()
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), err)
				assert.Nil(t, table)
				return
			}
			require.NoError(t, err)
			require.Equal(t, 1, table.Len())
			assert.Equal(t, []string{"appid", "player_count", "game_title", "extracted_at"}, table.Columns())
			assert.Equal(t, int64(10), table.Value(0, "player_count"))
		})
	}
}
