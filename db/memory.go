package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/marcus-crane/steamcharts/frame"
)

// MemoryStore keeps everything in process, used where a database is overkill
type MemoryStore struct {
	m      *sync.Mutex
	tables map[string][]map[string]any
	runs   map[string]Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:      new(sync.Mutex),
		tables: map[string][]map[string]any{},
		runs:   map[string]Run{},
	}
}

func (ms *MemoryStore) ApplyMigrations(ctx context.Context, migrations fs.FS) error {
	return nil
}

func (ms *MemoryStore) WriteTable(ctx context.Context, name string, t *frame.Table) error {
	ms.m.Lock()
	defer ms.m.Unlock()
	for i := 0; i < t.Len(); i++ {
		ms.tables[name] = append(ms.tables[name], t.Row(i))
	}
	return nil
}

// Rows returns everything written to the named table so far
func (ms *MemoryStore) Rows(name string) []map[string]any {
	ms.m.Lock()
	defer ms.m.Unlock()
	return append([]map[string]any{}, ms.tables[name]...)
}

func (ms *MemoryStore) InsertRun(ctx context.Context, run Run) error {
	ms.m.Lock()
	defer ms.m.Unlock()
	if _, exists := ms.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	ms.runs[run.ID] = run
	return nil
}

func (ms *MemoryStore) FinishRun(ctx context.Context, run Run) error {
	ms.m.Lock()
	defer ms.m.Unlock()
	existing, ok := ms.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s not found", run.ID)
	}
	existing.FinishedAt = run.FinishedAt
	existing.Status = run.Status
	existing.RowsLoaded = run.RowsLoaded
	existing.RankingChecksum = run.RankingChecksum
	existing.Error = run.Error
	ms.runs[run.ID] = existing
	return nil
}

func (ms *MemoryStore) GetRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	ms.m.Lock()
	defer ms.m.Unlock()
	runs := make([]Run, 0, len(ms.runs))
	for _, run := range ms.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit >= 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (ms *MemoryStore) Close() error {
	return nil
}
