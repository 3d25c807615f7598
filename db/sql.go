package db

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/marcus-crane/steamcharts/frame"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Stay under the historical SQLite limit of 999 bound parameters
const maxParams = 999

type Dialect struct {
	Goose         goose.Dialect
	MigrationsDir string
	ColumnsQuery  string
	Types         map[frame.Kind]string
}

var (
	SqliteDialect = Dialect{
		Goose:         goose.DialectSQLite3,
		MigrationsDir: "sqlite",
		ColumnsQuery:  "SELECT name FROM pragma_table_info(?)",
		Types: map[frame.Kind]string{
			frame.KindInt:   "INTEGER",
			frame.KindFloat: "REAL",
			frame.KindBool:  "BOOLEAN",
			frame.KindTime:  "TIMESTAMP",
		},
	}
	PostgresDialect = Dialect{
		Goose:         goose.DialectPostgres,
		MigrationsDir: "postgres",
		ColumnsQuery:  "SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?",
		Types: map[frame.Kind]string{
			frame.KindInt:   "BIGINT",
			frame.KindFloat: "DOUBLE PRECISION",
			frame.KindBool:  "BOOLEAN",
			frame.KindTime:  "TIMESTAMPTZ",
		},
	}
)

func (d Dialect) columnType(k frame.Kind) string {
	if t, ok := d.Types[k]; ok {
		return t
	}
	return "TEXT"
}

type SqlStore struct {
	DB      *sqlx.DB
	Dialect Dialect
}

func NewSqliteStore(dsn string) (Store, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &SqlStore{
		DB:      db,
		Dialect: SqliteDialect,
	}, nil
}

func NewPostgresStore(dsn string) (Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &SqlStore{
		DB:      db,
		Dialect: PostgresDialect,
	}, nil
}

func (s *SqlStore) ApplyMigrations(ctx context.Context, migrations fs.FS) error {
	dir, err := fs.Sub(migrations, s.Dialect.MigrationsDir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(s.Dialect.Goose, s.DB.DB, dir)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return err
	}
	return nil
}

func (s *SqlStore) Close() error {
	return s.DB.Close()
}

// WriteTable appends t to the named table, creating it or adding columns as
// needed. Batches are not wrapped in a transaction so a failure part way
// through leaves earlier batches in place.
func (s *SqlStore) WriteTable(ctx context.Context, name string, t *frame.Table) error {
	if t.Len() == 0 {
		return nil
	}
	columns := t.Columns()
	kinds := make([]frame.Kind, len(columns))
	for i, col := range columns {
		kinds[i] = t.Kind(col)
	}

	if err := s.ensureTable(ctx, name, columns, kinds); err != nil {
		return fmt.Errorf("failed to prepare table %s: %w", name, err)
	}

	batchSize := maxParams / len(columns)
	if batchSize < 1 {
		batchSize = 1
	}
	for start := 0; start < t.Len(); start += batchSize {
		end := start + batchSize
		if end > t.Len() {
			end = t.Len()
		}
		if err := s.insertBatch(ctx, name, t, columns, kinds, start, end); err != nil {
			return fmt.Errorf("failed to insert rows %d-%d into %s: %w", start, end-1, name, err)
		}
	}
	return nil
}

func (s *SqlStore) ensureTable(ctx context.Context, name string, columns []string, kinds []frame.Kind) error {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = quoteIdent(col) + " " + s.Dialect.columnType(kinds[i])
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := s.DB.ExecContext(ctx, create); err != nil {
		return err
	}

	existing := []string{}
	if err := s.DB.SelectContext(ctx, &existing, s.DB.Rebind(s.Dialect.ColumnsQuery), name); err != nil {
		return err
	}
	have := map[string]bool{}
	for _, col := range existing {
		have[col] = true
	}
	for i, col := range columns {
		if have[col] {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(name), defs[i])
		if _, err := s.DB.ExecContext(ctx, alter); err != nil {
			return err
		}
	}
	return nil
}

func (s *SqlStore) insertBatch(ctx context.Context, name string, t *frame.Table, columns []string, kinds []frame.Kind, start, end int) error {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	valueStrings := make([]string, 0, end-start)
	valueArgs := make([]interface{}, 0, (end-start)*len(columns))
	for row := start; row < end; row++ {
		valueStrings = append(valueStrings, placeholder)
		for i, col := range columns {
			v, err := driverValue(t.Value(row, col), kinds[i])
			if err != nil {
				return fmt.Errorf("column %s: %w", col, err)
			}
			valueArgs = append(valueArgs, v)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteIdent(name), strings.Join(quoted, ", "), strings.Join(valueStrings, ","))
	_, err := s.DB.ExecContext(ctx, s.DB.Rebind(query), valueArgs...)
	return err
}

func driverValue(v any, kind frame.Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	if kind == frame.KindJSON {
		return textValue(v)
	}
	if ts, ok := v.(time.Time); ok {
		return ts.UTC(), nil
	}
	return v, nil
}

// textValue renders a cell of a TEXT column holding mixed kinds. Scalars are
// written as their plain text, only lists and objects become JSON.
func textValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SqlStore) InsertRun(ctx context.Context, run Run) error {
	_, err := s.DB.ExecContext(ctx, s.DB.Rebind(
		"INSERT INTO pipeline_runs (id, started_at, status, attempt) VALUES (?, ?, ?, ?)"),
		run.ID,
		run.StartedAt.UTC(),
		run.Status,
		run.Attempt,
	)
	return err
}

func (s *SqlStore) FinishRun(ctx context.Context, run Run) error {
	var finished interface{}
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	_, err := s.DB.ExecContext(ctx, s.DB.Rebind(`
	UPDATE pipeline_runs
	SET finished_at = ?, status = ?, rows_loaded = ?, ranking_checksum = ?, error = ?
	WHERE id = ?`),
		finished,
		run.Status,
		run.RowsLoaded,
		run.RankingChecksum,
		run.Error,
		run.ID,
	)
	return err
}

func (s *SqlStore) GetRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	runs := []Run{}
	err := s.DB.SelectContext(ctx, &runs, s.DB.Rebind(`
	SELECT id, started_at, finished_at, status, attempt, rows_loaded, ranking_checksum, error
	FROM pipeline_runs
	ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return runs, err
	}
	return runs, nil
}
