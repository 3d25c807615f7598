package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/steamcharts/db"
)

func seededStore(t *testing.T, n int) *db.MemoryStore {
	store := db.NewMemoryStore()
	started := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, store.InsertRun(context.Background(), db.Run{
			ID:        fmt.Sprintf("run-%03d", i),
			StartedAt: started.Add(time.Duration(i) * time.Hour),
			Status:    db.RunSucceeded,
			Attempt:   1,
		}))
	}
	return store
}

func TestRegister_Healthz(t *testing.T) {
	t.Parallel()
	handler := Register(http.NewServeMux(), db.NewMemoryStore(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"ok"}`, rec.Body.String())
}

func TestRegister_Banner(t *testing.T) {
	t.Parallel()
	handler := Register(http.NewServeMux(), db.NewMemoryStore(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/runs")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegister_RecentRuns(t *testing.T) {
	t.Parallel()
	handler := Register(http.NewServeMux(), seededStore(t, 15), nil)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"run-014", "run-013", "run-012", "run-011", "run-010", "run-009", "run-008", "run-007", "run-006", "run-005"}},
		{"?limit=2", []string{"run-014", "run-013"}},
		{"?limit=500", []string{
			"run-014", "run-013", "run-012", "run-011", "run-010", "run-009", "run-008", "run-007",
			"run-006", "run-005", "run-004", "run-003", "run-002", "run-001", "run-000",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs"+tt.query, nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var runs []db.Run
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
			var ids []string
			for _, run := range runs {
				ids = append(ids, run.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("recent runs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRegister_RecentRunsEmpty(t *testing.T) {
	t.Parallel()
	handler := Register(http.NewServeMux(), db.NewMemoryStore(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRegister_RecentRunsBadLimit(t *testing.T) {
	t.Parallel()
	handler := Register(http.NewServeMux(), db.NewMemoryStore(), nil)

	for _, limit := range []string{"abc", "0", "-3"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit="+limit, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
	}
}

func TestRegister_EventsHandler(t *testing.T) {
	t.Parallel()
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.URL.Query().Get("stream"))
	})
	handler := Register(http.NewServeMux(), db.NewMemoryStore(), events)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?stream=runs", nil))
	assert.Equal(t, "runs", rec.Body.String())
}

func TestRegister_CORS(t *testing.T) {
	t.Parallel()
	handler := Register(http.NewServeMux(), db.NewMemoryStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:1313")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
