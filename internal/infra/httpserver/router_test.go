package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/snapshot-analysis/internal/application"
	appanalysis "github.com/bryanwahyu/snapshot-analysis/internal/application/analysis"
	domain "github.com/bryanwahyu/snapshot-analysis/internal/domain/analysis"
	"github.com/bryanwahyu/snapshot-analysis/internal/infra/memstore"
	"github.com/bryanwahyu/snapshot-analysis/internal/middleware"
)

func newTestRouter(t *testing.T) (http.Handler, *appanalysis.Service) {
	t.Helper()

	store := memstore.New(application.SystemClock{})
	svc := &appanalysis.Service{Repo: store, Clock: application.SystemClock{}}
	checkers := map[string]middleware.HealthChecker{
		"store": middleware.HealthCheckerFunc(func(ctx context.Context) error {
			_, err := store.List(ctx, nil)
			return err
		}),
	}
	return NewRouter(svc, zap.NewNop(), checkers), svc
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreate_ReturnsCreatedRecord(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/admin/analysis", `{
		"snapshot_id": 42,
		"author": "QA",
		"title": "Review",
		"notes": "looks fine",
		"items": [{"label": "coverage", "score": 0.92, "payload": {"suite": "smoke"}}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Analysis
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Greater(t, created.ID, int64(1))
	assert.Equal(t, int64(42), created.SnapshotID)
	require.NotNil(t, created.Notes)
	assert.Equal(t, "looks fine", *created.Notes)
	require.Len(t, created.Items, 1)
	assert.Equal(t, created.ID, created.Items[0].AnalysisID)
	assert.Equal(t, 0.92, created.Items[0].Score)

	list := doJSON(t, h, http.MethodGet, "/admin/analysis", "")
	require.Equal(t, http.StatusOK, list.Code)

	var records []domain.Analysis
	require.NoError(t, json.NewDecoder(list.Body).Decode(&records))
	found := false
	for _, r := range records {
		if r.ID == created.ID {
			found = true
		}
	}
	assert.True(t, found, "created record missing from list")
}

func TestCreate_ValidationErrors(t *testing.T) {
	h, _ := newTestRouter(t)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing snapshot_id", `{"author": "QA", "title": "Review"}`, "snapshot_id"},
		{"unparsable snapshot_id", `{"snapshot_id": "abc", "author": "QA", "title": "Review"}`, "snapshot_id"},
		{"missing author", `{"snapshot_id": 1, "title": "Review"}`, "author"},
		{"blank title", `{"snapshot_id": 1, "author": "QA", "title": "   "}`, "title"},
		{"malformed body", `{"snapshot_id": `, "JSON"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/admin/analysis", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Contains(t, resp["error"], tc.want)
		})
	}
}

func TestCreate_CoercionRules(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/admin/analysis", `{
		"snapshot_id": "42",
		"author": "QA",
		"title": "Coerced",
		"items": [
			{"label": "parsed", "score": "3.5"},
			{"label": "fallback", "score": "junk"},
			{"label": "   ", "score": 9},
			{"score": 9}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Analysis
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, int64(42), created.SnapshotID)

	// the two blank-label items are dropped before the store
	require.Len(t, created.Items, 2)
	assert.Equal(t, "parsed", created.Items[0].Label)
	assert.Equal(t, 3.5, created.Items[0].Score)
	assert.Equal(t, "fallback", created.Items[1].Label)
	assert.Zero(t, created.Items[1].Score)
}

func TestCreate_AllItemsDroppedGetsPlaceholder(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/admin/analysis", `{
		"snapshot_id": 5,
		"author": "QA",
		"title": "Placeholder",
		"items": [{"label": "", "score": 1}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Analysis
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Len(t, created.Items, 1)
	assert.Equal(t, "auto-generated", created.Items[0].Label)
}

func TestList_SnapshotFilter(t *testing.T) {
	h, _ := newTestRouter(t)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/admin/analysis",
			fmt.Sprintf(`{"snapshot_id": 7, "author": "QA", "title": "Targeted %d"}`, i))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/admin/analysis?snapshot_id=7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var filtered []domain.Analysis
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&filtered))
	require.Len(t, filtered, 2)
	for _, a := range filtered {
		assert.Equal(t, int64(7), a.SnapshotID)
	}

	// an unparsable filter is ignored, so the seed shows up too
	rec = doJSON(t, h, http.MethodGet, "/admin/analysis?snapshot_id=abc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var all []domain.Analysis
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.Len(t, all, 3)
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPut, "/admin/analysis", `{}`)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestGetByID(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/admin/analysis/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var seed domain.Analysis
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&seed))
	assert.Contains(t, seed.Title, "Initial")

	rec = doJSON(t, h, http.MethodGet, "/admin/analysis/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/admin/analysis/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportImport_Endpoints(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/admin/analysis", `{"snapshot_id": 11, "author": "QA", "title": "To export"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/admin/analysis/export", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st domain.State
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, int64(3), st.NextAnalysisID)
	require.Len(t, st.Analyses, 2)
	dump, err := json.Marshal(st)
	require.NoError(t, err)

	// import the dump into a second, fresh service
	h2, _ := newTestRouter(t)
	rec = doJSON(t, h2, http.MethodPost, "/admin/analysis/import", string(dump))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h2, http.MethodGet, "/admin/analysis?snapshot_id=11", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var imported []domain.Analysis
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&imported))
	require.Len(t, imported, 1)
	assert.Equal(t, "To export", imported[0].Title)
}

func TestArchive_UnconfiguredReturns503(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/admin/analysis/archive", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status middleware.HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["store"].Status)
}
