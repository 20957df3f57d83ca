package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appanalysis "github.com/bryanwahyu/snapshot-analysis/internal/application/analysis"
	domain "github.com/bryanwahyu/snapshot-analysis/internal/domain/analysis"
	"github.com/bryanwahyu/snapshot-analysis/internal/middleware"
)

type Router struct {
	svc      *appanalysis.Service
	validate *validator.Validate
	logger   *zap.Logger
}

func NewRouter(svc *appanalysis.Service, logger *zap.Logger, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{svc: svc, validate: validator.New(), logger: logger}
	mux := chi.NewRouter()

	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/admin/analysis", func(rt chi.Router) {
		rt.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Allow", "GET, POST")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		})
		rt.Get("/", r.wrap(r.handleList))
		rt.Post("/", r.wrap(r.handleCreate))
		rt.Get("/export", r.wrap(r.handleExport))
		rt.Post("/import", r.wrap(r.handleImport))
		rt.Post("/archive", r.wrap(r.handleArchive))
		rt.Get("/{id}", r.wrap(r.handleGet))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// requestError carries the status a handler wants surfaced to the caller.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var reqErr *requestError
		switch {
		case errors.As(err, &reqErr):
			writeError(w, reqErr.status, reqErr.msg)
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, appanalysis.ErrArchiveUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			r.logger.Error("handler error", zap.String("path", req.URL.Path), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
	}
}

// GET /admin/analysis?snapshot_id=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	var filter *int64
	if raw := req.URL.Query().Get("snapshot_id"); raw != "" {
		// unparsable values are ignored rather than rejected
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter = &v
		}
	}

	list, err := r.svc.List(req.Context(), filter)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

type createItemRequest struct {
	Label   string `json:"label"`
	Score   any    `json:"score"`
	Payload any    `json:"payload"`
}

type createAnalysisRequest struct {
	SnapshotID any                 `json:"snapshot_id"`
	Author     string              `json:"author"`
	Title      string              `json:"title"`
	Notes      *string             `json:"notes"`
	Items      []createItemRequest `json:"items"`
}

// createCommand is the coerced form the validator runs against.
type createCommand struct {
	Author string `validate:"required"`
	Title  string `validate:"required"`
}

// POST /admin/analysis
func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	var body createAnalysisRequest
	dec := json.NewDecoder(req.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return badRequest("invalid JSON body")
	}

	if body.SnapshotID == nil {
		return badRequest("snapshot_id is required")
	}
	snapshotID, err := coerceInt(body.SnapshotID)
	if err != nil {
		return badRequest("snapshot_id must be an integer")
	}

	cmd := createCommand{
		Author: strings.TrimSpace(body.Author),
		Title:  strings.TrimSpace(body.Title),
	}
	if err := r.validate.Struct(cmd); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return badRequest("%s must be a non-empty string", strings.ToLower(verrs[0].Field()))
		}
		return badRequest("invalid request body")
	}

	in := domain.CreateInput{
		SnapshotID: snapshotID,
		Author:     cmd.Author,
		Title:      cmd.Title,
		Notes:      body.Notes,
	}
	for _, item := range body.Items {
		label := strings.TrimSpace(item.Label)
		if label == "" {
			// items without a usable label never reach the store
			continue
		}
		in.Items = append(in.Items, domain.ItemInput{
			Label:   label,
			Score:   coerceScore(item.Score),
			Payload: item.Payload,
		})
	}

	created, err := r.svc.Create(req.Context(), in)
	if err != nil {
		return err
	}
	middleware.IncrementAnalyses()
	return writeJSON(w, http.StatusCreated, created)
}

// GET /admin/analysis/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		return badRequest("id must be an integer")
	}

	a, err := r.svc.Get(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// GET /admin/analysis/export
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	st, err := r.svc.ExportState(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, st)
}

// POST /admin/analysis/import
func (r *Router) handleImport(w http.ResponseWriter, req *http.Request) error {
	var st domain.State
	if err := json.NewDecoder(req.Body).Decode(&st); err != nil {
		return badRequest("invalid JSON body")
	}
	if err := r.svc.ImportState(req.Context(), st); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"status":   "imported",
		"analyses": len(st.Analyses),
	})
}

// POST /admin/analysis/archive
func (r *Router) handleArchive(w http.ResponseWriter, req *http.Request) error {
	url, err := r.svc.Archive(req.Context())
	if err != nil {
		if errors.Is(err, appanalysis.ErrArchiveUnavailable) {
			return err
		}
		return &requestError{status: http.StatusBadGateway, msg: fmt.Sprintf("archive upload failed: %v", err)}
	}
	return writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// coerceInt accepts JSON numbers (truncating fractions, as the dashboard
// has historically sent floats) and numeric strings.
func coerceInt(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), nil
		}
		return 0, fmt.Errorf("not an integer: %s", t.String())
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// coerceScore parses whatever shape the client sends; anything unparsable
// falls back to 0 rather than rejecting the item.
func coerceScore(v any) float64 {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	case float64:
		return t
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
