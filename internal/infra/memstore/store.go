package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bryanwahyu/snapshot-analysis/internal/application"
	domain "github.com/bryanwahyu/snapshot-analysis/internal/domain/analysis"
)

const (
	seedSnapshotID = 101
	seedAuthor     = "System"
	seedTitle      = "Initial deployment validation"
	seedItemLabel  = "deployment-status"

	placeholderLabel   = "auto-generated"
	placeholderMessage = "placeholder generated because the analysis was created without items"
)

// Store keeps every analysis in memory for the life of the process.
// Records and items draw ids from two independent counters that are never
// reused; everything crossing the API boundary is deep-copied so callers
// can't reach into store state. Safe for concurrent use.
type Store struct {
	mu             sync.RWMutex
	clock          application.Clock
	analyses       map[int64]*domain.Analysis
	nextAnalysisID int64
	nextItemID     int64
}

// New constructs a seeded store. The seed record exists so a freshly
// started process has non-empty output; it is not a fixture mechanism.
func New(clock application.Clock) *Store {
	s := &Store{
		clock:          clock,
		analyses:       make(map[int64]*domain.Analysis),
		nextAnalysisID: 1,
		nextItemID:     1,
	}
	s.seed()
	return s
}

func (s *Store) seed() {
	a := &domain.Analysis{
		ID:         s.nextAnalysisID,
		SnapshotID: seedSnapshotID,
		Author:     seedAuthor,
		Title:      seedTitle,
		CreatedAt:  s.clock.Now().UTC(),
	}
	s.nextAnalysisID++
	a.Items = append(a.Items, domain.Item{
		ID:         s.nextItemID,
		AnalysisID: a.ID,
		Label:      seedItemLabel,
		Score:      1,
	})
	s.nextItemID++
	s.analyses[a.ID] = a
}

// Create stores a new analysis and returns a copy of it. An analysis always
// ends up with at least one item: when the input carries none, a single
// placeholder item is synthesized.
func (s *Store) Create(ctx context.Context, in domain.CreateInput) (domain.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := &domain.Analysis{
		ID:         s.nextAnalysisID,
		SnapshotID: in.SnapshotID,
		Author:     in.Author,
		Title:      in.Title,
		Notes:      cloneNotes(in.Notes),
		CreatedAt:  s.clock.Now().UTC(),
	}
	s.nextAnalysisID++

	for _, it := range in.Items {
		a.Items = append(a.Items, domain.Item{
			ID:         s.nextItemID,
			AnalysisID: a.ID,
			Label:      it.Label,
			Score:      it.Score,
			Payload:    clonePayload(it.Payload),
		})
		s.nextItemID++
	}

	if len(a.Items) == 0 {
		a.Items = append(a.Items, domain.Item{
			ID:         s.nextItemID,
			AnalysisID: a.ID,
			Label:      placeholderLabel,
			Score:      0,
			Payload: map[string]any{
				"token":   uuid.New().String(),
				"message": placeholderMessage,
			},
		})
		s.nextItemID++
	}

	s.analyses[a.ID] = a
	return cloneAnalysis(a), nil
}

// Get returns a copy of the analysis with the given id.
func (s *Store) Get(ctx context.Context, id int64) (domain.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.analyses[id]
	if !ok {
		return domain.Analysis{}, domain.ErrNotFound
	}
	return cloneAnalysis(a), nil
}

// List returns copies of all analyses, optionally filtered by snapshot id,
// newest first. Equal timestamps fall back to the higher record id.
func (s *Store) List(ctx context.Context, snapshotID *int64) ([]domain.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Analysis, 0, len(s.analyses))
	for _, a := range s.analyses {
		if snapshotID != nil && a.SnapshotID != *snapshotID {
			continue
		}
		out = append(out, cloneAnalysis(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Reset drops every record and restarts both counters. This is a whole-store
// reset for tests and the import path; normal operation never deletes.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.analyses = make(map[int64]*domain.Analysis)
	s.nextAnalysisID = 1
	s.nextItemID = 1
	return nil
}

// ExportState dumps the full store, counters included, with records ordered
// by id for stable output.
func (s *Store) ExportState(ctx context.Context) (domain.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := domain.State{
		NextAnalysisID: s.nextAnalysisID,
		NextItemID:     s.nextItemID,
		Analyses:       make([]domain.Analysis, 0, len(s.analyses)),
	}
	for _, a := range s.analyses {
		st.Analyses = append(st.Analyses, cloneAnalysis(a))
	}
	sort.Slice(st.Analyses, func(i, j int) bool { return st.Analyses[i].ID < st.Analyses[j].ID })
	return st, nil
}

// ImportState replaces the store contents with the given dump.
func (s *Store) ImportState(ctx context.Context, st domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.analyses = make(map[int64]*domain.Analysis, len(st.Analyses))
	s.nextAnalysisID = st.NextAnalysisID
	if s.nextAnalysisID < 1 {
		s.nextAnalysisID = 1
	}
	s.nextItemID = st.NextItemID
	if s.nextItemID < 1 {
		s.nextItemID = 1
	}
	for i := range st.Analyses {
		a := cloneAnalysis(&st.Analyses[i])
		s.analyses[a.ID] = &a
	}
	return nil
}

func cloneAnalysis(a *domain.Analysis) domain.Analysis {
	out := *a
	out.Notes = cloneNotes(a.Notes)
	out.Items = make([]domain.Item, len(a.Items))
	for i, it := range a.Items {
		out.Items[i] = it
		out.Items[i].Payload = clonePayload(it.Payload)
	}
	return out
}

func cloneNotes(n *string) *string {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

// clonePayload deep-copies the JSON-shaped values a decoded request body
// produces. Scalars are immutable and pass through.
func clonePayload(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = clonePayload(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = clonePayload(vv)
		}
		return out
	default:
		return v
	}
}
