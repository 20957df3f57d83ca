package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bryanwahyu/snapshot-analysis/internal/application"
	domain "github.com/bryanwahyu/snapshot-analysis/internal/domain/analysis"
)

// ErrArchiveUnavailable is returned when no archive storage is configured.
var ErrArchiveUnavailable = errors.New("archive storage not configured")

// Service implements the analysis use-cases consumed by the HTTP layer.
type Service struct {
	Repo     domain.Repository
	Archiver domain.Archiver
	Clock    application.Clock
}

func (s *Service) Create(ctx context.Context, in domain.CreateInput) (domain.Analysis, error) {
	return s.Repo.Create(ctx, in)
}

func (s *Service) List(ctx context.Context, snapshotID *int64) ([]domain.Analysis, error) {
	return s.Repo.List(ctx, snapshotID)
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Analysis, error) {
	return s.Repo.Get(ctx, id)
}

func (s *Service) ExportState(ctx context.Context) (domain.State, error) {
	return s.Repo.ExportState(ctx)
}

func (s *Service) ImportState(ctx context.Context, st domain.State) error {
	return s.Repo.ImportState(ctx, st)
}

// Archive dumps the store state to object storage and returns the object URL.
func (s *Service) Archive(ctx context.Context) (string, error) {
	if s.Archiver == nil {
		return "", ErrArchiveUnavailable
	}

	st, err := s.Repo.ExportState(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("analysis-state/%s.json", s.Clock.Now().UTC().Format("20060102T150405Z"))
	return s.Archiver.Upload(ctx, key, data, "application/json")
}
