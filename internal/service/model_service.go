package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yusuftnc/qchat/internal/backend"
	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/model"
	"github.com/yusuftnc/qchat/internal/store"
)

// ModelService handles the model catalog, the model selection and the
// backend health probe.
type ModelService struct {
	store         *store.Store
	backend       backend.Backend
	healthTimeout time.Duration

	loadOnce sync.Once
}

// NewModelService creates a new ModelService.
func NewModelService(st *store.Store, b backend.Backend, healthTimeout time.Duration) *ModelService {
	return &ModelService{store: st, backend: b, healthTimeout: healthTimeout}
}

// LoadCatalog fetches the catalog once per session. Any failure substitutes
// the built-in catalog. The selection snaps to the first entry when it is not
// part of the result.
func (s *ModelService) LoadCatalog(ctx context.Context) []model.ModelDescriptor {
	s.loadOnce.Do(func() {
		catalog, err := s.backend.ListModels(ctx)
		if err != nil {
			slog.Warn("Could not load model catalog, using built-in list", "error", err)
			catalog = model.FallbackCatalog
		}
		s.store.SetCatalog(catalog)
		slog.Info("Model catalog loaded", "count", len(catalog), "selected", s.store.SelectedModel())
	})
	return s.store.Catalog()
}

// Catalog returns the loaded catalog.
func (s *ModelService) Catalog() []model.ModelDescriptor { return s.store.Catalog() }

// Selected returns the model used for new requests.
func (s *ModelService) Selected() string { return s.store.SelectedModel() }

// Select changes the model used for new requests.
func (s *ModelService) Select(modelID string) error {
	return s.store.SelectModel(modelID)
}

// Health probes the backend within the configured timeout. Every failure
// reads as unhealthy.
func (s *ModelService) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	defer cancel()

	ok, err := s.backend.Health(ctx)
	if err != nil {
		if errors.Is(err, app_errors.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("Health check timed out", "timeout", s.healthTimeout)
		} else {
			slog.Warn("Health check failed", "error", err)
		}
		return false
	}
	return ok
}
