package services

import (
	"context"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driving"
)

// Ensure AdminService implements the port.
var _ driving.SourceAdmin = (*AdminService)(nil)

// AdminService is the administrative surface over sources. It composes
// the registry (configuration and metrics) with the ingestor
// (scheduling), so a config change and its timer consequence happen in
// one call.
type AdminService struct {
	registry *SourceRegistry
	ingestor *Ingestor
}

// NewAdminService creates the admin service.
func NewAdminService(registry *SourceRegistry, ingestor *Ingestor) *AdminService {
	return &AdminService{registry: registry, ingestor: ingestor}
}

// Get returns one source's configuration.
func (s *AdminService) Get(_ context.Context, id string) (*domain.SourceConfig, error) {
	return s.registry.Get(id)
}

// List returns every registered source configuration.
func (s *AdminService) List(_ context.Context) ([]domain.SourceConfig, error) {
	return s.registry.List(), nil
}

// Add registers a new source and starts polling it if enabled.
func (s *AdminService) Add(ctx context.Context, cfg domain.SourceConfig) error {
	if err := s.registry.Add(ctx, cfg); err != nil {
		return err
	}
	if cfg.Enabled {
		s.ingestor.Schedule(cfg.ID)
	}
	return nil
}

// Update replaces a source's configuration and reschedules its timer so
// a cadence or quota edit takes effect without a duplicate timer or a
// lost source.
func (s *AdminService) Update(ctx context.Context, cfg domain.SourceConfig) error {
	if err := s.registry.Update(ctx, cfg); err != nil {
		return err
	}
	s.ingestor.Reschedule(cfg.ID)
	return nil
}

// Enable starts polling a source.
func (s *AdminService) Enable(ctx context.Context, id string) error {
	if err := s.registry.SetEnabled(ctx, id, true); err != nil {
		return err
	}
	s.ingestor.Schedule(id)
	return nil
}

// Disable stops polling a source. An in-flight poll drains; it will not
// re-arm once the enabled flag is off.
func (s *AdminService) Disable(ctx context.Context, id string) error {
	if err := s.registry.SetEnabled(ctx, id, false); err != nil {
		return err
	}
	s.ingestor.Cancel(id)
	return nil
}

// Remove deletes a disabled source.
func (s *AdminService) Remove(ctx context.Context, id string) error {
	if err := s.registry.Remove(ctx, id); err != nil {
		return err
	}
	s.ingestor.Cancel(id)
	return nil
}

// Status returns one source's config, metrics, and limiter state, with
// the next scheduled poll time filled in from the orchestrator.
func (s *AdminService) Status(_ context.Context, id string) (*domain.SourceStatus, error) {
	status, err := s.registry.Status(id)
	if err != nil {
		return nil, err
	}
	if next, ok := s.ingestor.NextPoll(id); ok {
		status.Metrics.NextPoll = next
	}
	return status, nil
}

// ResetQuota clears a source's rate-limit window administratively.
func (s *AdminService) ResetQuota(_ context.Context, id string) error {
	return s.registry.ResetQuota(id)
}
