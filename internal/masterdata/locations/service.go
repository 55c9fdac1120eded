package locations

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
)

// ReferenceChecker reports whether stock records still point at a location.
// q is the transaction holding the location row lock.
type ReferenceChecker interface {
	LocationInUse(ctx context.Context, q db.Querier, id uuid.UUID) (bool, error)
}

type Service struct {
	repo      Repository
	refs      ReferenceChecker
	cache     *cache.Versioned
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, refs ReferenceChecker, cache *cache.Versioned, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		refs:      refs,
		cache:     cache,
		validator: validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetReferenceChecker wires the delete guard after construction, for callers
// whose checker depends on this service.
func (s *Service) SetReferenceChecker(refs ReferenceChecker) {
	s.refs = refs
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Location, int, error) {
	if filters.Limit > shared.MaxLimit {
		filters.Limit = shared.MaxLimit
	}
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Location, error) {
	if id == uuid.Nil {
		return Location{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Location, error) {
	code = normalize(Location{Code: code}).Code
	if code == "" {
		return Location{}, ErrNotFound
	}
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) Create(ctx context.Context, location Location) (Location, error) {
	location = normalize(location)
	if err := s.validate(location); err != nil {
		return Location{}, err
	}
	now := s.now()
	location.ID = uuid.New()
	location.CreatedAt = now
	location.UpdatedAt = now
	created, err := s.repo.Create(ctx, location)
	if err != nil {
		return Location{}, err
	}
	s.invalidate(ctx)
	s.logger.Info("location created", slog.String("id", created.ID.String()), slog.String("code", created.Code))
	return created, nil
}

// Update replaces the mutable attributes of an existing location.
func (s *Service) Update(ctx context.Context, id uuid.UUID, location Location) (Location, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Location{}, err
	}
	location = normalize(location)
	location.ID = current.ID
	location.CreatedAt = current.CreatedAt
	location.UpdatedAt = s.now()
	if err := s.validate(location); err != nil {
		return Location{}, err
	}
	updated, err := s.repo.Update(ctx, location)
	if err != nil {
		return Location{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes a location unless movements, open reservations or pending
// adjustments reference it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, s.referenceGuard); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.Info("location deleted", slog.String("id", id.String()))
	return nil
}

func (s *Service) referenceGuard(ctx context.Context, q db.Querier, id uuid.UUID) error {
	if s.refs == nil {
		return nil
	}
	inUse, err := s.refs.LocationInUse(ctx, q, id)
	if err != nil {
		return err
	}
	if inUse {
		return ErrInUse
	}
	return nil
}

// ListActiveByPriority returns active locations ordered by ascending priority,
// ties broken by code. The result is served from the versioned cache.
func (s *Service) ListActiveByPriority(ctx context.Context) ([]Location, error) {
	key, err := s.cache.BuildKey(ctx, "active")
	if err != nil {
		s.logger.Warn("location cache key", slog.Any("error", err))
		return s.repo.ListActive(ctx)
	}
	var locations []Location
	err = s.cache.FetchJSON(ctx, key, &locations, func(ctx context.Context) (any, error) {
		return s.repo.ListActive(ctx)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.logger.Warn("location cache fetch", slog.Any("error", err))
		return s.repo.ListActive(ctx)
	}
	return locations, nil
}

// DefaultLocation returns the explicitly flagged default location when it is
// active, else the highest-priority active location.
func (s *Service) DefaultLocation(ctx context.Context) (Location, error) {
	loc, err := s.repo.GetDefault(ctx)
	switch {
	case err == nil && loc.Active:
		return loc, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return Location{}, err
	}
	active, err := s.ListActiveByPriority(ctx)
	if err != nil {
		return Location{}, err
	}
	if len(active) == 0 {
		return Location{}, ErrNoActiveLocation
	}
	return active[0], nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("location cache bump", slog.Any("error", err))
	}
}
