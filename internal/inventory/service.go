package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata/locations"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// LocationDirectory resolves locations for routing and validation.
type LocationDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (locations.Location, error)
	ListActiveByPriority(ctx context.Context) ([]locations.Location, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort stores adjustment approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// IdempotencyPort guards against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Ports groups the optional collaborators of Service. Nil members are skipped.
type Ports struct {
	Audit       AuditPort
	Approvals   ApprovalPort
	Idempotency IdempotencyPort
	Events      EventPublisher
	Metrics     *observability.InventoryMetrics
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	MaxRetries int
	// RetryBackoff is the base delay before the first retry of a lost write
	// race. Later retries double it, each delay jittered down by up to half.
	RetryBackoff          time.Duration
	DefaultReservationTTL time.Duration
	ForecastWindow        time.Duration
}

// Service coordinates inventory operations.
type Service struct {
	repo      RepositoryPort
	locations LocationDirectory
	ports     Ports
	cfg       ServiceConfig
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error

	ledger   StockLedger
	recorder MovementRecorder
	alerts   AlertEngine
}

// NewService builds Service.
func NewService(repo RepositoryPort, locations LocationDirectory, ports Ports, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ForecastWindow <= 0 {
		cfg.ForecastWindow = 30 * 24 * time.Hour
	}
	s := &Service{
		repo:      repo,
		locations: locations,
		ports:     ports,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepContext,
	}
	clock := func() time.Time { return s.now() }
	s.ledger = StockLedger{clock: clock}
	s.recorder = MovementRecorder{clock: clock}
	s.alerts = AlertEngine{clock: clock}
	return s
}

// txScope carries one transaction attempt and what it produced.
type txScope struct {
	tx        TxRepository
	now       time.Time
	movements []Movement
	events    []AlertEvent
}

// execute runs fn in a transaction, retrying lost write races up to the
// configured limit. Events and metrics are emitted only after commit.
func (s *Service) execute(ctx context.Context, op string, fn func(context.Context, *txScope) error) (*txScope, error) {
	attempts := s.cfg.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		sc := &txScope{now: s.now()}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			sc.tx = tx
			return fn(ctx, sc)
		})
		if err == nil {
			s.afterCommit(ctx, sc)
			return sc, nil
		}
		if !errors.Is(err, shared.ErrConcurrency) || attempt == attempts || ctx.Err() != nil {
			break
		}
		delay := retryDelay(s.cfg.RetryBackoff, attempt)
		s.ports.Metrics.TxRetried(op)
		s.logger.Debug("inventory tx retry", slog.String("operation", op), slog.Int("attempt", attempt),
			slog.Duration("delay", delay), slog.Any("error", err))
		if serr := s.sleep(ctx, delay); serr != nil {
			return nil, fmt.Errorf("inventory: %s retry abandoned: %w", op, serr)
		}
	}
	return nil, err
}

// retryDelay doubles base for every attempt after the first, capped at 64x,
// and picks a random delay in the upper half of that window.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	window := base << min(max(attempt-1, 0), 6)
	return window/2 + rand.N(window/2+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) afterCommit(ctx context.Context, sc *txScope) {
	for _, m := range sc.movements {
		s.ports.Metrics.MovementRecorded(string(m.Type))
	}
	for _, evt := range sc.events {
		s.ports.Metrics.AlertEvent(string(evt.Type))
		if s.ports.Events == nil {
			continue
		}
		if err := s.ports.Events.PublishAlertEvent(ctx, evt); err != nil {
			s.logger.Error("publish alert event", slog.String("type", string(evt.Type)),
				slog.String("alert_id", evt.Alert.ID.String()), slog.Any("error", err))
		}
	}
}

// apply changes quantities through the ledger and re-evaluates the alert.
func (s *Service) apply(ctx context.Context, sc *txScope, key StockKey, deltaOnHand, deltaReserved int64) (StockLevel, error) {
	level, err := s.ledger.ApplyDelta(ctx, sc.tx, key, deltaOnHand, deltaReserved)
	if err != nil {
		return StockLevel{}, err
	}
	if err := s.evaluate(ctx, sc, level); err != nil {
		return StockLevel{}, err
	}
	return level, nil
}

func (s *Service) evaluate(ctx context.Context, sc *txScope, level StockLevel) error {
	evt, err := s.alerts.Evaluate(ctx, sc.tx, level)
	if err != nil {
		return err
	}
	if evt != nil {
		sc.events = append(sc.events, *evt)
	}
	return nil
}

func (s *Service) record(ctx context.Context, sc *txScope, m Movement) (Movement, error) {
	m.OccurredAt = sc.now
	if m.ActorID == "" {
		m.ActorID = shared.ActorFromContext(ctx)
	}
	stored, err := s.recorder.Append(ctx, sc.tx, m)
	if err != nil {
		return Movement{}, err
	}
	sc.movements = append(sc.movements, stored)
	return stored, nil
}

func (s *Service) audit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.ports.Audit == nil {
		return
	}
	err := s.ports.Audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// location loads a location and, when requireActive is set, rejects inactive ones.
func (s *Service) location(ctx context.Context, id uuid.UUID, requireActive bool) (locations.Location, error) {
	if id == uuid.Nil {
		return locations.Location{}, ErrLocationRequired
	}
	loc, err := s.locations.Get(ctx, id)
	if err != nil {
		return locations.Location{}, err
	}
	if requireActive && !loc.Active {
		return locations.Location{}, fmt.Errorf("%w: %s", ErrLocationInactive, loc.Code)
	}
	return loc, nil
}

func validateQuantity(variantID uuid.UUID, quantity int64) error {
	if variantID == uuid.Nil {
		return ErrVariantRequired
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
