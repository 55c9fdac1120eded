package inventory

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata/locations"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type memoryState struct {
	levels       map[StockKey]StockLevel
	movements    []Movement
	reservations map[uuid.UUID]Reservation
	adjustments  map[uuid.UUID]Adjustment
	alerts       map[uuid.UUID]Alert
	sequences    map[string]int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		levels:       make(map[StockKey]StockLevel),
		reservations: make(map[uuid.UUID]Reservation),
		adjustments:  make(map[uuid.UUID]Adjustment),
		alerts:       make(map[uuid.UUID]Alert),
		sequences:    make(map[string]int64),
	}
}

// memoryLockWait bounds how long a transaction waits for a row lock before
// failing the way a detected deadlock does.
const memoryLockWait = 2 * time.Second

// memoryRepo mimics row-level locking: transactions lock only the rows they
// touch, buffer their writes and publish them on commit. Unrelated
// transactions run concurrently and writers of the same row queue up.
type memoryRepo struct {
	mu        sync.Mutex
	state     *memoryState
	rows      map[string]chan struct{}
	locations *stubLocations
	conflicts int
}

func newMemoryRepo(locs *stubLocations) *memoryRepo {
	return &memoryRepo{state: newMemoryState(), rows: make(map[string]chan struct{}), locations: locs}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := newMemoryTx(r)
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (r *memoryRepo) rowLock(name string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.rows[name]
	if !ok {
		ch = make(chan struct{}, 1)
		r.rows[name] = ch
	}
	return ch
}

func (r *memoryRepo) injectConflicts(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = n
}

func (r *memoryRepo) takeConflict() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts > 0 {
		r.conflicts--
		return true
	}
	return false
}

func (r *memoryRepo) level(key StockKey) StockLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.levels[key]
}

func (r *memoryRepo) movementsFor(key StockKey) []Movement {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for _, m := range r.state.movements {
		if m.VariantID == key.VariantID && touches(m, key.LocationID) {
			out = append(out, m)
		}
	}
	return out
}

func touches(m Movement, location uuid.UUID) bool {
	return (m.FromLocationID != nil && *m.FromLocationID == location) || (m.ToLocationID != nil && *m.ToLocationID == location)
}

func (r *memoryRepo) GetStockLevel(ctx context.Context, key StockKey) (StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	level, ok := r.state.levels[key]
	if !ok {
		return StockLevel{}, ErrStockLevelNotFound
	}
	return level, nil
}

func (r *memoryRepo) ReconcileSnapshot(ctx context.Context, key StockKey) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, m := range r.state.movements {
		if m.VariantID == key.VariantID {
			sum += m.OnHandDelta(key.LocationID)
		}
	}
	return r.state.levels[key].OnHand, sum, nil
}

func (r *memoryRepo) ListStockLevels(ctx context.Context, variantID uuid.UUID) ([]StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	levels := []StockLevel{}
	for key, level := range r.state.levels {
		if key.VariantID == variantID {
			levels = append(levels, level)
		}
	}
	return levels, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Movement
	for _, m := range r.state.movements {
		if filter.VariantID != nil && m.VariantID != *filter.VariantID {
			continue
		}
		if filter.LocationID != nil && !touches(m, *filter.LocationID) {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && m.OccurredAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && m.OccurredAt.After(filter.To) {
			continue
		}
		if filter.ReferenceType != "" && m.Reference.Type != filter.ReferenceType {
			continue
		}
		if filter.ReferenceID != "" && m.Reference.ID != filter.ReferenceID {
			continue
		}
		if filter.ReferenceNumber != "" && m.Reference.Number != filter.ReferenceNumber {
			continue
		}
		matched = append(matched, m)
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	start := min(shared.Offset(page, perPage), len(matched))
	end := min(start+perPage, len(matched))
	return append([]Movement{}, matched[start:end]...), len(matched), nil
}

func (r *memoryRepo) SumOutbound(ctx context.Context, key StockKey, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, m := range r.state.movements {
		if m.VariantID != key.VariantID || m.FromLocationID == nil || *m.FromLocationID != key.LocationID {
			continue
		}
		if (m.Type == MovementSale || m.Type == MovementFulfill) && !m.OccurredAt.Before(since) {
			sum -= m.Quantity
		}
	}
	return sum, nil
}

func (r *memoryRepo) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.state.reservations[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	res.Allocations = append([]Allocation(nil), res.Allocations...)
	return res, nil
}

func (r *memoryRepo) ListDueReservations(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Reservation
	for _, res := range r.state.reservations {
		if res.Status.IsTerminal() || res.ExpiresAt == nil || res.ExpiresAt.After(now) {
			continue
		}
		due = append(due, res)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(*due[j].ExpiresAt) })
	ids := []uuid.UUID{}
	for _, res := range due {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, res.ID)
	}
	return ids, nil
}

func (r *memoryRepo) GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	adj, ok := r.state.adjustments[id]
	if !ok {
		return Adjustment{}, ErrAdjustmentNotFound
	}
	return adj, nil
}

func (r *memoryRepo) ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Adjustment{}
	for _, adj := range r.state.adjustments {
		if filter.Status != "" && adj.Status != filter.Status {
			continue
		}
		if filter.LocationID != nil && adj.LocationID != *filter.LocationID {
			continue
		}
		if filter.VariantID != nil && adj.VariantID != *filter.VariantID {
			continue
		}
		out = append(out, adj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, len(out), nil
}

func (r *memoryRepo) GetAlert(ctx context.Context, id uuid.UUID) (Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.state.alerts[id]
	if !ok {
		return Alert{}, ErrAlertNotFound
	}
	return alert, nil
}

func (r *memoryRepo) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Alert{}
	for _, alert := range r.state.alerts {
		if filter.Status != "" && alert.Status != filter.Status {
			continue
		}
		if filter.LocationID != nil && alert.LocationID != *filter.LocationID {
			continue
		}
		if filter.VariantID != nil && alert.VariantID != *filter.VariantID {
			continue
		}
		out = append(out, alert)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// memoryTx buffers writes on top of the committed state. Row locks taken by
// the ForUpdate reads are held until commit or rollback.
type memoryTx struct {
	repo         *memoryRepo
	held         map[string]chan struct{}
	baseVersions map[StockKey]int64
	levels       map[StockKey]StockLevel
	movements    []Movement
	reservations map[uuid.UUID]Reservation
	adjustments  map[uuid.UUID]Adjustment
	alerts       map[uuid.UUID]Alert
	sequences    map[string]int64
}

func newMemoryTx(repo *memoryRepo) *memoryTx {
	return &memoryTx{
		repo:         repo,
		held:         make(map[string]chan struct{}),
		baseVersions: make(map[StockKey]int64),
		levels:       make(map[StockKey]StockLevel),
		reservations: make(map[uuid.UUID]Reservation),
		adjustments:  make(map[uuid.UUID]Adjustment),
		alerts:       make(map[uuid.UUID]Alert),
		sequences:    make(map[string]int64),
	}
}

func (t *memoryTx) lock(ctx context.Context, name string) error {
	if _, ok := t.held[name]; ok {
		return nil
	}
	ch := t.repo.rowLock(name)
	timer := time.NewTimer(memoryLockWait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		t.held[name] = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("lock %s: %w", name, shared.ErrConcurrency)
	}
}

func (t *memoryTx) release() {
	for name, ch := range t.held {
		<-ch
		delete(t.held, name)
	}
}

// commit publishes the buffered writes. A level whose committed version moved
// since this transaction read it fails the commit.
func (t *memoryTx) commit() error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	state := t.repo.state
	for key := range t.levels {
		base, read := t.baseVersions[key]
		if read && state.levels[key].Version != base {
			return fmt.Errorf("stock level %s/%s changed underneath: %w", key.LocationID, key.VariantID, shared.ErrConcurrency)
		}
	}
	for key, level := range t.levels {
		state.levels[key] = level
	}
	state.movements = append(state.movements, t.movements...)
	for id, res := range t.reservations {
		state.reservations[id] = res
	}
	for id, adj := range t.adjustments {
		state.adjustments[id] = adj
	}
	for id, alert := range t.alerts {
		state.alerts[id] = alert
	}
	for key, n := range t.sequences {
		state.sequences[key] = n
	}
	return nil
}

func (t *memoryTx) levelView(key StockKey) (StockLevel, bool) {
	if level, ok := t.levels[key]; ok {
		return level, true
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	level, ok := t.repo.state.levels[key]
	return level, ok
}

func levelLock(key StockKey) string {
	return "level:" + key.LocationID.String() + "/" + key.VariantID.String()
}

func (t *memoryTx) EnsureStockLevel(ctx context.Context, key StockKey, now time.Time) error {
	if _, err := t.repo.locations.Get(ctx, key.LocationID); err != nil {
		return err
	}
	if err := t.lock(ctx, levelLock(key)); err != nil {
		return err
	}
	if _, ok := t.levelView(key); !ok {
		t.levels[key] = StockLevel{VariantID: key.VariantID, LocationID: key.LocationID, UpdatedAt: now}
	}
	return nil
}

func (t *memoryTx) GetStockLevelForUpdate(ctx context.Context, key StockKey) (StockLevel, error) {
	if err := t.lock(ctx, levelLock(key)); err != nil {
		return StockLevel{}, err
	}
	level, ok := t.levelView(key)
	if !ok {
		return StockLevel{}, ErrStockLevelNotFound
	}
	if _, seen := t.baseVersions[key]; !seen {
		if _, pending := t.levels[key]; !pending {
			t.baseVersions[key] = level.Version
		}
	}
	return level, nil
}

func (t *memoryTx) UpdateStockLevel(ctx context.Context, level StockLevel, expectedVersion int64) (bool, error) {
	if t.repo.takeConflict() {
		return false, nil
	}
	current, ok := t.levelView(level.Key())
	if !ok || current.Version != expectedVersion {
		return false, nil
	}
	t.levels[level.Key()] = level
	return true, nil
}

func (t *memoryTx) GetLocationRef(ctx context.Context, id uuid.UUID) (LocationRef, error) {
	loc, err := t.repo.locations.Get(ctx, id)
	if err != nil {
		return LocationRef{}, err
	}
	return LocationRef{ID: loc.ID, Code: loc.Code, Name: loc.Name}, nil
}

func (t *memoryTx) InsertMovement(ctx context.Context, m Movement) error {
	t.movements = append(t.movements, m)
	return nil
}

func (t *memoryTx) reservationView(id uuid.UUID) (Reservation, bool) {
	res, ok := t.reservations[id]
	if !ok {
		t.repo.mu.Lock()
		res, ok = t.repo.state.reservations[id]
		t.repo.mu.Unlock()
	}
	res.Allocations = append([]Allocation(nil), res.Allocations...)
	return res, ok
}

func (t *memoryTx) InsertReservation(ctx context.Context, res Reservation) error {
	if err := t.lock(ctx, "reservation:"+res.ID.String()); err != nil {
		return err
	}
	res.Allocations = append([]Allocation(nil), res.Allocations...)
	t.reservations[res.ID] = res
	return nil
}

func (t *memoryTx) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	if err := t.lock(ctx, "reservation:"+id.String()); err != nil {
		return Reservation{}, err
	}
	res, ok := t.reservationView(id)
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return res, nil
}

func (t *memoryTx) UpdateReservation(ctx context.Context, res Reservation) error {
	if _, ok := t.reservationView(res.ID); !ok {
		return ErrReservationNotFound
	}
	res.Allocations = append([]Allocation(nil), res.Allocations...)
	t.reservations[res.ID] = res
	return nil
}

func (t *memoryTx) adjustmentView(id uuid.UUID) (Adjustment, bool) {
	if adj, ok := t.adjustments[id]; ok {
		return adj, true
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	adj, ok := t.repo.state.adjustments[id]
	return adj, ok
}

func (t *memoryTx) InsertAdjustment(ctx context.Context, adj Adjustment) error {
	if err := t.lock(ctx, "adjustment:"+adj.ID.String()); err != nil {
		return err
	}
	t.adjustments[adj.ID] = adj
	return nil
}

func (t *memoryTx) GetAdjustmentForUpdate(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	if err := t.lock(ctx, "adjustment:"+id.String()); err != nil {
		return Adjustment{}, err
	}
	adj, ok := t.adjustmentView(id)
	if !ok {
		return Adjustment{}, ErrAdjustmentNotFound
	}
	return adj, nil
}

func (t *memoryTx) UpdateAdjustment(ctx context.Context, adj Adjustment) error {
	if _, ok := t.adjustmentView(adj.ID); !ok {
		return ErrAdjustmentNotFound
	}
	t.adjustments[adj.ID] = adj
	return nil
}

func (t *memoryTx) alertView(id uuid.UUID) (Alert, bool) {
	if alert, ok := t.alerts[id]; ok {
		return alert, true
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	alert, ok := t.repo.state.alerts[id]
	return alert, ok
}

func (t *memoryTx) activeAlert(key StockKey) (Alert, bool) {
	for _, alert := range t.alerts {
		if alert.Key() == key && alert.Status == AlertActive {
			return alert, true
		}
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for id, alert := range t.repo.state.alerts {
		if _, shadowed := t.alerts[id]; shadowed {
			continue
		}
		if alert.Key() == key && alert.Status == AlertActive {
			return alert, true
		}
	}
	return Alert{}, false
}

func alertKeyLock(key StockKey) string {
	return "alert:" + key.LocationID.String() + "/" + key.VariantID.String()
}

func (t *memoryTx) GetActiveAlertForUpdate(ctx context.Context, key StockKey) (Alert, error) {
	if err := t.lock(ctx, alertKeyLock(key)); err != nil {
		return Alert{}, err
	}
	alert, ok := t.activeAlert(key)
	if !ok {
		return Alert{}, ErrAlertNotFound
	}
	alert, err := t.GetAlertForUpdate(ctx, alert.ID)
	if err != nil {
		return Alert{}, err
	}
	if alert.Status != AlertActive {
		return Alert{}, ErrAlertNotFound
	}
	return alert, nil
}

func (t *memoryTx) GetAlertForUpdate(ctx context.Context, id uuid.UUID) (Alert, error) {
	if err := t.lock(ctx, "alert-id:"+id.String()); err != nil {
		return Alert{}, err
	}
	alert, ok := t.alertView(id)
	if !ok {
		return Alert{}, ErrAlertNotFound
	}
	return alert, nil
}

func (t *memoryTx) InsertAlert(ctx context.Context, alert Alert) error {
	if _, ok := t.activeAlert(alert.Key()); ok && alert.Status == AlertActive {
		return shared.ErrConcurrency
	}
	if err := t.lock(ctx, "alert-id:"+alert.ID.String()); err != nil {
		return err
	}
	t.alerts[alert.ID] = alert
	return nil
}

func (t *memoryTx) UpdateAlert(ctx context.Context, alert Alert) error {
	if _, ok := t.alertView(alert.ID); !ok {
		return ErrAlertNotFound
	}
	t.alerts[alert.ID] = alert
	return nil
}

func (t *memoryTx) NextSequence(ctx context.Context, prefix string, day time.Time) (int64, error) {
	key := prefix + day.Format("20060102")
	if err := t.lock(ctx, "sequence:"+key); err != nil {
		return 0, err
	}
	n, ok := t.sequences[key]
	if !ok {
		t.repo.mu.Lock()
		n = t.repo.state.sequences[key]
		t.repo.mu.Unlock()
	}
	n++
	t.sequences[key] = n
	return n, nil
}

type stubLocations struct {
	mu    sync.Mutex
	items map[uuid.UUID]locations.Location
}

func newStubLocations() *stubLocations {
	return &stubLocations{items: make(map[uuid.UUID]locations.Location)}
}

func (s *stubLocations) add(code string, priority int, active bool) locations.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := locations.Location{
		ID:       uuid.New(),
		Code:     code,
		Name:     "Location " + code,
		Type:     locations.TypeWarehouse,
		Priority: priority,
		Active:   active,
	}
	s.items[loc.ID] = loc
	return loc
}

func (s *stubLocations) Get(ctx context.Context, id uuid.UUID) (locations.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.items[id]
	if !ok {
		return locations.Location{}, locations.ErrNotFound
	}
	return loc, nil
}

func (s *stubLocations) ListActiveByPriority(ctx context.Context) ([]locations.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []locations.Location{}
	for _, loc := range s.items {
		if loc.Active {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []AlertEvent
	err    error
}

func (e *eventRecorder) PublishAlertEvent(ctx context.Context, evt AlertEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return e.err
}

func (e *eventRecorder) types() []AlertEventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AlertEventType, len(e.events))
	for i, evt := range e.events {
		out[i] = evt.Type
	}
	return out
}

type approvalRecorder struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
}

func (a *approvalRecorder) Record(ctx context.Context, log shared.ApprovalLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *approvalRecorder) List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []shared.ApprovalLog{}
	for _, l := range a.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type fixture struct {
	svc       *Service
	repo      *memoryRepo
	locs      *stubLocations
	events    *eventRecorder
	approvals *approvalRecorder
	registry  *prometheus.Registry
	w1, w2    locations.Location
	variant   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	locs := newStubLocations()
	f := &fixture{
		locs:      locs,
		repo:      newMemoryRepo(locs),
		events:    &eventRecorder{},
		approvals: &approvalRecorder{},
		registry:  prometheus.NewRegistry(),
		w1:        locs.add("W1", 1, true),
		w2:        locs.add("W2", 2, true),
		variant:   uuid.New(),
	}
	f.svc = NewService(f.repo, locs, Ports{
		Approvals:   f.approvals,
		Idempotency: &memoryIdempotency{keys: make(map[string]struct{})},
		Events:      f.events,
		Metrics:     observability.NewInventoryMetrics(f.registry),
	}, ServiceConfig{MaxRetries: 3, ForecastWindow: 30 * 24 * time.Hour}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	return f
}

func (f *fixture) ctx() context.Context {
	return shared.ContextWithActor(context.Background(), "tester")
}

func (f *fixture) key(loc locations.Location) StockKey {
	return StockKey{VariantID: f.variant, LocationID: loc.ID}
}

func (f *fixture) level(loc locations.Location) StockLevel {
	return f.repo.level(f.key(loc))
}

func (f *fixture) receive(t *testing.T, loc locations.Location, qty int64) {
	t.Helper()
	_, err := f.svc.Receive(f.ctx(), ReceiveInput{VariantID: f.variant, LocationID: loc.ID, Quantity: qty})
	require.NoError(t, err)
}

func (f *fixture) reserve(t *testing.T, qty int64, locs ...locations.Location) Reservation {
	t.Helper()
	ids := make([]uuid.UUID, len(locs))
	for i, loc := range locs {
		ids[i] = loc.ID
	}
	res, err := f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: qty, LocationIDs: ids})
	require.NoError(t, err)
	return res
}

func (f *fixture) setReorderPoint(t *testing.T, loc locations.Location, point int64) {
	t.Helper()
	_, err := f.svc.SetReorderSettings(f.ctx(), f.variant, loc.ID, &point, nil)
	require.NoError(t, err)
}

// requireBalanced checks the ledger invariants and that the movement trail
// sums to on hand.
func (f *fixture) requireBalanced(t *testing.T, locs ...locations.Location) {
	t.Helper()
	for _, loc := range locs {
		level := f.level(loc)
		require.GreaterOrEqual(t, level.Reserved, int64(0))
		require.LessOrEqual(t, level.Reserved, level.OnHand)
		require.GreaterOrEqual(t, level.Available(), int64(0))
		rec, err := f.svc.Reconcile(f.ctx(), f.variant, loc.ID)
		require.NoError(t, err)
		require.True(t, rec.Balanced, "movement sum %d != on hand %d at %s", rec.MovementSum, rec.OnHand, loc.Code)
	}
}

func (f *fixture) activeAlerts(t *testing.T) []Alert {
	t.Helper()
	alerts, err := f.svc.ListActiveAlerts(f.ctx(), nil)
	require.NoError(t, err)
	return alerts
}
