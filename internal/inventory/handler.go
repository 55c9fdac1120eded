package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// IdempotencyHeader carries the client key that deduplicates reservations.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.handleReceive)
	r.Post("/sales", h.handleSell)
	r.Post("/transfers", h.handleTransfer)

	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", h.handleReserve)
		r.Get("/{id}", h.handleGetReservation)
		r.Post("/{id}/release", h.handleRelease)
		r.Post("/{id}/fulfill", h.handleFulfill)
	})

	r.Route("/stock/{variantID}", func(r chi.Router) {
		r.Get("/", h.handleVariantSummary)
		r.Get("/{locationID}", h.handleStockLevel)
		r.Put("/{locationID}/reorder", h.handleReorderSettings)
		r.Post("/{locationID}/count", h.handleRecordCount)
		r.Get("/{locationID}/reconcile", h.handleReconcile)
	})

	r.Get("/movements", h.handleListMovements)

	r.Route("/adjustments", func(r chi.Router) {
		r.Get("/", h.handleListAdjustments)
		r.Post("/", h.handleSubmitAdjustment)
		r.Get("/{id}", h.handleGetAdjustment)
		r.Post("/{id}/approve", h.handleApproveAdjustment)
		r.Post("/{id}/reject", h.handleRejectAdjustment)
		r.Get("/{id}/approvals", h.handleAdjustmentApprovals)
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.handleListAlerts)
		r.Get("/{id}", h.handleGetAlert)
		r.Post("/{id}/resolve", h.handleResolveAlert)
		r.Post("/{id}/ignore", h.handleIgnoreAlert)
	})
}

type referenceRequest struct {
	Type   string `json:"type" validate:"max=64"`
	ID     string `json:"id" validate:"max=128"`
	Number string `json:"number" validate:"max=128"`
}

func (r referenceRequest) toReference() Reference {
	return Reference{Type: r.Type, ID: r.ID, Number: r.Number}
}

type receiveRequest struct {
	VariantID  string           `json:"variant_id" validate:"required,uuid"`
	LocationID string           `json:"location_id" validate:"required,uuid"`
	Quantity   int64            `json:"quantity" validate:"gt=0"`
	UnitCost   *float64         `json:"unit_cost" validate:"omitempty,gte=0"`
	Reference  referenceRequest `json:"reference"`
	Note       string           `json:"note" validate:"max=1000"`
}

type sellRequest struct {
	VariantID  string           `json:"variant_id" validate:"required,uuid"`
	LocationID string           `json:"location_id" validate:"required,uuid"`
	Quantity   int64            `json:"quantity" validate:"gt=0"`
	Reference  referenceRequest `json:"reference"`
	Note       string           `json:"note" validate:"max=1000"`
}

type transferRequest struct {
	VariantID      string           `json:"variant_id" validate:"required,uuid"`
	FromLocationID string           `json:"from_location_id" validate:"required,uuid"`
	ToLocationID   string           `json:"to_location_id" validate:"required,uuid,nefield=FromLocationID"`
	Quantity       int64            `json:"quantity" validate:"gt=0"`
	Reference      referenceRequest `json:"reference"`
	Note           string           `json:"note" validate:"max=1000"`
}

type reserveRequest struct {
	VariantID   string           `json:"variant_id" validate:"required,uuid"`
	Quantity    int64            `json:"quantity" validate:"gt=0"`
	LocationIDs []string         `json:"location_ids" validate:"omitempty,dive,uuid"`
	Reference   referenceRequest `json:"reference"`
	TTLSeconds  *int64           `json:"ttl_seconds" validate:"omitempty,min=0,max=31536000"`
}

type fulfillRequest struct {
	Quantity int64 `json:"quantity" validate:"gt=0"`
}

type reorderRequest struct {
	ReorderPoint    *int64 `json:"reorder_point" validate:"omitempty,gte=0"`
	ReorderQuantity *int64 `json:"reorder_quantity" validate:"omitempty,gte=0"`
}

type countRequest struct {
	CountedAt *time.Time `json:"counted_at"`
}

type adjustmentRequest struct {
	LocationID  string `json:"location_id" validate:"required,uuid"`
	VariantID   string `json:"variant_id" validate:"required,uuid"`
	ExpectedQty int64  `json:"expected_qty" validate:"gte=0"`
	ActualQty   int64  `json:"actual_qty" validate:"gte=0"`
	Reason      string `json:"reason" validate:"omitempty,oneof=CYCLE_COUNT DAMAGE LOSS FOUND RETURN OTHER"`
	SubmittedBy string `json:"submitted_by" validate:"max=128"`
	Notes       string `json:"notes" validate:"max=2000"`
}

type decisionRequest struct {
	Actor string `json:"actor" validate:"max=128"`
	Notes string `json:"notes" validate:"max=2000"`
}

type pageResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	movement, err := h.service.Receive(r.Context(), ReceiveInput{
		VariantID:  uuid.MustParse(req.VariantID),
		LocationID: uuid.MustParse(req.LocationID),
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		Reference:  req.Reference.toReference(),
		Note:       req.Note,
	})
	if err != nil {
		h.fail(w, "receive failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleSell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if !h.decode(w, r, &req) {
		return
	}
	movement, err := h.service.Sell(r.Context(), SellInput{
		VariantID:  uuid.MustParse(req.VariantID),
		LocationID: uuid.MustParse(req.LocationID),
		Quantity:   req.Quantity,
		Reference:  req.Reference.toReference(),
		Note:       req.Note,
	})
	if err != nil {
		h.fail(w, "sale failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	movement, err := h.service.Transfer(r.Context(), TransferInput{
		VariantID:      uuid.MustParse(req.VariantID),
		FromLocationID: uuid.MustParse(req.FromLocationID),
		ToLocationID:   uuid.MustParse(req.ToLocationID),
		Quantity:       req.Quantity,
		Reference:      req.Reference.toReference(),
		Note:           req.Note,
	})
	if err != nil {
		h.fail(w, "transfer failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := ReserveInput{
		VariantID:      uuid.MustParse(req.VariantID),
		Quantity:       req.Quantity,
		Reference:      req.Reference.toReference(),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	}
	for _, raw := range req.LocationIDs {
		input.LocationIDs = append(input.LocationIDs, uuid.MustParse(raw))
	}
	if req.TTLSeconds != nil {
		ttl := time.Duration(*req.TTLSeconds) * time.Second
		input.TTL = &ttl
	}
	reservation, err := h.service.Reserve(r.Context(), input)
	if err != nil {
		h.fail(w, "reserve failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reservation)
}

func (h *Handler) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	reservation, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.fail(w, "get reservation failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reservation)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Release(r.Context(), id); err != nil {
		h.fail(w, "release failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req fulfillRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Fulfill(r.Context(), id, req.Quantity)
	if err != nil {
		h.fail(w, "fulfill failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleVariantSummary(w http.ResponseWriter, r *http.Request) {
	variantID, ok := h.pathID(w, r, "variantID")
	if !ok {
		return
	}
	summary, err := h.service.VariantSummary(r.Context(), variantID)
	if err != nil {
		h.fail(w, "variant summary failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleStockLevel(w http.ResponseWriter, r *http.Request) {
	key, ok := h.stockKey(w, r)
	if !ok {
		return
	}
	status, err := h.service.GetStockLevel(r.Context(), key.VariantID, key.LocationID)
	if err != nil {
		h.fail(w, "get stock level failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) handleReorderSettings(w http.ResponseWriter, r *http.Request) {
	key, ok := h.stockKey(w, r)
	if !ok {
		return
	}
	var req reorderRequest
	if !h.decode(w, r, &req) {
		return
	}
	level, err := h.service.SetReorderSettings(r.Context(), key.VariantID, key.LocationID, req.ReorderPoint, req.ReorderQuantity)
	if err != nil {
		h.fail(w, "reorder settings failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) handleRecordCount(w http.ResponseWriter, r *http.Request) {
	key, ok := h.stockKey(w, r)
	if !ok {
		return
	}
	var req countRequest
	if !h.decode(w, r, &req) {
		return
	}
	var countedAt time.Time
	if req.CountedAt != nil {
		countedAt = *req.CountedAt
	}
	level, err := h.service.RecordCount(r.Context(), key.VariantID, key.LocationID, countedAt)
	if err != nil {
		h.fail(w, "record count failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	key, ok := h.stockKey(w, r)
	if !ok {
		return
	}
	result, err := h.service.Reconcile(r.Context(), key.VariantID, key.LocationID)
	if err != nil {
		h.fail(w, "reconcile failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		Type:            MovementType(strings.ToUpper(q.Get("type"))),
		ReferenceType:   q.Get("reference_type"),
		ReferenceID:     q.Get("reference_id"),
		ReferenceNumber: q.Get("reference_number"),
	}
	var err error
	if filter.VariantID, err = queryUUID(q.Get("variant_id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.LocationID, err = queryUUID(q.Get("location_id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.From, err = queryTime(q.Get("from"), false); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = queryTime(q.Get("to"), true); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	movements, total, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, "list movements failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pageResponse[Movement]{
		Data:       movements,
		Pagination: shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) handleSubmitAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	submittedBy := req.SubmittedBy
	if submittedBy == "" {
		submittedBy = shared.ActorFromContext(r.Context())
	}
	adj, err := h.service.SubmitAdjustment(r.Context(), SubmitAdjustmentInput{
		LocationID:  uuid.MustParse(req.LocationID),
		VariantID:   uuid.MustParse(req.VariantID),
		ExpectedQty: req.ExpectedQty,
		ActualQty:   req.ActualQty,
		Reason:      AdjustmentReason(req.Reason),
		SubmittedBy: submittedBy,
		Notes:       req.Notes,
	})
	if err != nil {
		h.fail(w, "submit adjustment failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AdjustmentFilter{Status: AdjustmentStatus(strings.ToUpper(q.Get("status")))}
	var err error
	if filter.VariantID, err = queryUUID(q.Get("variant_id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.LocationID, err = queryUUID(q.Get("location_id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	adjustments, total, err := h.service.ListAdjustments(r.Context(), filter)
	if err != nil {
		h.fail(w, "list adjustments failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pageResponse[Adjustment]{
		Data:       adjustments,
		Pagination: shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) handleGetAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	adj, err := h.service.GetAdjustment(r.Context(), id)
	if err != nil {
		h.fail(w, "get adjustment failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleApproveAdjustment(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decision(w, r)
	if !ok {
		return
	}
	adj, err := h.service.ApproveAdjustment(r.Context(), id, req.Actor)
	if err != nil {
		h.fail(w, "approve adjustment failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleRejectAdjustment(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decision(w, r)
	if !ok {
		return
	}
	adj, err := h.service.RejectAdjustment(r.Context(), id, req.Actor, req.Notes)
	if err != nil {
		h.fail(w, "reject adjustment failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleAdjustmentApprovals(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	logs, err := h.service.AdjustmentApprovals(r.Context(), id)
	if err != nil {
		h.fail(w, "adjustment approvals failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": logs})
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AlertFilter{Status: AlertStatus(strings.ToUpper(q.Get("status")))}
	var err error
	if filter.VariantID, err = queryUUID(q.Get("variant_id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.LocationID, err = queryUUID(q.Get("location_id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	var alerts []Alert
	if filter.Status == "" && filter.VariantID == nil {
		alerts, err = h.service.ListActiveAlerts(r.Context(), filter.LocationID)
	} else {
		alerts, err = h.service.ListAlerts(r.Context(), filter)
	}
	if err != nil {
		h.fail(w, "list alerts failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": alerts})
}

func (h *Handler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	alert, err := h.service.GetAlert(r.Context(), id)
	if err != nil {
		h.fail(w, "get alert failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}

func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decision(w, r)
	if !ok {
		return
	}
	alert, err := h.service.ResolveAlert(r.Context(), id, req.Actor, req.Notes)
	if err != nil {
		h.fail(w, "resolve alert failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}

func (h *Handler) handleIgnoreAlert(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decision(w, r)
	if !ok {
		return
	}
	alert, err := h.service.IgnoreAlert(r.Context(), id, req.Actor, req.Notes)
	if err != nil {
		h.fail(w, "ignore alert failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}

// decode reads and validates a JSON body, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.RespondError(w, validationError(err))
		return false
	}
	return true
}

// decision decodes an approve/reject/resolve body. An empty body is allowed
// and the actor falls back to the request actor.
func (h *Handler) decision(w http.ResponseWriter, r *http.Request) (uuid.UUID, decisionRequest, bool) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return uuid.Nil, decisionRequest{}, false
	}
	var req decisionRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return uuid.Nil, decisionRequest{}, false
		}
	}
	if req.Actor == "" {
		req.Actor = shared.ActorFromContext(r.Context())
	}
	return id, req, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid %s", shared.ErrValidation, param))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) stockKey(w http.ResponseWriter, r *http.Request) (StockKey, bool) {
	variantID, ok := h.pathID(w, r, "variantID")
	if !ok {
		return StockKey{}, false
	}
	locationID, ok := h.pathID(w, r, "locationID")
	if !ok {
		return StockKey{}, false
	}
	return StockKey{VariantID: variantID, LocationID: locationID}, true
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.IsServerError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: %v", shared.ErrValidation, err)
}

func queryUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", shared.ErrValidation, raw)
	}
	return &id, nil
}

// queryTime accepts RFC3339 or a plain date; a plain upper bound covers the
// whole day.
func queryTime(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time %q", shared.ErrValidation, raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
