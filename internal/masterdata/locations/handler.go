package locations

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers location routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/active", h.ListActive)
	r.Get("/default", h.Default)
	r.Get("/code/{code}", h.ShowByCode)
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

type locationRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Type      Type   `json:"type"`
	Priority  int    `json:"priority"`
	Capacity  *int64 `json:"capacity"`
	IsDefault bool   `json:"is_default"`
	Active    *bool  `json:"active"`
}

func (req locationRequest) toLocation() Location {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return Location{
		Code:      req.Code,
		Name:      req.Name,
		Type:      req.Type,
		Priority:  req.Priority,
		Capacity:  req.Capacity,
		IsDefault: req.IsDefault,
		Active:    active,
	}
}

type listResponse struct {
	Data       []Location                `json:"data"`
	Pagination internalShared.Pagination `json:"pagination"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = shared.DefaultPage
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = shared.DefaultLimit
	}
	filters := shared.ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  q.Get("search"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
		Type:    q.Get("type"),
	}
	if raw := q.Get("active"); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			filters.IsActive = &parsed
		}
	}

	locations, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list locations failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Data:       locations,
		Pagination: internalShared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	locations, err := h.service.ListActiveByPriority(r.Context())
	if err != nil {
		h.fail(w, "list active locations failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": locations})
}

func (h *Handler) Default(w http.ResponseWriter, r *http.Request) {
	location, err := h.service.DefaultLocation(r.Context())
	if err != nil {
		h.fail(w, "default location failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, location)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	location, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get location failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, location)
}

func (h *Handler) ShowByCode(w http.ResponseWriter, r *http.Request) {
	location, err := h.service.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get location by code failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, location)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), req.toLocation())
	if err != nil {
		h.fail(w, "create location failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req locationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.Update(r.Context(), id, req.toLocation())
	if err != nil {
		h.fail(w, "update location failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete location failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.IsServerError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid location id", internalShared.ErrValidation)
	}
	return id, nil
}
