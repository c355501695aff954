package estimates

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/smetaflow/smetaflow/internal/money"
	"github.com/smetaflow/smetaflow/internal/platform/httpx"
	"github.com/smetaflow/smetaflow/internal/shared"
)

// userIDHeader carries the opaque principal supplied by the caller. Identity
// is resolved upstream; this service records it without validating it.
const userIDHeader = "X-User-ID"

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

type estimateResponse struct {
	*Estimate
	TotalDisplay string `json:"total_display"`
}

func toResponse(e *Estimate) estimateResponse {
	return estimateResponse{Estimate: e, TotalDisplay: money.FormatRUB(e.Totals.Total)}
}

type listResponse struct {
	Estimates  []estimateResponse `json:"estimates"`
	Pagination shared.Pagination  `json:"pagination"`
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCatalogNotFound):
		err = httpx.Classify(httpx.ErrNotFound, err)
	case errors.Is(err, ErrInvalidTransition):
		err = httpx.Classify(httpx.ErrConflict, err)
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidLaborCost),
		errors.Is(err, ErrMinimumItems),
		errors.Is(err, ErrItemIndex):
		err = httpx.Classify(httpx.ErrValidation, err)
	default:
		h.logger.Error("estimate request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) principal(r *http.Request) string {
	if id := r.Header.Get(userIDHeader); id != "" {
		return id
	}
	return "anonymous"
}

func (h *Handler) estimateID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid estimate id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEstimateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	estimate, err := h.service.Create(r.Context(), req, h.principal(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(estimate))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.estimateID(w, r)
	if !ok {
		return
	}
	estimate, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(estimate))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage, offset := shared.ParsePagination(r, 50, 500)

	req := ListEstimatesRequest{Limit: perPage, Offset: offset}
	if s := r.URL.Query().Get("status"); s != "" {
		status := EstimateStatus(s)
		if !status.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status: "+s)
			return
		}
		req.Status = &status
	}
	if c := r.URL.Query().Get("client"); c != "" {
		req.ClientName = &c
	}
	if p := r.URL.Query().Get("project_ref"); p != "" {
		ref, err := uuid.Parse(p)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid project_ref")
			return
		}
		req.ProjectRef = &ref
	}
	if d := parseDate(r.URL.Query().Get("date_from")); d != nil {
		req.DateFrom = d
	}
	if d := parseDate(r.URL.Query().Get("date_to")); d != nil {
		req.DateTo = d
	}

	list, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := listResponse{
		Estimates:  make([]estimateResponse, 0, len(list)),
		Pagination: shared.NewPagination(page, perPage, total),
	}
	for i := range list {
		resp.Estimates = append(resp.Estimates, toResponse(&list[i]))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.estimateID(w, r)
	if !ok {
		return
	}
	var req UpdateEstimateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	estimate, err := h.service.Edit(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(estimate))
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID) (*Estimate, error) {
		return h.service.Send(r.Context(), id)
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID) (*Estimate, error) {
		return h.service.Approve(r.Context(), id, h.principal(r))
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}
	h.transition(w, r, func(id uuid.UUID) (*Estimate, error) {
		return h.service.Reject(r.Context(), id, h.principal(r), req.Reason)
	})
}

func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID) (*Estimate, error) {
		return h.service.Expire(r.Context(), id)
	})
}

func (h *Handler) Copy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.estimateID(w, r)
	if !ok {
		return
	}
	estimate, err := h.service.Copy(r.Context(), id, h.principal(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(estimate))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.estimateID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	totals, err := h.service.Preview(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID) (*Estimate, error)) {
	id, ok := h.estimateID(w, r)
	if !ok {
		return
	}
	estimate, err := fn(id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(estimate))
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
