package auditors

import (
	"context"
	"net/http"
	"strconv"

	"audit-planner/internal/api/respond"
	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/validation"
	"audit-planner/internal/models"
	"audit-planner/internal/planning/cascade"
)

type Service interface {
	Create(ctx context.Context, a *models.Auditor) error
	List(ctx context.Context) ([]models.Auditor, error)
	ListAvailable(ctx context.Context) ([]models.Auditor, error)
	Get(ctx context.Context, id int64) (*models.Auditor, error)
	UpdateStatus(ctx context.Context, id int64, raw string) (*cascade.Outcome, error)
	UpdateHours(ctx context.Context, id int64, hours float64) (*models.Auditor, error)
}

type Handler struct {
	svc  Service
	resp *respond.Responder
}

func NewHandler(svc Service, resp *respond.Responder) *Handler {
	return &Handler{svc: svc, resp: resp}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var a models.Auditor
	if err := respond.Decode(r, validation.SchemaAuditorCreate, &a); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	a.ID = 0
	if err := h.svc.Create(r.Context(), &a); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, a)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.List)
}

func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.ListAvailable)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context) ([]models.Auditor, error)) {
	out, err := fetch(r.Context())
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if out == nil {
		out = []models.Auditor{}
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.IDParam(r, "id")
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, a)
}

// UpdateStatus handles PUT /auditor/{id}?status=. Leaving AVAILABLE
// re-plans the auditor's stores before the response is written; the body
// is the auditor as it stands afterwards.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := respond.IDParam(r, "id")
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if _, err := h.svc.UpdateStatus(r.Context(), id, r.URL.Query().Get("status")); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, a)
}

func (h *Handler) UpdateHours(w http.ResponseWriter, r *http.Request) {
	id, err := respond.IDParam(r, "id")
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	raw := r.URL.Query().Get("hours")
	hours, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		h.resp.Error(w, r, apperrors.NewValidationErrorf("invalid hours %q", raw))
		return
	}
	a, err := h.svc.UpdateHours(r.Context(), id, hours)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, a)
}
