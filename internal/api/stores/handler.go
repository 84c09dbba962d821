package stores

import (
	"context"
	"net/http"

	"audit-planner/internal/api/respond"
	"audit-planner/internal/common/validation"
	"audit-planner/internal/models"
	"audit-planner/internal/services"
)

type Service interface {
	Create(ctx context.Context, st *models.Store) error
	List(ctx context.Context) ([]models.Store, error)
	ListOpen(ctx context.Context) ([]models.Store, error)
	Get(ctx context.Context, id int64) (*models.Store, error)
	UpdateStatus(ctx context.Context, id int64, raw string) (*services.StatusChange, error)
}

type Handler struct {
	svc  Service
	resp *respond.Responder
}

func NewHandler(svc Service, resp *respond.Responder) *Handler {
	return &Handler{svc: svc, resp: resp}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var st models.Store
	if err := respond.Decode(r, validation.SchemaStoreCreate, &st); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	st.ID = 0
	if err := h.svc.Create(r.Context(), &st); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, st)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.List)
}

func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.ListOpen)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context) ([]models.Store, error)) {
	out, err := fetch(r.Context())
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if out == nil {
		out = []models.Store{}
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.IDParam(r, "id")
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	st, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, st)
}

// UpdateStatus handles PUT /store/{id}?status=. Closing a store drops its
// live plan in the same transaction.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := respond.IDParam(r, "id")
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	change, err := h.svc.UpdateStatus(r.Context(), id, r.URL.Query().Get("status"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, change.Store)
}
