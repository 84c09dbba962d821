package plans

import (
	"context"
	"fmt"
	"net/http"

	"audit-planner/internal/api/respond"
	"audit-planner/internal/common/validation"
	"audit-planner/internal/models"
	"audit-planner/internal/services"
)

// Service is the part of services.PlanService the handler drives.
type Service interface {
	Generate(ctx context.Context) (*services.GenerateResult, error)
	List(ctx context.Context) ([]models.AuditPlanView, error)
	Get(ctx context.Context, id int64) (*models.AuditPlanView, error)
	Update(ctx context.Context, id int64, upd services.PlanUpdate) (*models.AuditPlanView, error)
}

type Handler struct {
	svc  Service
	resp *respond.Responder
}

func NewHandler(svc Service, resp *respond.Responder) *Handler {
	return &Handler{svc: svc, resp: resp}
}

type processResponse struct {
	Message     string                 `json:"message"`
	Assignments []models.AuditPlanView `json:"assignments"`
}

// Process runs one planning batch. Every failure answers 500 with the
// fixed internal-error body.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Generate(r.Context())
	if err != nil {
		h.resp.Internal(w, r, err)
		return
	}
	plans := res.Plans
	if plans == nil {
		plans = []models.AuditPlanView{}
	}
	respond.JSON(w, http.StatusOK, processResponse{
		Message:     fmt.Sprintf("Successfully generated %d new assignments.", len(plans)),
		Assignments: plans,
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.List(r.Context())
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if views == nil {
		views = []models.AuditPlanView{}
	}
	respond.JSON(w, http.StatusOK, views)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.IDParam(r, "id")
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	view, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}

// Update applies {auditStatus?, auditPriority?} to one plan.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := respond.IDParam(r, "id")
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	var upd services.PlanUpdate
	if err := respond.Decode(r, validation.SchemaPlanUpdate, &upd); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	view, err := h.svc.Update(r.Context(), id, upd)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}
