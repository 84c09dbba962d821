// Package committer persists validated plans and serves the plan projection.
package committer

import (
	"context"
	"errors"
	"fmt"

	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/models"
	"audit-planner/internal/planning/validator"
	"audit-planner/internal/repository"
)

type Committer struct {
	logger logger.Logger
}

func New(log logger.Logger) *Committer {
	return &Committer{logger: logger.Component(log, "committer")}
}

// Commit creates every accepted plan through repos, which must be bound to
// the caller's transaction. A stranded plan the proposal replaces is deleted
// first. The first failure aborts the batch. Views are built from the
// already-resolved entities.
func (c *Committer) Commit(ctx context.Context, repos repository.Repositories, accepted []validator.Accepted) ([]models.AuditPlanView, error) {
	views := make([]models.AuditPlanView, 0, len(accepted))
	for _, a := range accepted {
		if a.Replaces != nil {
			if err := repos.Plans.Delete(ctx, a.Replaces.ID); err != nil {
				return nil, fmt.Errorf("drop disrupted plan %d: %w", a.Replaces.ID, err)
			}
			c.logger.Debug("disrupted plan replaced", map[string]interface{}{
				"planId":            a.Replaces.ID,
				"storeId":           a.Store.ID,
				"previousAuditorId": a.Replaces.AuditorID,
			})
		}
		plan := a.Plan
		if err := repos.Plans.Create(ctx, &plan); err != nil {
			return nil, fmt.Errorf("commit plan for store %d: %w", a.Store.ID, err)
		}
		views = append(views, models.NewAuditPlanView(plan, a.Auditor, a.Store))
		c.logger.Debug("plan created", map[string]interface{}{
			"planId":    plan.ID,
			"storeId":   a.Store.ID,
			"auditorId": a.Auditor.ID,
		})
	}
	return views, nil
}

func (c *Committer) List(ctx context.Context, repos repository.Repositories) ([]models.AuditPlanView, error) {
	views, err := repos.Plans.ListViews(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return views, nil
}

func (c *Committer) Get(ctx context.Context, repos repository.Repositories, id int64) (*models.AuditPlanView, error) {
	view, err := repos.Plans.GetView(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("AuditPlan", id)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return view, nil
}
