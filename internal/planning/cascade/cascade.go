// Package cascade re-plans an auditor's stores when the auditor stops being
// available.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"audit-planner/internal/common/config"
	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/lock"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/common/metrics"
	"audit-planner/internal/common/observability"
	"audit-planner/internal/journal"
	"audit-planner/internal/models"
	"audit-planner/internal/notify"
	"audit-planner/internal/planning/optimizer"
	"audit-planner/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Per-store actions.
const (
	ActionRebound    = "rebound"
	ActionUnassigned = "unassigned"
	ActionDisrupted  = "disrupted"
	ActionSuperseded = "superseded"
)

type StoreOutcome struct {
	StoreID      int64  `json:"storeId"`
	PlanID       int64  `json:"planId"`
	Action       string `json:"action"`
	NewAuditorID int64  `json:"newAuditorId,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type Outcome struct {
	AuditorID      int64                     `json:"auditorId"`
	PreviousStatus models.AvailabilityStatus `json:"previousStatus"`
	NewStatus      models.AvailabilityStatus `json:"newStatus"`
	Triggered      bool                      `json:"triggered"`
	Stores         []StoreOutcome            `json:"stores"`
	OptimizerCalls int                       `json:"optimizerCalls"`
}

// Policy resolves the two open behaviours of a cascade.
type Policy struct {
	// CandidatePolicy is config.CandidatePolicyExclusive or config.CandidatePolicyShared.
	CandidatePolicy string
	// OnOptimizerFailure is config.FailurePolicyContinue or config.FailurePolicyAbort.
	OnOptimizerFailure string
}

func (p Policy) exclusive() bool { return p.CandidatePolicy != config.CandidatePolicyShared }
func (p Policy) abort() bool     { return p.OnOptimizerFailure == config.FailurePolicyAbort }

type Deps struct {
	UnitOfWork    repository.UnitOfWork
	Optimizer     optimizer.Assigner
	Locker        lock.Locker
	Journal       journal.Recorder
	Notifier      notify.Notifier
	Observability *observability.Observability
}

type Controller struct {
	uow       repository.UnitOfWork
	optimizer optimizer.Assigner
	locker    lock.Locker
	journal   journal.Recorder
	notifier  notify.Notifier
	obs       *observability.Observability
	policy    Policy
	logger    logger.Logger
}

func New(deps Deps, policy Policy, log logger.Logger) *Controller {
	c := &Controller{
		uow:       deps.UnitOfWork,
		optimizer: deps.Optimizer,
		locker:    deps.Locker,
		journal:   deps.Journal,
		notifier:  deps.Notifier,
		obs:       deps.Observability,
		policy:    policy,
		logger:    logger.Component(log, "cascade"),
	}
	if c.journal == nil {
		c.journal = journal.Nop{}
	}
	if c.notifier == nil {
		c.notifier = notify.Nop{}
	}
	return c
}

// UpdateAvailability persists the auditor's new status and, when the
// auditor leaves AVAILABLE, re-plans every store bound to them. The status
// change stays committed even if the cascade later fails.
func (c *Controller) UpdateAvailability(ctx context.Context, auditorID int64, status models.AvailabilityStatus) (out *Outcome, err error) {
	start := time.Now()
	ctx, span := c.obs.StartSpan(ctx, "cascade.update_availability",
		attribute.Int64("auditor.id", auditorID),
		attribute.String("auditor.status", string(status)))
	defer func() {
		observability.EndSpan(span, err)
		c.obs.RecordOperation(ctx, "cascade", time.Since(start), err)
	}()

	if !status.Valid() {
		return nil, apperrors.NewValidationErrorf("invalid availability status %q", status)
	}

	lease, err := c.locker.Acquire(ctx, lock.CascadeKey(auditorID))
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, apperrors.NewConflictError(fmt.Sprintf("auditor %d is being updated", auditorID), err)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			c.logger.Warn("cascade lease release failed", map[string]interface{}{"auditorId": auditorID, "error": rerr})
		}
	}()

	out = &Outcome{AuditorID: auditorID, NewStatus: status, Stores: []StoreOutcome{}}
	if err := c.persistStatus(ctx, out); err != nil {
		return nil, err
	}

	out.Triggered = models.LeavesAvailability(out.PreviousStatus, status)
	if !out.Triggered {
		return out, nil
	}

	if err := c.run(ctx, out); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Controller) persistStatus(ctx context.Context, out *Outcome) error {
	err := c.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Locks.LockAuditor(ctx, out.AuditorID); err != nil {
			return err
		}
		a, err := repos.Auditors.GetByID(ctx, out.AuditorID)
		if err != nil {
			return err
		}
		out.PreviousStatus = a.AvailabilityStatus
		return repos.Auditors.UpdateStatus(ctx, out.AuditorID, out.NewStatus)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError("Auditor", out.AuditorID)
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	c.logger.Info("auditor status updated", map[string]interface{}{
		"auditorId": out.AuditorID,
		"previous":  string(out.PreviousStatus),
		"status":    string(out.NewStatus),
	})
	return nil
}

// run processes the affected plans in ascending id order.
func (c *Controller) run(ctx context.Context, out *Outcome) error {
	reads := c.uow.Repos()
	affected, err := reads.Plans.ListByAuditor(ctx, out.AuditorID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	pool, err := reads.Auditors.ListAvailableExcept(ctx, out.AuditorID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	batchID := uuid.NewString()
	c.logger.Info("cascade started", map[string]interface{}{
		"auditorId": out.AuditorID,
		"batchId":   batchID,
		"plans":     len(affected),
		"pool":      len(pool),
		"policy":    c.policy.CandidatePolicy,
	})

	for _, plan := range affected {
		res, err := c.replan(ctx, plan, &pool, out)
		if err != nil {
			return err
		}
		out.Stores = append(out.Stores, res)
		metrics.CascadeStores.WithLabelValues(res.Action).Inc()
		c.record(ctx, batchID, out.AuditorID, res)
	}

	c.logger.Info("cascade finished", map[string]interface{}{
		"auditorId":      out.AuditorID,
		"batchId":        batchID,
		"stores":         len(out.Stores),
		"optimizerCalls": out.OptimizerCalls,
	})
	return nil
}

func (c *Controller) replan(ctx context.Context, plan models.AuditPlan, pool *[]models.Auditor, out *Outcome) (StoreOutcome, error) {
	departing := out.AuditorID
	if len(*pool) == 0 {
		return c.unassign(ctx, plan, departing, "no available auditors")
	}

	store, err := c.uow.Repos().Stores.GetByID(ctx, plan.StoreID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.unassign(ctx, plan, departing, "store no longer exists")
	}
	if err != nil {
		return StoreOutcome{}, apperrors.NewInternalError(err)
	}

	out.OptimizerCalls++
	req := optimizer.NewRequest(optimizer.PurposeCascade, *pool, []models.Store{*store})
	result, err := c.optimizer.Assign(ctx, req)
	if err != nil {
		if c.policy.abort() {
			c.logger.Error("cascade aborted on optimizer failure", map[string]interface{}{
				"auditorId": departing,
				"storeId":   plan.StoreID,
				"error":     err,
			})
			return StoreOutcome{}, err
		}
		return c.disrupt(ctx, plan, departing, err.Error())
	}

	candidate, ok := c.pickCandidate(result, plan.StoreID, *pool)
	if !ok {
		return c.unassign(ctx, plan, departing, "no usable candidate")
	}

	res, err := c.rebind(ctx, plan, departing, candidate)
	if err != nil {
		return StoreOutcome{}, err
	}
	if res.Action == ActionRebound && c.policy.exclusive() {
		*pool = without(*pool, candidate)
	}
	return res, nil
}

// pickCandidate returns the auditor proposed for storeID if it was offered.
// The request held only storeID, so a lone entry is taken as its answer even
// when its store_id is missing or different.
func (c *Controller) pickCandidate(result *optimizer.Result, storeID int64, pool []models.Auditor) (int64, bool) {
	p, ok := result.ForStore(storeID)
	if !ok && result != nil && len(result.Proposals) == 1 {
		p, ok = result.Proposals[0], true
		fields := map[string]interface{}{"storeId": storeID, "problem": p.Problem}
		if p.StoreID != nil {
			fields["answeredStoreId"] = *p.StoreID
		}
		c.logger.Warn("lone optimizer entry does not name the store; using it", fields)
	}
	if !ok || p.AuditorID == nil {
		return 0, false
	}
	for _, a := range pool {
		if a.ID == *p.AuditorID {
			return a.ID, true
		}
	}
	return 0, false
}

func without(pool []models.Auditor, id int64) []models.Auditor {
	out := make([]models.Auditor, 0, len(pool))
	for _, a := range pool {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

// stillBound re-reads the plan inside the transaction. It reports false when
// the plan was deleted or moved to another auditor since the cascade began.
func stillBound(ctx context.Context, repos repository.Repositories, planID, departing int64) (*models.AuditPlan, bool, error) {
	current, err := repos.Plans.GetByID(ctx, planID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return current, current.AuditorID == departing, nil
}

func (c *Controller) rebind(ctx context.Context, plan models.AuditPlan, departing, candidate int64) (StoreOutcome, error) {
	var res StoreOutcome
	err := c.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		res = StoreOutcome{StoreID: plan.StoreID, PlanID: plan.ID}
		if err := repository.LockInOrder(ctx, repos.Locks, []int64{plan.StoreID}, []int64{candidate}); err != nil {
			return err
		}
		current, bound, err := stillBound(ctx, repos, plan.ID, departing)
		if err != nil {
			return err
		}
		if !bound {
			res.Action = ActionSuperseded
			return nil
		}

		a, err := repos.Auditors.GetByID(ctx, candidate)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if a == nil || !a.IsAvailable() {
			res.Action = ActionUnassigned
			res.Reason = "candidate no longer available"
			return repos.Plans.Delete(ctx, plan.ID)
		}

		current.AuditorID = candidate
		if err := repos.Plans.Update(ctx, current); err != nil {
			return err
		}
		res.Action = ActionRebound
		res.NewAuditorID = candidate
		return nil
	})
	if err != nil {
		return StoreOutcome{}, apperrors.NewInternalError(err)
	}

	c.logger.Info("cascade store processed", map[string]interface{}{
		"planId":       plan.ID,
		"storeId":      plan.StoreID,
		"action":       res.Action,
		"newAuditorId": res.NewAuditorID,
	})
	return res, nil
}

func (c *Controller) unassign(ctx context.Context, plan models.AuditPlan, departing int64, reason string) (StoreOutcome, error) {
	return c.settle(ctx, plan, departing, ActionUnassigned, reason, func(ctx context.Context, repos repository.Repositories, p *models.AuditPlan) error {
		return repos.Plans.Delete(ctx, p.ID)
	})
}

func (c *Controller) disrupt(ctx context.Context, plan models.AuditPlan, departing int64, reason string) (StoreOutcome, error) {
	return c.settle(ctx, plan, departing, ActionDisrupted, reason, func(ctx context.Context, repos repository.Repositories, p *models.AuditPlan) error {
		p.Status = models.AuditDisrupted
		return repos.Plans.Update(ctx, p)
	})
}

// settle applies a non-rebind outcome to a plan that is still bound to the
// departing auditor.
func (c *Controller) settle(
	ctx context.Context,
	plan models.AuditPlan,
	departing int64,
	action, reason string,
	apply func(ctx context.Context, repos repository.Repositories, p *models.AuditPlan) error,
) (StoreOutcome, error) {
	var res StoreOutcome
	err := c.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		res = StoreOutcome{StoreID: plan.StoreID, PlanID: plan.ID, Action: action, Reason: reason}
		if err := repos.Locks.LockStore(ctx, plan.StoreID); err != nil {
			return err
		}
		current, bound, err := stillBound(ctx, repos, plan.ID, departing)
		if err != nil {
			return err
		}
		if !bound {
			res.Action = ActionSuperseded
			res.Reason = ""
			return nil
		}
		return apply(ctx, repos, current)
	})
	if err != nil {
		return StoreOutcome{}, apperrors.NewInternalError(err)
	}

	c.logger.Info("cascade store processed", map[string]interface{}{
		"planId":  plan.ID,
		"storeId": plan.StoreID,
		"action":  res.Action,
		"reason":  res.Reason,
	})
	return res, nil
}

// record journals the store outcome and notifies on lost coverage. Failures
// are logged only.
func (c *Controller) record(ctx context.Context, batchID string, departing int64, res StoreOutcome) {
	event := journal.Event{
		BatchID:           batchID,
		PlanID:            res.PlanID,
		StoreID:           res.StoreID,
		PreviousAuditorID: departing,
		Reason:            res.Reason,
	}
	var kind string
	switch res.Action {
	case ActionRebound:
		event.Type = journal.EventPlanRebound
		event.AuditorID = res.NewAuditorID
	case ActionUnassigned:
		event.Type = journal.EventPlanUnassigned
		kind = notify.KindUnassigned
	case ActionDisrupted:
		event.Type = journal.EventPlanDisrupted
		event.AuditorID = departing
		kind = notify.KindDisrupted
	default:
		return
	}

	if err := c.journal.Record(ctx, event); err != nil {
		c.logger.Warn("journal write failed", map[string]interface{}{"planId": res.PlanID, "error": err})
	}
	if kind == "" {
		return
	}
	err := c.notifier.NotifyDisruption(ctx, notify.Disruption{
		Kind:      kind,
		PlanID:    res.PlanID,
		StoreID:   res.StoreID,
		AuditorID: departing,
		Reason:    res.Reason,
	})
	if err != nil {
		c.logger.Warn("disruption notification failed", map[string]interface{}{"planId": res.PlanID, "error": err})
	}
}
