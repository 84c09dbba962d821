package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/lock"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/common/metrics"
	"audit-planner/internal/common/observability"
	"audit-planner/internal/journal"
	"audit-planner/internal/models"
	"audit-planner/internal/planning/committer"
	"audit-planner/internal/planning/optimizer"
	"audit-planner/internal/planning/selector"
	"audit-planner/internal/planning/validator"
	"audit-planner/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type PlanDeps struct {
	UnitOfWork    repository.UnitOfWork
	Optimizer     optimizer.Assigner
	Locker        lock.Locker
	Journal       journal.Recorder
	Observability *observability.Observability
}

// PlanService runs batch generation and serves plan reads and updates.
type PlanService struct {
	uow       repository.UnitOfWork
	optimizer optimizer.Assigner
	locker    lock.Locker
	selector  *selector.Selector
	validator *validator.Validator
	committer *committer.Committer
	obs       *observability.Observability
	effects   sideEffects
	logger    logger.Logger
}

func NewPlanService(deps PlanDeps, log logger.Logger) *PlanService {
	l := logger.Component(log, "plans")
	return &PlanService{
		uow:       deps.UnitOfWork,
		optimizer: deps.Optimizer,
		locker:    deps.Locker,
		selector:  selector.New(log),
		validator: validator.New(log),
		committer: committer.New(log),
		obs:       deps.Observability,
		effects:   newSideEffects(deps.Journal, nil, l),
		logger:    l,
	}
}

// GenerateResult describes one batch run.
type GenerateResult struct {
	BatchID         string
	Plans           []models.AuditPlanView
	Rejected        []validator.Rejection
	OptimizerCalled bool
}

// Generate plans every eligible store in one optimizer call. Only one batch
// runs at a time across instances.
func (s *PlanService) Generate(ctx context.Context) (res *GenerateResult, err error) {
	start := time.Now()
	batchID := uuid.NewString()
	ctx, span := s.obs.StartSpan(ctx, "plans.generate", attribute.String("batch.id", batchID))
	outcome := "committed"
	defer func() {
		if err != nil && outcome == "committed" {
			outcome = "error"
		}
		metrics.BatchRuns.WithLabelValues(outcome).Inc()
		observability.EndSpan(span, err)
		s.obs.RecordOperation(ctx, "generate", time.Since(start), err)
	}()

	lease, err := s.locker.Acquire(ctx, lock.BatchKey())
	if errors.Is(err, lock.ErrNotAcquired) {
		outcome = "conflict"
		return nil, apperrors.NewConflictError("a planning batch is already running", err)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("batch lease release failed", map[string]interface{}{"batchId": batchID, "error": rerr})
		}
	}()

	res = &GenerateResult{BatchID: batchID, Plans: []models.AuditPlanView{}, Rejected: []validator.Rejection{}}

	candidates, err := s.selector.Select(ctx, s.uow.Repos())
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if candidates.Empty() {
		outcome = "empty"
		s.logger.Info("nothing to plan", map[string]interface{}{
			"batchId":  batchID,
			"auditors": len(candidates.Auditors),
			"stores":   len(candidates.Stores),
		})
		return res, nil
	}

	req := optimizer.NewRequest(optimizer.PurposeBatch, candidates.Auditors, candidates.Stores)
	res.OptimizerCalled = true
	answer, err := s.optimizer.Assign(ctx, req)
	if err != nil {
		outcome = "optimizer_error"
		if _, ok := apperrors.AsStandard(err); !ok {
			err = apperrors.NewExternalServiceError(optimizer.ServiceName, err)
		}
		return nil, err
	}

	var checked *validator.Outcome
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		res.Plans, checked = nil, nil

		storeIDs, auditorIDs := validator.ReferencedIDs(answer.Proposals)
		if err := repository.LockInOrder(ctx, repos.Locks, storeIDs, auditorIDs); err != nil {
			return fmt.Errorf("lock proposals: %w", err)
		}
		var err error
		if checked, err = s.validator.Validate(ctx, repos, answer.Proposals); err != nil {
			return err
		}
		res.Plans, err = s.committer.Commit(ctx, repos, checked.Accepted)
		return err
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	res.Rejected = checked.Rejected
	s.validator.Report(checked)

	metrics.PlansCommitted.Add(float64(len(res.Plans)))
	s.effects.record(ctx, batchEvents(batchID, res, checked.Accepted)...)
	s.logger.Info("batch committed", map[string]interface{}{
		"batchId":     batchID,
		"proposals":   len(answer.Proposals),
		"created":     len(res.Plans),
		"rejected":    len(res.Rejected),
		"disruptions": answer.Disruptions,
	})
	return res, nil
}

// batchEvents journals a committed batch. res.Plans and accepted are
// parallel.
func batchEvents(batchID string, res *GenerateResult, accepted []validator.Accepted) []journal.Event {
	events := make([]journal.Event, 0, len(res.Plans)+len(res.Rejected))
	for i, v := range res.Plans {
		if i < len(accepted) && accepted[i].Replaces != nil {
			old := accepted[i].Replaces
			events = append(events, journal.Event{
				Type:              journal.EventPlanReplaced,
				BatchID:           batchID,
				PlanID:            old.ID,
				StoreID:           old.StoreID,
				AuditorID:         v.AuditorID,
				PreviousAuditorID: old.AuditorID,
			})
		}
		events = append(events, journal.Event{
			Type:      journal.EventPlanCreated,
			BatchID:   batchID,
			PlanID:    v.AuditID,
			StoreID:   v.StoreID,
			AuditorID: v.AuditorID,
		})
	}
	for _, r := range res.Rejected {
		e := journal.Event{Type: journal.EventProposalRejected, BatchID: batchID, Reason: r.Reason}
		if r.StoreID != nil {
			e.StoreID = *r.StoreID
		}
		if r.AuditorID != nil {
			e.AuditorID = *r.AuditorID
		}
		events = append(events, e)
	}
	return events
}

func (s *PlanService) List(ctx context.Context) ([]models.AuditPlanView, error) {
	return s.committer.List(ctx, s.uow.Repos())
}

func (s *PlanService) Get(ctx context.Context, id int64) (*models.AuditPlanView, error) {
	return s.committer.Get(ctx, s.uow.Repos(), id)
}

// PlanUpdate carries the optional fields of a plan update.
type PlanUpdate struct {
	AuditStatus   *string `json:"auditStatus"`
	AuditPriority *string `json:"auditPriority"`
}

// Update changes status and/or priority of an existing plan.
func (s *PlanService) Update(ctx context.Context, id int64, upd PlanUpdate) (*models.AuditPlanView, error) {
	var status models.AuditStatus
	var priority models.AuditPriority
	var err error
	if upd.AuditStatus != nil {
		if status, err = models.ParseAuditStatus(*upd.AuditStatus); err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
	}
	if upd.AuditPriority != nil {
		if priority, err = models.ParseAuditPriority(*upd.AuditPriority); err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		plan, err := repos.Plans.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if status != "" {
			plan.Status = status
		}
		if priority != "" {
			plan.Priority = priority
		}
		return repos.Plans.Update(ctx, plan)
	})
	if err != nil {
		return nil, lookup(err, "AuditPlan", id)
	}

	s.logger.Info("plan updated", map[string]interface{}{
		"planId":   id,
		"status":   string(status),
		"priority": string(priority),
	})
	return s.Get(ctx, id)
}
