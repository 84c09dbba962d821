package services

import (
	"context"
	"errors"
	"strings"

	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/journal"
	"audit-planner/internal/models"
	"audit-planner/internal/notify"
	"audit-planner/internal/repository"

	"github.com/google/uuid"
)

type StoreService struct {
	uow     repository.UnitOfWork
	effects sideEffects
	logger  logger.Logger
}

func NewStoreService(uow repository.UnitOfWork, rec journal.Recorder, n notify.Notifier, log logger.Logger) *StoreService {
	l := logger.Component(log, "stores")
	return &StoreService{uow: uow, effects: newSideEffects(rec, n, l), logger: l}
}

func (s *StoreService) Create(ctx context.Context, st *models.Store) error {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return apperrors.NewValidationError("store name is required")
	}
	if st.StoreStatus == "" {
		st.StoreStatus = models.StoreOpen
	} else {
		status, err := models.ParseStoreStatus(string(st.StoreStatus))
		if err != nil {
			return apperrors.NewValidationError(err.Error())
		}
		st.StoreStatus = status
	}

	if err := s.uow.Repos().Stores.Create(ctx, st); err != nil {
		return internal(err)
	}
	s.logger.Info("store created", map[string]interface{}{"storeId": st.ID, "status": string(st.StoreStatus)})
	return nil
}

func (s *StoreService) List(ctx context.Context) ([]models.Store, error) {
	out, err := s.uow.Repos().Stores.List(ctx)
	return out, internal(err)
}

func (s *StoreService) ListOpen(ctx context.Context) ([]models.Store, error) {
	out, err := s.uow.Repos().Stores.ListByStatus(ctx, models.StoreOpen)
	return out, internal(err)
}

func (s *StoreService) Get(ctx context.Context, id int64) (*models.Store, error) {
	st, err := s.uow.Repos().Stores.GetByID(ctx, id)
	if err != nil {
		return nil, lookup(err, "Store", id)
	}
	return st, nil
}

// StatusChange is the result of a store status update.
type StatusChange struct {
	Store       models.Store
	RemovedPlan *models.AuditPlan
}

// UpdateStatus sets the store status. Closing a store deletes its live plan
// in the same transaction.
func (s *StoreService) UpdateStatus(ctx context.Context, id int64, raw string) (*StatusChange, error) {
	status, err := models.ParseStoreStatus(raw)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	var change StatusChange
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		change = StatusChange{}
		if err := repos.Locks.LockStore(ctx, id); err != nil {
			return err
		}
		st, err := repos.Stores.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := repos.Stores.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		st.StoreStatus = status
		change.Store = *st

		if status != models.StoreClosed {
			return nil
		}
		plan, err := repos.Plans.GetByStore(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		change.RemovedPlan = plan
		return repos.Plans.Delete(ctx, plan.ID)
	})
	if err != nil {
		return nil, lookup(err, "Store", id)
	}

	s.logger.Info("store status updated", map[string]interface{}{"storeId": id, "status": string(status)})
	if p := change.RemovedPlan; p != nil {
		s.effects.record(ctx, journal.Event{
			Type:              journal.EventPlanClosed,
			BatchID:           uuid.NewString(),
			PlanID:            p.ID,
			StoreID:           p.StoreID,
			PreviousAuditorID: p.AuditorID,
			Reason:            "store closed",
		})
		s.effects.notify(ctx, notify.Disruption{
			Kind:      notify.KindClosed,
			PlanID:    p.ID,
			StoreID:   p.StoreID,
			AuditorID: p.AuditorID,
			Reason:    "store closed",
		})
	}
	return &change, nil
}
