package services

import (
	"context"
	"math"
	"strings"

	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/models"
	"audit-planner/internal/planning/cascade"
	"audit-planner/internal/repository"
)

// AvailabilityUpdater is the cascade entry point.
type AvailabilityUpdater interface {
	UpdateAvailability(ctx context.Context, auditorID int64, status models.AvailabilityStatus) (*cascade.Outcome, error)
}

type AuditorService struct {
	uow     repository.UnitOfWork
	cascade AvailabilityUpdater
	logger  logger.Logger
}

func NewAuditorService(uow repository.UnitOfWork, updater AvailabilityUpdater, log logger.Logger) *AuditorService {
	return &AuditorService{uow: uow, cascade: updater, logger: logger.Component(log, "auditors")}
}

func (s *AuditorService) Create(ctx context.Context, a *models.Auditor) error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return apperrors.NewValidationError("auditor name is required")
	}
	if a.AvailabilityStatus == "" {
		a.AvailabilityStatus = models.AvailabilityAvailable
	} else {
		status, err := models.ParseAvailabilityStatus(string(a.AvailabilityStatus))
		if err != nil {
			return apperrors.NewValidationError(err.Error())
		}
		a.AvailabilityStatus = status
	}
	if a.WorkloadCapacityHours < 0 || a.CurrentAssignedHours < 0 {
		return apperrors.NewValidationError("hours must not be negative")
	}

	if err := s.uow.Repos().Auditors.Create(ctx, a); err != nil {
		return internal(err)
	}
	s.logger.Info("auditor created", map[string]interface{}{"auditorId": a.ID, "status": string(a.AvailabilityStatus)})
	return nil
}

func (s *AuditorService) List(ctx context.Context) ([]models.Auditor, error) {
	out, err := s.uow.Repos().Auditors.List(ctx)
	return out, internal(err)
}

func (s *AuditorService) ListAvailable(ctx context.Context) ([]models.Auditor, error) {
	out, err := s.uow.Repos().Auditors.ListByStatus(ctx, models.AvailabilityAvailable)
	return out, internal(err)
}

func (s *AuditorService) Get(ctx context.Context, id int64) (*models.Auditor, error) {
	a, err := s.uow.Repos().Auditors.GetByID(ctx, id)
	if err != nil {
		return nil, lookup(err, "Auditor", id)
	}
	return a, nil
}

// UpdateStatus parses raw and hands the transition to the cascade.
func (s *AuditorService) UpdateStatus(ctx context.Context, id int64, raw string) (*cascade.Outcome, error) {
	status, err := models.ParseAvailabilityStatus(raw)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	out, err := s.cascade.UpdateAvailability(ctx, id, status)
	if err != nil {
		return out, internal(err)
	}
	return out, nil
}

// UpdateHours sets the auditor's currently assigned hours.
func (s *AuditorService) UpdateHours(ctx context.Context, id int64, hours float64) (*models.Auditor, error) {
	if hours < 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return nil, apperrors.NewValidationErrorf("invalid hours %v", hours)
	}
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Locks.LockAuditor(ctx, id); err != nil {
			return err
		}
		return repos.Auditors.UpdateAssignedHours(ctx, id, hours)
	})
	if err != nil {
		return nil, lookup(err, "Auditor", id)
	}
	s.logger.Info("auditor hours updated", map[string]interface{}{"auditorId": id, "hours": hours})
	return s.Get(ctx, id)
}
