// Package services exposes the planner's operations to the HTTP layer and
// translates repository results into StandardErrors.
package services

import (
	"context"
	"errors"
	"time"

	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/journal"
	"audit-planner/internal/notify"
	"audit-planner/internal/repository"
)

// lookup maps repository.ErrNotFound onto a NotFound StandardError and
// everything else onto an internal error.
func lookup(err error, resource string, id int64) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError(resource, id)
	}
	if _, ok := apperrors.AsStandard(err); ok {
		return err
	}
	return apperrors.NewInternalError(err)
}

func internal(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.AsStandard(err); ok {
		return err
	}
	return apperrors.NewInternalError(err)
}

// sideEffects wraps the journal and notifier, whose failures never fail a
// committed operation.
type sideEffects struct {
	journal  journal.Recorder
	notifier notify.Notifier
	logger   logger.Logger
}

func newSideEffects(rec journal.Recorder, n notify.Notifier, log logger.Logger) sideEffects {
	if rec == nil {
		rec = journal.Nop{}
	}
	if n == nil {
		n = notify.Nop{}
	}
	return sideEffects{journal: rec, notifier: n, logger: log}
}

func (s sideEffects) record(ctx context.Context, events ...journal.Event) {
	if len(events) == 0 {
		return
	}
	if err := s.journal.Record(ctx, journal.Stamp(events, time.Now())...); err != nil {
		s.logger.Warn("journal write failed", map[string]interface{}{"events": len(events), "error": err})
	}
}

func (s sideEffects) notify(ctx context.Context, d notify.Disruption) {
	if err := s.notifier.NotifyDisruption(ctx, d); err != nil {
		s.logger.Warn("disruption notification failed", map[string]interface{}{"storeId": d.StoreID, "error": err})
	}
}
