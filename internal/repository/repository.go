// Package repository defines persistence contracts for auditors, stores and
// audit plans, plus the transactional unit of work the planner commits through.
package repository

import (
	"context"
	"errors"
	"slices"

	"audit-planner/internal/models"
)

// ErrNotFound is returned by lookups for ids that do not exist.
var ErrNotFound = errors.New("repository: not found")

type AuditorRepository interface {
	Create(ctx context.Context, a *models.Auditor) error
	GetByID(ctx context.Context, id int64) (*models.Auditor, error)
	List(ctx context.Context) ([]models.Auditor, error)
	ListByStatus(ctx context.Context, status models.AvailabilityStatus) ([]models.Auditor, error)
	// ListAvailableUnplanned returns AVAILABLE auditors with no plan row.
	ListAvailableUnplanned(ctx context.Context) ([]models.Auditor, error)
	// ListAvailableExcept returns every AVAILABLE auditor other than id.
	ListAvailableExcept(ctx context.Context, id int64) ([]models.Auditor, error)
	UpdateStatus(ctx context.Context, id int64, status models.AvailabilityStatus) error
	UpdateAssignedHours(ctx context.Context, id int64, hours float64) error
}

type StoreRepository interface {
	Create(ctx context.Context, s *models.Store) error
	GetByID(ctx context.Context, id int64) (*models.Store, error)
	List(ctx context.Context) ([]models.Store, error)
	ListByStatus(ctx context.Context, status models.StoreStatus) ([]models.Store, error)
	// ListOpenUnplanned returns OPEN stores with no plan row.
	ListOpenUnplanned(ctx context.Context) ([]models.Store, error)
	UpdateStatus(ctx context.Context, id int64, status models.StoreStatus) error
}

type AuditPlanRepository interface {
	Create(ctx context.Context, p *models.AuditPlan) error
	GetByID(ctx context.Context, id int64) (*models.AuditPlan, error)
	// GetByStore returns the plan bound to the store, or ErrNotFound.
	GetByStore(ctx context.Context, storeID int64) (*models.AuditPlan, error)
	ListByAuditor(ctx context.Context, auditorID int64) ([]models.AuditPlan, error)
	ExistsForAuditor(ctx context.Context, auditorID int64) (bool, error)
	List(ctx context.Context) ([]models.AuditPlan, error)
	GetView(ctx context.Context, id int64) (*models.AuditPlanView, error)
	ListViews(ctx context.Context) ([]models.AuditPlanView, error)
	Update(ctx context.Context, p *models.AuditPlan) error
	Delete(ctx context.Context, id int64) error
}

// RowLocker serializes writers touching the same store or auditor for the
// remainder of the enclosing transaction. Callers lock every store before
// any auditor, each group in ascending id order.
type RowLocker interface {
	LockStore(ctx context.Context, storeID int64) error
	LockAuditor(ctx context.Context, auditorID int64) error
}

// Repositories is the set handed to a unit of work callback.
type Repositories struct {
	Auditors AuditorRepository
	Stores   StoreRepository
	Plans    AuditPlanRepository
	Locks    RowLocker
}

// UnitOfWork runs callbacks atomically. Repos returns non-transactional
// repositories for reads; they must not be used inside WithinTx callbacks.
type UnitOfWork interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Stranded reports whether p is a DISRUPTED plan whose auditor is gone or no
// longer AVAILABLE. Such a plan no longer blocks its store from a batch.
func Stranded(ctx context.Context, repos Repositories, p models.AuditPlan) (bool, error) {
	if p.Status != models.AuditDisrupted {
		return false, nil
	}
	holder, err := repos.Auditors.GetByID(ctx, p.AuditorID)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !holder.IsAvailable(), nil
}

// LockInOrder takes store locks then auditor locks, each ascending and
// deduplicated.
func LockInOrder(ctx context.Context, locker RowLocker, storeIDs, auditorIDs []int64) error {
	for _, id := range sortedUnique(storeIDs) {
		if err := locker.LockStore(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range sortedUnique(auditorIDs) {
		if err := locker.LockAuditor(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func sortedUnique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
