// Package memory provides an in-memory transactional backend with the same
// semantics as the Postgres repositories. Transactions work on a cloned
// snapshot that replaces the live state only on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"audit-planner/internal/models"
	"audit-planner/internal/repository"
)

type state struct {
	auditors    map[int64]models.Auditor
	stores      map[int64]models.Store
	plans       map[int64]models.AuditPlan
	nextAuditor int64
	nextStore   int64
	nextPlan    int64
}

func newState() *state {
	return &state{
		auditors: make(map[int64]models.Auditor),
		stores:   make(map[int64]models.Store),
		plans:    make(map[int64]models.AuditPlan),
	}
}

func (s *state) clone() *state {
	out := &state{
		auditors:    make(map[int64]models.Auditor, len(s.auditors)),
		stores:      make(map[int64]models.Store, len(s.stores)),
		plans:       make(map[int64]models.AuditPlan, len(s.plans)),
		nextAuditor: s.nextAuditor,
		nextStore:   s.nextStore,
		nextPlan:    s.nextPlan,
	}
	for k, v := range s.auditors {
		out.auditors[k] = v
	}
	for k, v := range s.stores {
		out.stores[k] = v
	}
	for k, v := range s.plans {
		out.plans[k] = v
	}
	return out
}

// FaultFunc lets tests fail a named operation ("plans.create", ...).
type FaultFunc func(op string) error

// UnitOfWork is the in-memory repository.UnitOfWork.
type UnitOfWork struct {
	mu      sync.Mutex
	live    *state
	fault   FaultFunc
	lockLog []string
}

func New() *UnitOfWork {
	return &UnitOfWork{live: newState()}
}

// SetFault installs a fault hook; nil clears it.
func (u *UnitOfWork) SetFault(f FaultFunc) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.fault = f
}

// LockLog returns the row locks taken by transactions so far, in order.
func (u *UnitOfWork) LockLog() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.lockLog...)
}

func (u *UnitOfWork) Repos() repository.Repositories {
	b := &backend{uow: u, current: func() *state { return u.live }, guard: &u.mu}
	return b.repositories()
}

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	draft := u.live.clone()
	b := &backend{uow: u, current: func() *state { return draft }, guard: noopLocker{}}
	if err := fn(ctx, b.repositories()); err != nil {
		return err
	}
	u.live = draft
	return nil
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// backend carries the state accessor shared by the three repositories.
// Outside a transaction every call takes the UnitOfWork mutex; inside one
// the mutex is already held by WithinTx.
type backend struct {
	uow     *UnitOfWork
	current func() *state
	guard   sync.Locker
}

func (b *backend) repositories() repository.Repositories {
	return repository.Repositories{
		Auditors: &auditorRepo{b},
		Stores:   &storeRepo{b},
		Plans:    &planRepo{b},
		Locks:    &rowLocker{b},
	}
}

func (b *backend) read(fn func(s *state) error) error {
	b.guard.Lock()
	defer b.guard.Unlock()
	return fn(b.current())
}

func (b *backend) write(op string, fn func(s *state) error) error {
	b.guard.Lock()
	defer b.guard.Unlock()
	if b.uow.fault != nil {
		if err := b.uow.fault(op); err != nil {
			return err
		}
	}
	return fn(b.current())
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *state) auditorHasPlan(id int64) bool {
	for _, p := range s.plans {
		if p.AuditorID == id {
			return true
		}
	}
	return false
}

func (s *state) storeHasPlan(id int64) bool {
	for _, p := range s.plans {
		if p.StoreID == id {
			return true
		}
	}
	return false
}

// ---- row locks ----

type rowLocker struct{ b *backend }

func (l *rowLocker) LockStore(_ context.Context, storeID int64) error {
	l.b.uow.lockLog = append(l.b.uow.lockLog, fmt.Sprintf("store:%d", storeID))
	return nil
}

func (l *rowLocker) LockAuditor(_ context.Context, auditorID int64) error {
	l.b.uow.lockLog = append(l.b.uow.lockLog, fmt.Sprintf("auditor:%d", auditorID))
	return nil
}

// ---- auditors ----

type auditorRepo struct{ b *backend }

func (r *auditorRepo) Create(_ context.Context, a *models.Auditor) error {
	return r.b.write("auditors.create", func(s *state) error {
		s.nextAuditor++
		a.ID = s.nextAuditor
		s.auditors[a.ID] = *a
		return nil
	})
}

func (r *auditorRepo) GetByID(_ context.Context, id int64) (*models.Auditor, error) {
	var out *models.Auditor
	err := r.b.read(func(s *state) error {
		a, ok := s.auditors[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *auditorRepo) filter(keep func(s *state, a models.Auditor) bool) ([]models.Auditor, error) {
	out := []models.Auditor{}
	err := r.b.read(func(s *state) error {
		for _, id := range sortedKeys(s.auditors) {
			if a := s.auditors[id]; keep(s, a) {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (r *auditorRepo) List(context.Context) ([]models.Auditor, error) {
	return r.filter(func(*state, models.Auditor) bool { return true })
}

func (r *auditorRepo) ListByStatus(_ context.Context, status models.AvailabilityStatus) ([]models.Auditor, error) {
	return r.filter(func(_ *state, a models.Auditor) bool { return a.AvailabilityStatus == status })
}

func (r *auditorRepo) ListAvailableUnplanned(context.Context) ([]models.Auditor, error) {
	return r.filter(func(s *state, a models.Auditor) bool { return a.IsAvailable() && !s.auditorHasPlan(a.ID) })
}

func (r *auditorRepo) ListAvailableExcept(_ context.Context, id int64) ([]models.Auditor, error) {
	return r.filter(func(_ *state, a models.Auditor) bool { return a.IsAvailable() && a.ID != id })
}

func (r *auditorRepo) UpdateStatus(_ context.Context, id int64, status models.AvailabilityStatus) error {
	return r.b.write("auditors.update_status", func(s *state) error {
		a, ok := s.auditors[id]
		if !ok {
			return repository.ErrNotFound
		}
		a.AvailabilityStatus = status
		s.auditors[id] = a
		return nil
	})
}

func (r *auditorRepo) UpdateAssignedHours(_ context.Context, id int64, hours float64) error {
	return r.b.write("auditors.update_hours", func(s *state) error {
		a, ok := s.auditors[id]
		if !ok {
			return repository.ErrNotFound
		}
		a.CurrentAssignedHours = hours
		s.auditors[id] = a
		return nil
	})
}

// ---- stores ----

type storeRepo struct{ b *backend }

func (r *storeRepo) Create(_ context.Context, st *models.Store) error {
	return r.b.write("stores.create", func(s *state) error {
		s.nextStore++
		st.ID = s.nextStore
		s.stores[st.ID] = *st
		return nil
	})
}

func (r *storeRepo) GetByID(_ context.Context, id int64) (*models.Store, error) {
	var out *models.Store
	err := r.b.read(func(s *state) error {
		st, ok := s.stores[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &st
		return nil
	})
	return out, err
}

func (r *storeRepo) filter(keep func(s *state, st models.Store) bool) ([]models.Store, error) {
	out := []models.Store{}
	err := r.b.read(func(s *state) error {
		for _, id := range sortedKeys(s.stores) {
			if st := s.stores[id]; keep(s, st) {
				out = append(out, st)
			}
		}
		return nil
	})
	return out, err
}

func (r *storeRepo) List(context.Context) ([]models.Store, error) {
	return r.filter(func(*state, models.Store) bool { return true })
}

func (r *storeRepo) ListByStatus(_ context.Context, status models.StoreStatus) ([]models.Store, error) {
	return r.filter(func(_ *state, st models.Store) bool { return st.StoreStatus == status })
}

func (r *storeRepo) ListOpenUnplanned(context.Context) ([]models.Store, error) {
	return r.filter(func(s *state, st models.Store) bool { return st.IsOpen() && !s.storeHasPlan(st.ID) })
}

func (r *storeRepo) UpdateStatus(_ context.Context, id int64, status models.StoreStatus) error {
	return r.b.write("stores.update_status", func(s *state) error {
		st, ok := s.stores[id]
		if !ok {
			return repository.ErrNotFound
		}
		st.StoreStatus = status
		s.stores[id] = st
		return nil
	})
}

// ---- plans ----

type planRepo struct{ b *backend }

func (r *planRepo) Create(_ context.Context, p *models.AuditPlan) error {
	return r.b.write("plans.create", func(s *state) error {
		if _, ok := s.auditors[p.AuditorID]; !ok {
			return fmt.Errorf("audit_plan: auditor %d does not exist", p.AuditorID)
		}
		if _, ok := s.stores[p.StoreID]; !ok {
			return fmt.Errorf("audit_plan: store %d does not exist", p.StoreID)
		}
		s.nextPlan++
		p.ID = s.nextPlan
		s.plans[p.ID] = *p
		return nil
	})
}

func (r *planRepo) GetByID(_ context.Context, id int64) (*models.AuditPlan, error) {
	var out *models.AuditPlan
	err := r.b.read(func(s *state) error {
		p, ok := s.plans[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *planRepo) GetByStore(_ context.Context, storeID int64) (*models.AuditPlan, error) {
	var out *models.AuditPlan
	err := r.b.read(func(s *state) error {
		for _, id := range sortedKeys(s.plans) {
			if p := s.plans[id]; p.StoreID == storeID {
				out = &p
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *planRepo) ListByAuditor(_ context.Context, auditorID int64) ([]models.AuditPlan, error) {
	out := []models.AuditPlan{}
	err := r.b.read(func(s *state) error {
		for _, id := range sortedKeys(s.plans) {
			if p := s.plans[id]; p.AuditorID == auditorID {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *planRepo) ExistsForAuditor(_ context.Context, auditorID int64) (bool, error) {
	var exists bool
	err := r.b.read(func(s *state) error {
		exists = s.auditorHasPlan(auditorID)
		return nil
	})
	return exists, err
}

func (r *planRepo) List(context.Context) ([]models.AuditPlan, error) {
	out := []models.AuditPlan{}
	err := r.b.read(func(s *state) error {
		for _, id := range sortedKeys(s.plans) {
			out = append(out, s.plans[id])
		}
		return nil
	})
	return out, err
}

func (s *state) view(p models.AuditPlan) models.AuditPlanView {
	return models.NewAuditPlanView(p, s.auditors[p.AuditorID], s.stores[p.StoreID])
}

func (r *planRepo) GetView(_ context.Context, id int64) (*models.AuditPlanView, error) {
	var out *models.AuditPlanView
	err := r.b.read(func(s *state) error {
		p, ok := s.plans[id]
		if !ok {
			return repository.ErrNotFound
		}
		v := s.view(p)
		out = &v
		return nil
	})
	return out, err
}

func (r *planRepo) ListViews(context.Context) ([]models.AuditPlanView, error) {
	out := []models.AuditPlanView{}
	err := r.b.read(func(s *state) error {
		for _, id := range sortedKeys(s.plans) {
			out = append(out, s.view(s.plans[id]))
		}
		return nil
	})
	return out, err
}

func (r *planRepo) Update(_ context.Context, p *models.AuditPlan) error {
	return r.b.write("plans.update", func(s *state) error {
		if _, ok := s.plans[p.ID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := s.auditors[p.AuditorID]; !ok {
			return fmt.Errorf("audit_plan: auditor %d does not exist", p.AuditorID)
		}
		s.plans[p.ID] = *p
		return nil
	})
}

func (r *planRepo) Delete(_ context.Context, id int64) error {
	return r.b.write("plans.delete", func(s *state) error {
		if _, ok := s.plans[id]; !ok {
			return repository.ErrNotFound
		}
		delete(s.plans, id)
		return nil
	})
}
