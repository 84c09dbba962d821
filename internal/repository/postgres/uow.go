// Package postgres implements the repositories on lib/pq.
package postgres

import (
	"context"

	"audit-planner/internal/common/database"
	"audit-planner/internal/repository"
)

// UnitOfWork runs planner transactions at SERIALIZABLE isolation.
type UnitOfWork struct {
	client *database.PostgresClient
}

func NewUnitOfWork(client *database.PostgresClient) *UnitOfWork {
	return &UnitOfWork{client: client}
}

func (u *UnitOfWork) Repos() repository.Repositories {
	return reposFor(u.client.DB)
}

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return u.client.WithinTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		return fn(ctx, reposFor(tx))
	})
}

func reposFor(db database.DBTX) repository.Repositories {
	return repository.Repositories{
		Auditors: &AuditorRepository{db: db},
		Stores:   &StoreRepository{db: db},
		Plans:    &AuditPlanRepository{db: db},
		Locks:    &AdvisoryLocker{db: db},
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}
