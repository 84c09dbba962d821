package postgres

import (
	"context"
	"fmt"

	"audit-planner/internal/common/database"
)

// Advisory lock namespaces, packed into the high bits of the 64-bit key.
const (
	lockClassStore   int64 = 1
	lockClassAuditor int64 = 2
)

// AdvisoryLocker takes transaction-scoped advisory locks; they are released
// on commit or rollback.
type AdvisoryLocker struct {
	db database.DBTX
}

func advisoryKey(class, id int64) int64 {
	return class<<48 | (id & (1<<48 - 1))
}

func (l *AdvisoryLocker) LockStore(ctx context.Context, storeID int64) error {
	return l.lock(ctx, advisoryKey(lockClassStore, storeID))
}

func (l *AdvisoryLocker) LockAuditor(ctx context.Context, auditorID int64) error {
	return l.lock(ctx, advisoryKey(lockClassAuditor, auditorID))
}

func (l *AdvisoryLocker) lock(ctx context.Context, key int64) error {
	if _, err := l.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fmt.Errorf("advisory lock %d: %w", key, err)
	}
	return nil
}
