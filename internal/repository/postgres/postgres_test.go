package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"audit-planner/internal/common/database"
	"audit-planner/internal/models"
	"audit-planner/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*UnitOfWork, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUnitOfWork(database.NewPostgresFromDB(db, 0)), mock
}

var auditorCols = []string{"auditor_id", "name", "home_lat", "home_lon", "workload_capacity_hours", "current_assigned_hours", "availability_status"}

func TestAuditorRepository_CreateAndGet(t *testing.T) {
	uow, mock := newMock(t)
	repos := uow.Repos()
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO auditors`).
		WithArgs("Asha", 12.9, 77.6, 40.0, 0.0, models.AvailabilityAvailable).
		WillReturnRows(sqlmock.NewRows([]string{"auditor_id"}).AddRow(5))

	a := &models.Auditor{Name: "Asha", HomeLat: 12.9, HomeLon: 77.6, WorkloadCapacityHours: 40, AvailabilityStatus: models.AvailabilityAvailable}
	require.NoError(t, repos.Auditors.Create(ctx, a))
	assert.Equal(t, int64(5), a.ID)

	mock.ExpectQuery(`SELECT auditor_id, name, .* FROM auditors WHERE auditor_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(auditorCols).AddRow(5, "Asha", 12.9, 77.6, 40.0, 3.5, "ON_LEAVE"))

	got, err := repos.Auditors.GetByID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityOnLeave, got.AvailabilityStatus)
	assert.Equal(t, 3.5, got.CurrentAssignedHours)

	mock.ExpectQuery(`FROM auditors WHERE auditor_id = \$1`).
		WithArgs(int64(6)).
		WillReturnError(sql.ErrNoRows)

	_, err = repos.Auditors.GetByID(ctx, 6)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditorRepository_Candidates(t *testing.T) {
	uow, mock := newMock(t)
	repos := uow.Repos()
	ctx := context.Background()

	mock.ExpectQuery(`WHERE a.availability_status = \$1\s+AND NOT EXISTS \(SELECT 1 FROM audit_plan p WHERE p.auditor_id = a.auditor_id\)`).
		WithArgs(models.AvailabilityAvailable).
		WillReturnRows(sqlmock.NewRows(auditorCols).
			AddRow(1, "A1", 1.0, 2.0, 40.0, 0.0, "AVAILABLE").
			AddRow(3, "A3", 1.5, 2.5, 40.0, 0.0, "AVAILABLE"))

	list, err := repos.Auditors.ListAvailableUnplanned(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	mock.ExpectQuery(`WHERE availability_status = \$1 AND auditor_id <> \$2`).
		WithArgs(models.AvailabilityAvailable, int64(1)).
		WillReturnRows(sqlmock.NewRows(auditorCols))

	list, err = repos.Auditors.ListAvailableExcept(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditorRepository_UpdateStatusNotFound(t *testing.T) {
	uow, mock := newMock(t)

	mock.ExpectExec(`UPDATE auditors SET availability_status = \$2 WHERE auditor_id = \$1`).
		WithArgs(int64(9), models.AvailabilityUnavailable).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := uow.Repos().Auditors.UpdateStatus(context.Background(), 9, models.AvailabilityUnavailable)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRepository_OpenUnplanned(t *testing.T) {
	uow, mock := newMock(t)

	mock.ExpectQuery(`FROM store s\s+WHERE s.store_status = \$1\s+AND NOT EXISTS`).
		WithArgs(models.StoreOpen).
		WillReturnRows(sqlmock.NewRows([]string{"store_id", "name", "address", "location_lat", "location_lon", "store_status"}).
			AddRow(2, "North", "1 Main St", 40.1, -74.2, "OPEN"))

	stores, err := uow.Repos().Stores.ListOpenUnplanned(context.Background())
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, models.StoreOpen, stores[0].StoreStatus)
	assert.Equal(t, "1 Main St", stores[0].Address)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditPlanRepository_ViewsAndMutations(t *testing.T) {
	uow, mock := newMock(t)
	repos := uow.Repos()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT p.audit_id, p.audit_status, p.audit_priority, a.auditor_id, a.name, s.store_id, s.name\s+FROM audit_plan p\s+JOIN auditors a`).
		WillReturnRows(sqlmock.NewRows([]string{"audit_id", "audit_status", "audit_priority", "auditor_id", "name", "store_id", "name"}).
			AddRow(1, "PLANNED", "MEDIUM", 4, "Asha", 2, "North"))

	views, err := repos.Plans.ListViews(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.AuditPlanView{{
		AuditID: 1, AuditStatus: models.AuditPlanned, AuditPriority: models.PriorityMedium,
		AuditorID: 4, AuditorName: "Asha", StoreID: 2, StoreName: "North",
	}}, views)

	mock.ExpectExec(`UPDATE audit_plan SET auditor_id = \$2, store_id = \$3, audit_priority = \$4, audit_status = \$5 WHERE audit_id = \$1`).
		WithArgs(int64(1), int64(7), int64(2), models.PriorityHigh, models.AuditInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))

	plan := &models.AuditPlan{ID: 1, AuditorID: 7, StoreID: 2, Priority: models.PriorityHigh, Status: models.AuditInProgress}
	require.NoError(t, repos.Plans.Update(ctx, plan))

	mock.ExpectExec(`DELETE FROM audit_plan WHERE audit_id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repos.Plans.Delete(ctx, 1))

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM audit_plan WHERE auditor_id = \$1\)`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	exists, err := repos.Plans.ExistsForAuditor(ctx, 7)
	require.NoError(t, err)
	assert.False(t, exists)

	mock.ExpectQuery(`FROM audit_plan WHERE store_id = \$1 ORDER BY audit_id LIMIT 1`).
		WithArgs(int64(2)).
		WillReturnError(sql.ErrNoRows)
	_, err = repos.Plans.GetByStore(ctx, 2)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_LocksAndCommits(t *testing.T) {
	uow, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).WithArgs(advisoryKey(lockClassStore, 3)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).WithArgs(advisoryKey(lockClassAuditor, 1)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO audit_plan`).
		WithArgs(int64(1), int64(3), models.PriorityMedium, models.AuditPlanned).
		WillReturnRows(sqlmock.NewRows([]string{"audit_id"}).AddRow(10))
	mock.ExpectCommit()

	var created models.AuditPlan
	err := uow.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		if err := repository.LockInOrder(ctx, repos.Locks, []int64{3}, []int64{1}); err != nil {
			return err
		}
		created = models.NewPlannedAudit(1, 3)
		return repos.Plans.Create(ctx, &created)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(10), created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_RollsBackOnInsertFailure(t *testing.T) {
	uow, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO audit_plan`).WillReturnRows(sqlmock.NewRows([]string{"audit_id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO audit_plan`).WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	err := uow.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		for _, store := range []int64{1, 2} {
			p := models.NewPlannedAudit(store, store)
			if err := repos.Plans.Create(ctx, &p); err != nil {
				return err
			}
		}
		return nil
	})

	assert.ErrorContains(t, err, "insert failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryKeySeparatesNamespaces(t *testing.T) {
	assert.NotEqual(t, advisoryKey(lockClassStore, 1), advisoryKey(lockClassAuditor, 1))
	assert.Equal(t, advisoryKey(lockClassStore, 1)+1, advisoryKey(lockClassStore, 2))
}
