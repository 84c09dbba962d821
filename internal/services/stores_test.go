package services

import (
	"context"
	"testing"

	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/journal"
	"audit-planner/internal/models"
	"audit-planner/internal/notify"
	"audit-planner/internal/repository/memory"
	"audit-planner/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	sent []notify.Disruption
}

func (r *recordingNotifier) NotifyDisruption(_ context.Context, d notify.Disruption) error {
	r.sent = append(r.sent, d)
	return nil
}

func TestStoreService_CloseDeletesLivePlan(t *testing.T) {
	uow := memory.New()
	repos := uow.Repos()
	a1 := testutil.SeedAuditor(t, repos, "A1", models.AvailabilityAvailable)
	s1 := testutil.SeedStore(t, repos, "S1", models.StoreOpen)
	plan := testutil.SeedPlan(t, repos, a1.ID, s1.ID)
	rec := &recordingJournal{}
	n := &recordingNotifier{}
	svc := NewStoreService(uow, rec, n, logger.NewTestLogger(t))

	change, err := svc.UpdateStatus(context.Background(), s1.ID, "closed")
	require.NoError(t, err)
	assert.Equal(t, models.StoreClosed, change.Store.StoreStatus)
	require.NotNil(t, change.RemovedPlan)
	assert.Equal(t, plan.ID, change.RemovedPlan.ID)

	plans, err := repos.Plans.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plans)

	assert.Equal(t, []journal.EventType{journal.EventPlanClosed}, rec.types())
	require.Len(t, n.sent, 1)
	assert.Equal(t, notify.KindClosed, n.sent[0].Kind)
	assert.Equal(t, a1.ID, n.sent[0].AuditorID)

	// The freed auditor is eligible again; the closed store is not.
	opt := &testutil.FakeOptimizer{}
	res, err := newPlanService(t, uow, opt, nil).Generate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Plans)
	assert.Equal(t, 0, opt.Calls())
}

func TestStoreService_ReopenKeepsNoPlan(t *testing.T) {
	uow := memory.New()
	s1 := testutil.SeedStore(t, uow.Repos(), "S1", models.StoreClosed)
	svc := NewStoreService(uow, nil, nil, logger.NewNoOpLogger())

	change, err := svc.UpdateStatus(context.Background(), s1.ID, "OPEN")
	require.NoError(t, err)
	assert.Nil(t, change.RemovedPlan)
	assert.Equal(t, models.StoreOpen, change.Store.StoreStatus)

	open, err := svc.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestStoreService_Errors(t *testing.T) {
	uow := memory.New()
	svc := NewStoreService(uow, nil, nil, logger.NewNoOpLogger())

	_, err := svc.UpdateStatus(context.Background(), 1, "DEMOLISHED")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	_, err = svc.UpdateStatus(context.Background(), 1, "CLOSED")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))

	_, err = svc.Get(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Store not found with id 1")

	err = svc.Create(context.Background(), &models.Store{Name: "  "})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	err = svc.Create(context.Background(), &models.Store{Name: "X", StoreStatus: "SHUT"})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
}

func TestStoreService_CreateDefaultsToOpen(t *testing.T) {
	uow := memory.New()
	svc := NewStoreService(uow, nil, nil, logger.NewNoOpLogger())

	st := &models.Store{Name: " Central ", Address: "1 Main St"}
	require.NoError(t, svc.Create(context.Background(), st))
	assert.Equal(t, int64(1), st.ID)
	assert.Equal(t, "Central", st.Name)
	assert.Equal(t, models.StoreOpen, st.StoreStatus)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Store{*st}, all)
}
