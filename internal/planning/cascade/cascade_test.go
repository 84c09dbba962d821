package cascade

import (
	"context"
	"errors"
	"sync"
	"testing"

	"audit-planner/internal/common/config"
	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/lock"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/journal"
	"audit-planner/internal/models"
	"audit-planner/internal/notify"
	"audit-planner/internal/planning/optimizer"
	"audit-planner/internal/repository/memory"
	"audit-planner/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (c *captureJournal) Record(_ context.Context, events ...journal.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
	return nil
}

type captureNotifier struct {
	sent []notify.Disruption
	err  error
}

func (c *captureNotifier) NotifyDisruption(_ context.Context, d notify.Disruption) error {
	c.sent = append(c.sent, d)
	return c.err
}

type fixture struct {
	uow      *memory.UnitOfWork
	opt      *testutil.FakeOptimizer
	locker   *lock.LocalLocker
	journal  *captureJournal
	notifier *captureNotifier
}

func newFixture() *fixture {
	return &fixture{
		uow:      memory.New(),
		opt:      &testutil.FakeOptimizer{},
		locker:   lock.NewLocalLocker(lock.Options{}),
		journal:  &captureJournal{},
		notifier: &captureNotifier{},
	}
}

func (f *fixture) controller(t *testing.T, policy Policy) *Controller {
	return New(Deps{
		UnitOfWork: f.uow,
		Optimizer:  f.opt,
		Locker:     f.locker,
		Journal:    f.journal,
		Notifier:   f.notifier,
	}, policy, logger.NewTestLogger(t))
}

var defaults = Policy{CandidatePolicy: config.CandidatePolicyExclusive, OnOptimizerFailure: config.FailurePolicyContinue}

// firstOffered proposes the first auditor offered for every store.
func firstOffered(_ int, req *optimizer.Request) (*optimizer.Result, error) {
	return testutil.Result(testutil.Propose(req.Stores[0].StoreID, req.Auditors[0].AuditorID)), nil
}

func TestUpdateAvailability_EmptyPoolDeletesWithoutCalls(t *testing.T) {
	f := newFixture()
	repos := f.uow.Repos()
	a1 := testutil.SeedAuditor(t, repos, "A1", models.AvailabilityAvailable)
	testutil.SeedAuditor(t, repos, "A2", models.AvailabilityOnLeave)
	s1 := testutil.SeedStore(t, repos, "S1", models.StoreOpen)
	s2 := testutil.SeedStore(t, repos, "S2", models.StoreOpen)
	p1 := testutil.SeedPlan(t, repos, a1.ID, s1.ID)
	testutil.SeedPlan(t, repos, a1.ID, s2.ID)

	out, err := f.controller(t, defaults).UpdateAvailability(context.Background(), a1.ID, models.AvailabilityOnLeave)
	require.NoError(t, err)

	assert.True(t, out.Triggered)
	assert.Equal(t, models.AvailabilityAvailable, out.PreviousStatus)
	assert.Equal(t, 0, out.OptimizerCalls)
	assert.Equal(t, 0, f.opt.Calls())
	require.Len(t, out.Stores, 2)
	for _, s := range out.Stores {
		assert.Equal(t, ActionUnassigned, s.Action)
	}

	plans, err := repos.Plans.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plans)

	got, err := repos.Auditors.GetByID(context.Background(), a1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityOnLeave, got.AvailabilityStatus)

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, notify.Disruption{Kind: notify.KindUnassigned, PlanID: p1.ID, StoreID: s1.ID, AuditorID: a1.ID, Reason: "no available auditors"}, f.notifier.sent[0])
	assert.Len(t, f.journal.events, 2)
}

func TestUpdateAvailability_ExclusivePool(t *testing.T) {
	f := newFixture()
	repos := f.uow.Repos()
	a1 := testutil.SeedAuditor(t, repos, "A1", models.AvailabilityAvailable)
	a2 := testutil.SeedAuditor(t, repos, "A2", models.AvailabilityAvailable)
	a3 := testutil.SeedAuditor(t, repos, "A3", models.AvailabilityAvailable)
	s1 := testutil.SeedStore(t, repos, "S1", models.StoreOpen)
	s2 := testutil.SeedStore(t, repos, "S2", models.StoreOpen)
	s3 := testutil.SeedStore(t, repos, "S3", models.StoreOpen)
	testutil.SeedPlan(t, repos, a1.ID, s1.ID)
	testutil.SeedPlan(t, repos, a1.ID, s2.ID)
	p3 := testutil.SeedPlan(t, repos, a1.ID, s3.ID)
	f.opt.Respond = firstOffered

	out, err := f.controller(t, defaults).UpdateAvailability(context.Background(), a1.ID, models.AvailabilityUnavailable)
	require.NoError(t, err)

	assert.Equal(t, 2, out.OptimizerCalls)
	assert.Equal(t, []StoreOutcome{
		{StoreID: s1.ID, PlanID: 1, Action: ActionRebound, NewAuditorID: a2.ID},
		{StoreID: s2.ID, PlanID: 2, Action: ActionRebound, NewAuditorID: a3.ID},
		{StoreID: s3.ID, PlanID: p3.ID, Action: ActionUnassigned, Reason: "no available auditors"},
	}, out.Stores)

	reqs := f.opt.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].Auditors, 2)
	require.Len(t, reqs[1].Auditors, 1)
	assert.Equal(t, a3.ID, reqs[1].Auditors[0].AuditorID)
	for _, r := range reqs {
		assert.Equal(t, optimizer.PurposeCascade, r.Purpose)
		require.Len(t, r.Stores, 1)
		for _, a := range r.Auditors {
			assert.Equal(t, optimizer.LabelAvailable, a.AvailabilityStatus)
		}
	}

	plan, err := repos.Plans.GetByStore(context.Background(), s1.ID)
	require.NoError(t, err)
	assert.Equal(t, a2.ID, plan.AuditorID)
	assert.Equal(t, models.AuditPlanned, plan.Status)
	assert.Equal(t, models.PriorityMedium, plan.Priority)
}

func TestUpdateAvailability_SharedPool(t *testing.T) {
	f := newFixture()
	repos := f.uow.Repos()
	a1 := testutil.SeedAuditor(t, repos, "A1", models.AvailabilityAvailable)
	a2 := testutil.SeedAuditor(t, repos, "A2", models.AvailabilityAvailable)
	s1 := testutil.SeedStore(t, repos, "S1", models.StoreOpen)
	s2 := testutil.SeedStore(t, repos, "S2", models.StoreOpen)
	testutil.SeedPlan(t, repos, a1.ID, s1.ID)
	testutil.SeedPlan(t, repos, a1.ID, s2.ID)
	f.opt.Respond = firstOffered

	policy := Policy{CandidatePolicy: config.CandidatePolicyShared, OnOptimizerFailure: config.FailurePolicyContinue}
	out, err := f.controller(t, policy).UpdateAvailability(context.Background(), a1.ID, models.AvailabilityOnLeave)
	require.NoError(t, err)

	assert.Equal(t, 2, out.OptimizerCalls)
	for _, s := range out.Stores {
		assert.Equal(t, ActionRebound, s.Action)
		assert.Equal(t, a2.ID, s.NewAuditorID)
	}
	plans, err := repos.Plans.ListByAuditor(context.Background(), a2.ID)
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestUpdateAvailability_UnusableAnswersDeletePlan(t *testing.T) {
	tests := []struct {
		name    string
		respond func(storeID, outsider int64) *optimizer.Result
	}{
		{"null auditor", func(storeID, _ int64) *optimizer.Result {
			return testutil.Result(optimizer.Proposal{StoreID: testutil.ID(storeID)})
		}},
		{"other stores only", func(storeID, _ int64) *optimizer.Result {
			return testutil.Result(testutil.Propose(storeID+100, 2), testutil.Propose(storeID+101, 2))
		}},
		{"auditor not offered", func(storeID, outsider int64) *optimizer.Result {
			return testutil.Result(testutil.Propose(storeID, outsider))
		}},
		{"empty answer", func(int64, int64) *optimizer.Result { return testutil.Result() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			repos := f.uow.Repos()
			a1 := testutil.SeedAuditor(t, repos, "A1", models.AvailabilityAvailable)
			testutil.SeedAuditor(t, repos, "A2", models.AvailabilityAvailable)
			outsider := testutil.SeedAuditor(t, repos, "A3", models.AvailabilityUnavailable)
			s1 := testutil.SeedStore(t, repos, "S1", models.StoreOpen)
			testutil.SeedPlan(t, repos, a1.ID, s1.ID)
			f.opt.Respond = func(int, *optimizer.Request) (*optimizer.Result, error) {
				return tt.respond(s1.ID, outsider.ID), nil
			}

			out, err := f.controller(t, defaults).UpdateAvailability(context.Background(), a1.ID, models.AvailabilityOnLeave)
			require.NoError(t, err)
			require.Len(t, out.Stores, 1)
			assert.Equal(t, ActionUnassigned, out.Stores[0].Action)
			assert.Equal(t, 1, out.OptimizerCalls)

			_, err = repos.Plans.GetByStore(context.Background(), s1.ID)
			assert.Error(t, err)
		})
	}
}

func TestUpdateAvailability_LoneEntryAnswersTheStore(t *testing.T) {
	tests := []struct {
		name  string
		entry func(storeID, auditorID int64) optimizer.Proposal
	}{
		{"missing store_id", func(_, auditorID int64) optimizer.Proposal {
			return optimizer.Proposal{AuditorID: testutil.ID(auditorID), Problem: "store_id has unsupported type bool"}
		}},
		{"different store_id", func(storeID, auditorID int64) optimizer.Proposal {
			return testutil.Propose(storeID+100, auditorID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			repos := f.uow.Repos()
			a1 := testutil.SeedAuditor(t, repos, "A1", models.AvailabilityAvailable)
			a2 := testutil.SeedAuditor(t, repos, "A2", models.AvailabilityAvailable)
			s1 := testutil.SeedStore(t, repos, "S1", models.StoreOpen)
			testutil.SeedPlan(t, repos, a1.ID, s1.ID)
			f.opt.Respond = func(int, *optimizer.Request) (*optimizer.Result, error) {
				return testutil.Result(tt.entry(s1.ID, a2.ID)), nil
			}

			out, err := f.controller(t, defaults).UpdateAvailability(context.Background(), a1.ID, models.AvailabilityOnLeave)
			require.NoError(t, err)
			require.Len(t, out.Stores, 1)
			assert.Equal(t, ActionRebound, out.Stores[0].Action)
			assert.Equal(t, a2.ID, out.Stores[0].NewAuditorID)

			plan, err := repos.Plans.GetByStore(context.Background(), s1.ID)
			require.NoError(t, err)
			assert.Equal(t, a2.ID, plan.AuditorID)
		})
	}
}

func TestUpdateAvailability_CandidateLostAvailability(t *testing.T) {
	f := newFixture()
	repos := f.uow.Repos()
	a1 := testutil.SeedAuditor(t, repos, "A1", models.AvailabilityAvailable)
	a2 := testutil.SeedAuditor(t, repos, "A2", models.AvailabilityAvailable)
	s1 := testutil.SeedStore(t, repos, "S1", models.StoreOpen)
	testutil.SeedPlan(t, repos, a1.ID, s1.ID)

	f.opt.Respond = func(_ int, req *optimizer.Request) (*optimizer.Result, error) {
		require.NoError(t, repos.Auditors.UpdateStatus(context.Background(), a2.ID, models.AvailabilityOnLeave))
		return firstOffered(0, req)
	}

	out, err := f.controller(t, defaults).UpdateAvailability(context.Background(), a1.ID, models.AvailabilityUnavailable)
	require.NoError(t, err)
	require.Len(t, out.Stores, 1)
	assert.Equal(t, ActionUnassigned, out.Stores[0].Action)
	assert.Equal(t, "candidate no longer available", out.Stores[0].Reason)
}

func TestUpdateAvailability_SupersededPlanIsSkipped(t *testing.T) {
	f := newFixture()
	repos := f.uow.Repos()
	a1 := testutil.SeedAuditor(t, repos, "A1", models.AvailabilityAvailable)
	a2 := testutil.SeedAuditor(t, repos, "A2", models.AvailabilityAvailable)
	a3 := testutil.SeedAuditor(t, repos, "A3", models.AvailabilityAvailable)
	s1 := testutil.SeedStore(t, repos, "S1", models.StoreOpen)
	plan := testutil.SeedPlan(t, repos, a1.ID, s1.ID)

	f.opt.Respond = func(_ int, req *optimizer.Request) (*optimizer.Result, error) {
		moved := plan
		moved.AuditorID = a3.ID
		require.NoError(t, repos.Plans.Update(context.Background(), &moved))
		return testutil.Result(testutil.Propose(s1.ID, a2.ID)), nil
	}

	out, err := f.controller(t, defaults).UpdateAvailability(context.Background(), a1.ID, models.AvailabilityUnavailable)
	require.NoError(t, err)
	require.Len(t, out.Stores, 1)
	assert.Equal(t, ActionSuperseded, out.Stores[0].Action)

	current, err := repos.Plans.GetByID(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, a3.ID, current.AuditorID)
	assert.Empty(t, f.notifier.sent)
}

func TestUpdateAvailability_OptimizerFailurePolicies(t *testing.T) {
	seed := func(t *testing.T, f *fixture) (a1 models.Auditor, s1, s2 models.Store) {
		repos := f.uow.Repos()
		a1 = testutil.SeedAuditor(t, repos, "A1", models.AvailabilityAvailable)
		testutil.SeedAuditor(t, repos, "A2", models.AvailabilityAvailable)
		testutil.SeedAuditor(t, repos, "A3", models.AvailabilityAvailable)
		s1 = testutil.SeedStore(t, repos, "S1", models.StoreOpen)
		s2 = testutil.SeedStore(t, repos, "S2", models.StoreOpen)
		testutil.SeedPlan(t, repos, a1.ID, s1.ID)
		testutil.SeedPlan(t, repos, a1.ID, s2.ID)
		f.opt.Respond = func(call int, req *optimizer.Request) (*optimizer.Result, error) {
			if call == 1 {
				return nil, apperrors.NewExternalServiceError("optimizer", errors.New("connection refused"))
			}
			return firstOffered(call, req)
		}
		return a1, s1, s2
	}

	t.Run("continue marks disrupted", func(t *testing.T) {
		f := newFixture()
		a1, s1, s2 := seed(t, f)

		out, err := f.controller(t, defaults).UpdateAvailability(context.Background(), a1.ID, models.AvailabilityUnavailable)
		require.NoError(t, err)
		require.Len(t, out.Stores, 2)
		assert.Equal(t, ActionDisrupted, out.Stores[0].Action)
		assert.Equal(t, ActionRebound, out.Stores[1].Action)

		disrupted, err := f.uow.Repos().Plans.GetByStore(context.Background(), s1.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AuditDisrupted, disrupted.Status)
		assert.Equal(t, a1.ID, disrupted.AuditorID)

		rebound, err := f.uow.Repos().Plans.GetByStore(context.Background(), s2.ID)
		require.NoError(t, err)
		assert.NotEqual(t, a1.ID, rebound.AuditorID)

		require.Len(t, f.notifier.sent, 1)
		assert.Equal(t, notify.KindDisrupted, f.notifier.sent[0].Kind)
	})

	t.Run("abort stops", func(t *testing.T) {
		f := newFixture()
		a1, _, s2 := seed(t, f)

		policy := Policy{CandidatePolicy: config.CandidatePolicyExclusive, OnOptimizerFailure: config.FailurePolicyAbort}
		out, err := f.controller(t, policy).UpdateAvailability(context.Background(), a1.ID, models.AvailabilityUnavailable)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternalService))
		assert.Empty(t, out.Stores)
		assert.Equal(t, 1, f.opt.Calls())

		untouched, err := f.uow.Repos().Plans.GetByStore(context.Background(), s2.ID)
		require.NoError(t, err)
		assert.Equal(t, a1.ID, untouched.AuditorID)

		a, err := f.uow.Repos().Auditors.GetByID(context.Background(), a1.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AvailabilityUnavailable, a.AvailabilityStatus)
	})
}

func TestUpdateAvailability_NonTriggeringTransitions(t *testing.T) {
	tests := []struct {
		from, to models.AvailabilityStatus
	}{
		{models.AvailabilityAvailable, models.AvailabilityAvailable},
		{models.AvailabilityUnavailable, models.AvailabilityOnLeave},
		{models.AvailabilityOnLeave, models.AvailabilityAvailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			f := newFixture()
			repos := f.uow.Repos()
			a1 := testutil.SeedAuditor(t, repos, "A1", tt.from)
			testutil.SeedAuditor(t, repos, "A2", models.AvailabilityAvailable)
			s1 := testutil.SeedStore(t, repos, "S1", models.StoreOpen)
			testutil.SeedPlan(t, repos, a1.ID, s1.ID)

			out, err := f.controller(t, defaults).UpdateAvailability(context.Background(), a1.ID, tt.to)
			require.NoError(t, err)
			assert.False(t, out.Triggered)
			assert.Empty(t, out.Stores)
			assert.Equal(t, 0, f.opt.Calls())

			got, err := repos.Auditors.GetByID(context.Background(), a1.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.to, got.AvailabilityStatus)

			plans, err := repos.Plans.ListByAuditor(context.Background(), a1.ID)
			require.NoError(t, err)
			assert.Len(t, plans, 1)
		})
	}
}

func TestUpdateAvailability_Errors(t *testing.T) {
	f := newFixture()
	c := f.controller(t, defaults)

	_, err := c.UpdateAvailability(context.Background(), 42, models.AvailabilityOnLeave)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))

	_, err = c.UpdateAvailability(context.Background(), 42, models.AvailabilityStatus("RETIRED"))
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	a1 := testutil.SeedAuditor(t, f.uow.Repos(), "A1", models.AvailabilityAvailable)
	held, err := f.locker.Acquire(context.Background(), lock.CascadeKey(a1.ID))
	require.NoError(t, err)
	defer held.Release(context.Background())

	_, err = c.UpdateAvailability(context.Background(), a1.ID, models.AvailabilityOnLeave)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConflict))

	got, err := f.uow.Repos().Auditors.GetByID(context.Background(), a1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityAvailable, got.AvailabilityStatus)
}

func TestUpdateAvailability_LocksAuditorRow(t *testing.T) {
	f := newFixture()
	a1 := testutil.SeedAuditor(t, f.uow.Repos(), "A1", models.AvailabilityAvailable)

	_, err := f.controller(t, defaults).UpdateAvailability(context.Background(), a1.ID, models.AvailabilityOnLeave)
	require.NoError(t, err)
	assert.Contains(t, f.uow.LockLog(), "auditor:1")
}
