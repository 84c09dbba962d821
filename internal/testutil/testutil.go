// Package testutil holds fakes and fixtures shared by planner tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"audit-planner/internal/models"
	"audit-planner/internal/planning/optimizer"
	"audit-planner/internal/repository"

	"github.com/stretchr/testify/require"
)

// FakeOptimizer records requests and answers through Respond. Without
// Respond it pairs the i-th store with the i-th auditor.
type FakeOptimizer struct {
	mu       sync.Mutex
	requests []*optimizer.Request
	Respond  func(call int, req *optimizer.Request) (*optimizer.Result, error)
}

func (f *FakeOptimizer) Assign(_ context.Context, req *optimizer.Request) (*optimizer.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	respond := f.Respond
	f.mu.Unlock()

	if respond == nil {
		return Greedy(req), nil
	}
	return respond(call, req)
}

func (f *FakeOptimizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *FakeOptimizer) Requests() []*optimizer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*optimizer.Request(nil), f.requests...)
}

// Greedy pairs stores and auditors by position.
func Greedy(req *optimizer.Request) *optimizer.Result {
	var props []optimizer.Proposal
	for i, s := range req.Stores {
		if i < len(req.Auditors) {
			props = append(props, Propose(s.StoreID, req.Auditors[i].AuditorID))
		} else {
			props = append(props, optimizer.Proposal{StoreID: ID(s.StoreID)})
		}
	}
	return Result(props...)
}

func ID(v int64) *int64 { return &v }

// Propose builds a proposal with both ids set.
func Propose(storeID, auditorID int64) optimizer.Proposal {
	return optimizer.Proposal{StoreID: ID(storeID), AuditorID: ID(auditorID)}
}

// Result numbers proposals in order and wraps them in a success result.
func Result(props ...optimizer.Proposal) *optimizer.Result {
	out := &optimizer.Result{Status: "success", Code: "200", Proposals: []optimizer.Proposal{}}
	for i, p := range props {
		p.Position = i
		out.Proposals = append(out.Proposals, p)
	}
	return out
}

func SeedAuditor(t testing.TB, repos repository.Repositories, name string, status models.AvailabilityStatus) models.Auditor {
	t.Helper()
	a := models.Auditor{
		Name:                  name,
		HomeLat:               12.97,
		HomeLon:               77.59,
		WorkloadCapacityHours: 40,
		AvailabilityStatus:    status,
	}
	require.NoError(t, repos.Auditors.Create(context.Background(), &a))
	return a
}

func SeedStore(t testing.TB, repos repository.Repositories, name string, status models.StoreStatus) models.Store {
	t.Helper()
	s := models.Store{
		Name:        name,
		Address:     name + " Road",
		LocationLat: 12.93,
		LocationLon: 77.62,
		StoreStatus: status,
	}
	require.NoError(t, repos.Stores.Create(context.Background(), &s))
	return s
}

func SeedPlan(t testing.TB, repos repository.Repositories, auditorID, storeID int64) models.AuditPlan {
	t.Helper()
	p := models.NewPlannedAudit(auditorID, storeID)
	require.NoError(t, repos.Plans.Create(context.Background(), &p))
	return p
}
