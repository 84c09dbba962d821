package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"audit-planner/internal/api/health"
	"audit-planner/internal/api/respond"
	"audit-planner/internal/common/config"
	"audit-planner/internal/common/lock"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/models"
	"audit-planner/internal/planning/cascade"
	"audit-planner/internal/repository/memory"
	"audit-planner/internal/services"
	"audit-planner/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, uow *memory.UnitOfWork, basePath string) http.Handler {
	t.Helper()
	log := logger.NewTestLogger(t)
	opt := &testutil.FakeOptimizer{}
	locker := lock.NewLocalLocker(lock.Options{Wait: time.Second})
	ctrl := cascade.New(cascade.Deps{UnitOfWork: uow, Optimizer: opt, Locker: locker},
		cascade.Policy{CandidatePolicy: config.CandidatePolicyExclusive, OnOptimizerFailure: config.FailurePolicyContinue}, log)
	return NewRouter(Deps{
		Plans:    services.NewPlanService(services.PlanDeps{UnitOfWork: uow, Optimizer: opt, Locker: locker}, log),
		Auditors: services.NewAuditorService(uow, ctrl, log),
		Stores:   services.NewStoreService(uow, nil, nil, log),
		Health:   health.NewHandler(log),
		BasePath: basePath,
		Logger:   log,
	})
}

func TestRouter_BasePathAndRootEndpoints(t *testing.T) {
	uow := memory.New()
	testutil.SeedStore(t, uow.Repos(), "Central", models.StoreOpen)
	r := newTestRouter(t, uow, "/api")

	for path, want := range map[string]int{
		"/api/store":    http.StatusOK,
		"/api/store/1":  http.StatusOK,
		"/store":        http.StatusNotFound,
		"/health":       http.StatusOK,
		"/ready":        http.StatusOK,
		"/api/health":   http.StatusNotFound,
		"/metrics":      http.StatusOK,
		"/api/auditors": http.StatusOK,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestRouter_RequestID(t *testing.T) {
	r := newTestRouter(t, memory.New(), "/api/")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auditors", nil))
	assert.NotEmpty(t, rec.Header().Get(respond.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/auditor/3", nil)
	req.Header.Set(respond.RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(respond.RequestIDHeader))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_InternalErrorsCarryRequestID(t *testing.T) {
	uow := memory.New()
	testutil.SeedAuditor(t, uow.Repos(), "A1", models.AvailabilityAvailable)
	testutil.SeedStore(t, uow.Repos(), "S1", models.StoreOpen)
	uow.SetFault(func(op string) error {
		if op == "plans.create" {
			return assert.AnError
		}
		return nil
	})
	r := newTestRouter(t, uow, "/api")

	req := httptest.NewRequest(http.MethodPost, "/api/process", nil)
	req.Header.Set(respond.RequestIDHeader, "req-7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"An internal server error occurred.","details":"INTERNAL_ERROR (request req-7)"}`, rec.Body.String())
}

func TestRouter_CORS(t *testing.T) {
	r := newTestRouter(t, memory.New(), "/api")

	req := httptest.NewRequest(http.MethodOptions, "/api/auditors", nil)
	req.Header.Set("Origin", DefaultOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, DefaultOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut))

	req = httptest.NewRequest(http.MethodGet, "/api/auditors", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
