package optimizer

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(v int64) *int64 { return &v }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret", Timeout: 2 * time.Second}, logger.NewTestLogger(t))
}

func TestNewRequest_MapsLabels(t *testing.T) {
	req := NewRequest(PurposeBatch,
		[]models.Auditor{
			{ID: 1, HomeLat: 1.5, HomeLon: 2.5, AvailabilityStatus: models.AvailabilityAvailable},
			{ID: 2, AvailabilityStatus: models.AvailabilityOnLeave},
		},
		[]models.Store{
			{ID: 10, LocationLat: 3, LocationLon: 4, StoreStatus: models.StoreOpen},
			{ID: 11, StoreStatus: models.StoreClosed},
		})

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"auditors":[
			{"auditor_id":1,"latitude":1.5,"longitude":2.5,"availability_status":"Available"},
			{"auditor_id":2,"latitude":0,"longitude":0,"availability_status":"Unavailable"}
		],
		"stores":[
			{"store_id":10,"latitude":3,"longitude":4,"store_status":"Open"},
			{"store_id":11,"latitude":0,"longitude":0,"store_status":"Closed"}
		]}`, string(raw))
}

func TestClient_AssignPostsRequest(t *testing.T) {
	var gotPath, gotKey string
	var gotBody Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","code":"200","data":{
			"auditors":[],
			"stores":[
				{"store_id":10,"assigned_auditor_id":1},
				{"store_id":11,"assigned_auditor_id":null}
			],
			"disruptions":[{"store_id":11}]}}`))
	})

	res, err := c.Assign(context.Background(), NewRequest(PurposeBatch,
		[]models.Auditor{{ID: 1, AvailabilityStatus: models.AvailabilityAvailable}},
		[]models.Store{{ID: 10, StoreStatus: models.StoreOpen}, {ID: 11, StoreStatus: models.StoreOpen}}))
	require.NoError(t, err)

	assert.Equal(t, DefaultPath, gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Len(t, gotBody.Stores, 2)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "200", res.Code)
	assert.Equal(t, 1, res.Disruptions)
	assert.Equal(t, []Proposal{
		{Position: 0, StoreID: id(10), AuditorID: id(1)},
		{Position: 1, StoreID: id(11)},
	}, res.Proposals)

	p, ok := res.ForStore(11)
	require.True(t, ok)
	assert.Nil(t, p.AuditorID)
	_, ok = res.ForStore(12)
	assert.False(t, ok)
}

func TestClient_AssignFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"bad request", http.StatusBadRequest, `{"status":"error","code":"INVALID_REQUEST"}`},
		{"not json", http.StatusOK, `<html>oops</html>`},
		{"schema violation", http.StatusOK, `{"status":"success","data":{"stores":"nope"}}`},
		{"top level array", http.StatusOK, `[]`},
		{"error status", http.StatusOK, `{"status":"error","code":"INTERNAL","message":"solver crashed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := c.Assign(context.Background(), &Request{})
			assert.Nil(t, res)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternalService), "got %v", err)
		})
	}
}

func TestClient_AssignTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url}, logger.NewNoOpLogger())
	_, err := c.Assign(context.Background(), &Request{Purpose: PurposeCascade})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternalService))
}

func TestClient_AssignTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, logger.NewNoOpLogger())
	_, err := c.Assign(context.Background(), &Request{})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternalService))
}

func TestParseResponse_NullDataMeansNoProposals(t *testing.T) {
	for _, body := range []string{
		`{"status":"success","data":null}`,
		`{"status":"success","data":{"stores":null}}`,
		`{"status":"success"}`,
	} {
		res, err := parseResponse([]byte(body))
		require.NoError(t, err, body)
		assert.Empty(t, res.Proposals, body)
		assert.NotNil(t, res.Proposals, body)
	}
}

func TestParseResponse_CoercesIDs(t *testing.T) {
	body := `{"status":"success","code":200,"data":{"stores":[
		{"store_id":"7","assigned_auditor_id":3.0},
		{"store_id":8.5,"assigned_auditor_id":"x"},
		{"store_id":true},
		"garbage",
		{"assigned_auditor_id":4},
		{"store_id":"9223372036854775808","assigned_auditor_id":9223372036854775808},
		{"store_id":9223372036854775807,"assigned_auditor_id":-9.223372036854775808e18}
	]}}`

	res, err := parseResponse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "200", res.Code)
	require.Len(t, res.Proposals, 7)

	assert.Equal(t, id(7), res.Proposals[0].StoreID)
	assert.Equal(t, id(3), res.Proposals[0].AuditorID)
	assert.Empty(t, res.Proposals[0].Problem)

	assert.Nil(t, res.Proposals[1].StoreID)
	assert.Nil(t, res.Proposals[1].AuditorID)
	assert.Contains(t, res.Proposals[1].Problem, "store_id")
	assert.Contains(t, res.Proposals[1].Problem, "assigned_auditor_id")

	assert.Nil(t, res.Proposals[2].StoreID)
	assert.Contains(t, res.Proposals[2].Problem, "unsupported type bool")

	assert.Equal(t, "entry is not an object", res.Proposals[3].Problem)
	assert.Equal(t, 3, res.Proposals[3].Position)

	assert.Nil(t, res.Proposals[4].StoreID)
	assert.Equal(t, id(4), res.Proposals[4].AuditorID)
	assert.Empty(t, res.Proposals[4].Problem)

	assert.Nil(t, res.Proposals[5].StoreID)
	assert.Nil(t, res.Proposals[5].AuditorID)
	assert.Contains(t, res.Proposals[5].Problem, "store_id \"9223372036854775808\" is not an integer")
	assert.Contains(t, res.Proposals[5].Problem, "assigned_auditor_id")

	assert.Equal(t, id(math.MaxInt64), res.Proposals[6].StoreID)
	assert.Equal(t, id(math.MinInt64), res.Proposals[6].AuditorID)
	assert.Empty(t, res.Proposals[6].Problem)
}

func TestClient_Health(t *testing.T) {
	healthy := true
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != HealthPath || !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	assert.NoError(t, c.Health(context.Background()))
	healthy = false
	assert.Error(t, c.Health(context.Background()))
}
