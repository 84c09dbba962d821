package optimizer

import (
	"context"

	"audit-planner/internal/models"
)

// Call purposes, used as a metric label.
const (
	PurposeBatch   = "batch"
	PurposeCascade = "cascade"
)

type AuditorInput struct {
	AuditorID          int64   `json:"auditor_id"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	AvailabilityStatus string  `json:"availability_status"`
}

type StoreInput struct {
	StoreID     int64   `json:"store_id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	StoreStatus string  `json:"store_status"`
}

// Request is the optimizer request body.
type Request struct {
	Auditors []AuditorInput `json:"auditors"`
	Stores   []StoreInput   `json:"stores"`

	Purpose string `json:"-"`
}

// NewRequest converts domain entities into a request. Statuses are mapped
// through AvailabilityLabel and StoreLabel.
func NewRequest(purpose string, auditors []models.Auditor, stores []models.Store) *Request {
	req := &Request{
		Auditors: make([]AuditorInput, 0, len(auditors)),
		Stores:   make([]StoreInput, 0, len(stores)),
		Purpose:  purpose,
	}
	for _, a := range auditors {
		req.Auditors = append(req.Auditors, AuditorInput{
			AuditorID:          a.ID,
			Latitude:           a.HomeLat,
			Longitude:          a.HomeLon,
			AvailabilityStatus: AvailabilityLabel(a.AvailabilityStatus),
		})
	}
	for _, s := range stores {
		req.Stores = append(req.Stores, StoreInput{
			StoreID:     s.ID,
			Latitude:    s.LocationLat,
			Longitude:   s.LocationLon,
			StoreStatus: StoreLabel(s.StoreStatus),
		})
	}
	return req
}

// Proposal is one decoded entry of data.stores. Ids the optimizer left out
// or sent in an unusable form are nil; Problem describes the latter.
type Proposal struct {
	Position  int
	StoreID   *int64
	AuditorID *int64
	Problem   string
}

// Result is a successful optimizer answer.
type Result struct {
	Status      string
	Code        string
	Proposals   []Proposal
	Disruptions int
}

// ForStore returns the first proposal for storeID.
func (r *Result) ForStore(storeID int64) (Proposal, bool) {
	if r == nil {
		return Proposal{}, false
	}
	for _, p := range r.Proposals {
		if p.StoreID != nil && *p.StoreID == storeID {
			return p, true
		}
	}
	return Proposal{}, false
}

// Assigner is the optimizer as seen by the planning engine.
type Assigner interface {
	Assign(ctx context.Context, req *Request) (*Result, error)
}

// HealthChecker is implemented by optimizers that expose a health probe.
type HealthChecker interface {
	Health(ctx context.Context) error
}
