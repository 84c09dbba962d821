// Package journal records assignment decisions so that batches and cascades
// can be reconstructed after the fact.
package journal

import (
	"context"
	"time"

	"audit-planner/internal/common/logger"
)

type EventType string

const (
	EventPlanCreated      EventType = "plan_created"
	EventPlanRebound      EventType = "plan_rebound"
	EventPlanUnassigned   EventType = "plan_unassigned"
	EventPlanDisrupted    EventType = "plan_disrupted"
	EventPlanClosed       EventType = "plan_store_closed"
	EventPlanReplaced     EventType = "plan_disrupted_replaced"
	EventProposalRejected EventType = "proposal_rejected"
)

// Event is one decision. BatchID groups the events of a single batch run or
// cascade.
type Event struct {
	Type              EventType `json:"type"`
	BatchID           string    `json:"batchId"`
	PlanID            int64     `json:"planId,omitempty"`
	StoreID           int64     `json:"storeId,omitempty"`
	AuditorID         int64     `json:"auditorId,omitempty"`
	PreviousAuditorID int64     `json:"previousAuditorId,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Recorder persists events. Implementations must tolerate being called
// after the decision has already been committed; a failure is reported but
// never undoes the decision.
type Recorder interface {
	Record(ctx context.Context, events ...Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, ...Event) error { return nil }

// LogRecorder writes events to the structured log.
type LogRecorder struct {
	logger logger.Logger
}

func NewLogRecorder(log logger.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.Component(log, "journal")}
}

func (r *LogRecorder) Record(_ context.Context, events ...Event) error {
	for _, e := range events {
		r.logger.Info("assignment decision", map[string]interface{}{
			"type":              string(e.Type),
			"batchId":           e.BatchID,
			"planId":            e.PlanID,
			"storeId":           e.StoreID,
			"auditorId":         e.AuditorID,
			"previousAuditorId": e.PreviousAuditorID,
			"reason":            e.Reason,
		})
	}
	return nil
}

// Stamp fills in missing timestamps.
func Stamp(events []Event, now time.Time) []Event {
	for i := range events {
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = now.UTC()
		}
	}
	return events
}
