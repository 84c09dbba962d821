package optimizer

import "audit-planner/internal/models"

// Wire labels understood by the optimizer.
const (
	LabelAvailable   = "Available"
	LabelUnavailable = "Unavailable"
	LabelOpen        = "Open"
	LabelClosed      = "Closed"
)

// AvailabilityLabel is the only place auditor availability is mapped to the wire.
func AvailabilityLabel(s models.AvailabilityStatus) string {
	if s == models.AvailabilityAvailable {
		return LabelAvailable
	}
	return LabelUnavailable
}

// StoreLabel is the only place store status is mapped to the wire.
func StoreLabel(s models.StoreStatus) string {
	if s == models.StoreOpen {
		return LabelOpen
	}
	return LabelClosed
}
