// internal/models/auditor.go
package models

import (
	"fmt"
	"strings"
)

type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "AVAILABLE"
	AvailabilityUnavailable AvailabilityStatus = "UNAVAILABLE"
	AvailabilityOnLeave     AvailabilityStatus = "ON_LEAVE"
)

func (s AvailabilityStatus) Valid() bool {
	switch s {
	case AvailabilityAvailable, AvailabilityUnavailable, AvailabilityOnLeave:
		return true
	}
	return false
}

// ParseAvailabilityStatus accepts any casing and surrounding whitespace.
func ParseAvailabilityStatus(raw string) (AvailabilityStatus, error) {
	s := AvailabilityStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid availability status %q", raw)
	}
	return s, nil
}

// Auditor is a field auditor who can be assigned to stores.
type Auditor struct {
	ID                    int64              `json:"id"`
	Name                  string             `json:"name"`
	HomeLat               float64            `json:"homeLat"`
	HomeLon               float64            `json:"homeLon"`
	WorkloadCapacityHours float64            `json:"workLoadCapacityHours"`
	CurrentAssignedHours  float64            `json:"currentAssignedHours"`
	AvailabilityStatus    AvailabilityStatus `json:"availabilityStatus"`
}

// IsAvailable reports whether the auditor may receive new work.
func (a Auditor) IsAvailable() bool {
	return a.AvailabilityStatus == AvailabilityAvailable
}

// LeavesAvailability reports whether moving from prev to next is the
// transition that triggers a reassignment cascade.
func LeavesAvailability(prev, next AvailabilityStatus) bool {
	return prev == AvailabilityAvailable && (next == AvailabilityUnavailable || next == AvailabilityOnLeave)
}
