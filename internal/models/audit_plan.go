// internal/models/audit_plan.go
package models

import (
	"fmt"
	"strings"
)

type AuditPriority string

const (
	PriorityHigh   AuditPriority = "HIGH"
	PriorityMedium AuditPriority = "MEDIUM"
	PriorityLow    AuditPriority = "LOW"
)

func (p AuditPriority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

func ParseAuditPriority(raw string) (AuditPriority, error) {
	p := AuditPriority(strings.ToUpper(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid audit priority %q", raw)
	}
	return p, nil
}

type AuditStatus string

const (
	AuditPlanned    AuditStatus = "PLANNED"
	AuditInProgress AuditStatus = "IN_PROGRESS"
	AuditDisrupted  AuditStatus = "DISRUPTED"
	AuditReassigned AuditStatus = "REASSIGNED"
	AuditCompleted  AuditStatus = "COMPLETED"
)

func (s AuditStatus) Valid() bool {
	switch s {
	case AuditPlanned, AuditInProgress, AuditDisrupted, AuditReassigned, AuditCompleted:
		return true
	}
	return false
}

func ParseAuditStatus(raw string) (AuditStatus, error) {
	s := AuditStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid audit status %q", raw)
	}
	return s, nil
}

// AuditPlan binds one auditor to one store. While the row exists the store
// counts as planned.
type AuditPlan struct {
	ID        int64         `json:"auditId"`
	AuditorID int64         `json:"auditorId"`
	StoreID   int64         `json:"storeId"`
	Priority  AuditPriority `json:"auditPriority"`
	Status    AuditStatus   `json:"auditStatus"`
}

// NewPlannedAudit is the shape of every freshly generated plan.
func NewPlannedAudit(auditorID, storeID int64) AuditPlan {
	return AuditPlan{
		AuditorID: auditorID,
		StoreID:   storeID,
		Priority:  PriorityMedium,
		Status:    AuditPlanned,
	}
}

// AuditPlanView is the response projection of a plan.
type AuditPlanView struct {
	AuditID       int64         `json:"auditId"`
	AuditStatus   AuditStatus   `json:"auditStatus"`
	AuditPriority AuditPriority `json:"auditPriority"`
	AuditorID     int64         `json:"auditorId"`
	AuditorName   string        `json:"auditorName"`
	StoreID       int64         `json:"storeId"`
	StoreName     string        `json:"storeName"`
}

// NewAuditPlanView projects a plan using already-resolved entities.
func NewAuditPlanView(plan AuditPlan, auditor Auditor, store Store) AuditPlanView {
	return AuditPlanView{
		AuditID:       plan.ID,
		AuditStatus:   plan.Status,
		AuditPriority: plan.Priority,
		AuditorID:     auditor.ID,
		AuditorName:   auditor.Name,
		StoreID:       store.ID,
		StoreName:     store.Name,
	}
}
