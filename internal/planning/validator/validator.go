// Package validator filters optimizer proposals against the backing store.
// It runs inside the commit transaction, after the referenced rows have been
// locked, so what it observes is what gets committed.
package validator

import (
	"context"
	"errors"
	"fmt"

	"audit-planner/internal/common/logger"
	"audit-planner/internal/common/metrics"
	"audit-planner/internal/models"
	"audit-planner/internal/planning/optimizer"
	"audit-planner/internal/repository"
)

// Rejection reasons.
const (
	ReasonMissingStoreID        = "missing_store_id"
	ReasonMissingAuditorID      = "missing_auditor_id"
	ReasonDuplicateAuditor      = "duplicate_auditor"
	ReasonUnknownStore          = "unknown_store"
	ReasonUnknownAuditor        = "unknown_auditor"
	ReasonDuplicateStore        = "duplicate_store"
	ReasonStoreNotOpen          = "store_not_open"
	ReasonStoreAlreadyPlanned   = "store_already_planned"
	ReasonAuditorNotAvailable   = "auditor_not_available"
	ReasonAuditorAlreadyPlanned = "auditor_already_planned"
)

// Accepted is a proposal that passed every check, with its resolved entities.
// Replaces is set when the store still carries a stranded DISRUPTED plan that
// the new plan supersedes.
type Accepted struct {
	Plan     models.AuditPlan
	Auditor  models.Auditor
	Store    models.Store
	Replaces *models.AuditPlan
}

type Rejection struct {
	Position  int
	StoreID   *int64
	AuditorID *int64
	Reason    string
	Detail    string
}

type Outcome struct {
	Accepted []Accepted
	Rejected []Rejection
}

type Validator struct {
	logger logger.Logger
}

func New(log logger.Logger) *Validator {
	return &Validator{logger: logger.Component(log, "validator")}
}

// ReferencedIDs returns every store and auditor id mentioned by proposals,
// for locking before Validate.
func ReferencedIDs(proposals []optimizer.Proposal) (storeIDs, auditorIDs []int64) {
	for _, p := range proposals {
		if p.StoreID != nil {
			storeIDs = append(storeIDs, *p.StoreID)
		}
		if p.AuditorID != nil {
			auditorIDs = append(auditorIDs, *p.AuditorID)
		}
	}
	return storeIDs, auditorIDs
}

// Validate walks proposals in order. Bad proposals are rejected, never
// returned as errors; the error is reserved for backing-store failures.
// Validate has no side effects outside repos, so a retried transaction may
// call it again; Report the outcome once the transaction has committed.
func (v *Validator) Validate(ctx context.Context, repos repository.Repositories, proposals []optimizer.Proposal) (*Outcome, error) {
	out := &Outcome{Accepted: []Accepted{}, Rejected: []Rejection{}}
	acceptedAuditors := make(map[int64]struct{})
	acceptedStores := make(map[int64]struct{})

	for _, p := range proposals {
		reason, detail, accepted, err := v.check(ctx, repos, p, acceptedAuditors, acceptedStores)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			out.Rejected = append(out.Rejected, Rejection{
				Position:  p.Position,
				StoreID:   p.StoreID,
				AuditorID: p.AuditorID,
				Reason:    reason,
				Detail:    detail,
			})
			continue
		}
		acceptedAuditors[accepted.Auditor.ID] = struct{}{}
		acceptedStores[accepted.Store.ID] = struct{}{}
		out.Accepted = append(out.Accepted, *accepted)
	}
	return out, nil
}

func (v *Validator) check(
	ctx context.Context,
	repos repository.Repositories,
	p optimizer.Proposal,
	acceptedAuditors, acceptedStores map[int64]struct{},
) (string, string, *Accepted, error) {
	if p.StoreID == nil {
		return ReasonMissingStoreID, p.Problem, nil, nil
	}
	if p.AuditorID == nil {
		return ReasonMissingAuditorID, p.Problem, nil, nil
	}
	if _, dup := acceptedAuditors[*p.AuditorID]; dup {
		return ReasonDuplicateAuditor, "", nil, nil
	}

	store, err := repos.Stores.GetByID(ctx, *p.StoreID)
	if errors.Is(err, repository.ErrNotFound) {
		return ReasonUnknownStore, "", nil, nil
	}
	if err != nil {
		return "", "", nil, fmt.Errorf("resolve store %d: %w", *p.StoreID, err)
	}
	auditor, err := repos.Auditors.GetByID(ctx, *p.AuditorID)
	if errors.Is(err, repository.ErrNotFound) {
		return ReasonUnknownAuditor, "", nil, nil
	}
	if err != nil {
		return "", "", nil, fmt.Errorf("resolve auditor %d: %w", *p.AuditorID, err)
	}

	if _, dup := acceptedStores[store.ID]; dup {
		return ReasonDuplicateStore, "", nil, nil
	}
	if !store.IsOpen() {
		return ReasonStoreNotOpen, string(store.StoreStatus), nil, nil
	}
	replaces, err := repos.Plans.GetByStore(ctx, store.ID)
	if errors.Is(err, repository.ErrNotFound) {
		replaces = nil
	} else if err != nil {
		return "", "", nil, fmt.Errorf("check store %d plan: %w", store.ID, err)
	}
	if replaces != nil {
		stranded, err := repository.Stranded(ctx, repos, *replaces)
		if err != nil {
			return "", "", nil, fmt.Errorf("check store %d plan holder: %w", store.ID, err)
		}
		if !stranded {
			return ReasonStoreAlreadyPlanned, "", nil, nil
		}
	}
	if !auditor.IsAvailable() {
		return ReasonAuditorNotAvailable, string(auditor.AvailabilityStatus), nil, nil
	}
	planned, err := repos.Plans.ExistsForAuditor(ctx, auditor.ID)
	if err != nil {
		return "", "", nil, fmt.Errorf("check auditor %d plans: %w", auditor.ID, err)
	}
	if planned {
		return ReasonAuditorAlreadyPlanned, "", nil, nil
	}

	return "", "", &Accepted{
		Plan:     models.NewPlannedAudit(auditor.ID, store.ID),
		Auditor:  *auditor,
		Store:    *store,
		Replaces: replaces,
	}, nil
}

// Report counts and logs every rejection of a committed outcome.
func (v *Validator) Report(out *Outcome) {
	if out == nil {
		return
	}
	for _, r := range out.Rejected {
		metrics.ProposalsRejected.WithLabelValues(r.Reason).Inc()

		fields := map[string]interface{}{
			"position": r.Position,
			"reason":   r.Reason,
		}
		if r.StoreID != nil {
			fields["storeId"] = *r.StoreID
		}
		if r.AuditorID != nil {
			fields["auditorId"] = *r.AuditorID
		}
		if r.Detail != "" {
			fields["detail"] = r.Detail
		}
		v.logger.Warn("proposal rejected", fields)
	}
}
