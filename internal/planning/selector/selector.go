// Package selector finds the auditors and stores eligible for a batch.
package selector

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"audit-planner/internal/common/logger"
	"audit-planner/internal/models"
	"audit-planner/internal/repository"
)

// Candidates are AVAILABLE auditors and OPEN stores, none bound to a live
// plan. A store whose only plan is stranded (see repository.Stranded) counts
// as unplanned.
type Candidates struct {
	Auditors []models.Auditor
	Stores   []models.Store
}

// Empty reports whether a batch has nothing to plan.
func (c Candidates) Empty() bool {
	return len(c.Auditors) == 0 || len(c.Stores) == 0
}

type Selector struct {
	logger logger.Logger
}

func New(log logger.Logger) *Selector {
	return &Selector{logger: logger.Component(log, "selector")}
}

func (s *Selector) Select(ctx context.Context, repos repository.Repositories) (Candidates, error) {
	auditors, err := repos.Auditors.ListAvailableUnplanned(ctx)
	if err != nil {
		return Candidates{}, fmt.Errorf("select auditors: %w", err)
	}
	stores, err := repos.Stores.ListOpenUnplanned(ctx)
	if err != nil {
		return Candidates{}, fmt.Errorf("select stores: %w", err)
	}
	stranded, err := strandedStores(ctx, repos)
	if err != nil {
		return Candidates{}, fmt.Errorf("select stranded stores: %w", err)
	}
	if len(stranded) > 0 {
		stores = append(stores, stranded...)
		slices.SortFunc(stores, func(a, b models.Store) int { return cmp.Compare(a.ID, b.ID) })
	}

	s.logger.Debug("candidates selected", map[string]interface{}{
		"auditors": len(auditors),
		"stores":   len(stores),
		"stranded": len(stranded),
	})
	return Candidates{Auditors: auditors, Stores: stores}, nil
}

// strandedStores returns the OPEN stores held only by a stranded plan.
func strandedStores(ctx context.Context, repos repository.Repositories) ([]models.Store, error) {
	plans, err := repos.Plans.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Store
	for _, p := range plans {
		stranded, err := repository.Stranded(ctx, repos, p)
		if err != nil {
			return nil, err
		}
		if !stranded {
			continue
		}
		store, err := repos.Stores.GetByID(ctx, p.StoreID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if store.IsOpen() {
			out = append(out, *store)
		}
	}
	return out, nil
}
