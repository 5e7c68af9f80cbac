package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"coxstatus/internal/checks"
	"coxstatus/internal/cox"
	"coxstatus/internal/data"
)

type CollectPlan struct {
	AccountPlans map[string]*AccountPlan
}

type AccountPlan struct {
	Account      cox.Account
	Dependencies map[data.DependencyKey]data.DependencyRequest
	Checks       []checks.Check
}

func NewCollectPlan() *CollectPlan {
	return &CollectPlan{
		AccountPlans: make(map[string]*AccountPlan),
	}
}

func (p *CollectPlan) AddAccount(ctx context.Context, account cox.Account, selectedChecks []checks.Check) error {
	if ctx == nil {
		return fmt.Errorf("context is nil")
	}
	if p == nil {
		return fmt.Errorf("collect plan is nil")
	}
	if p.AccountPlans == nil {
		return fmt.Errorf("collect plan is not initialized (AccountPlans is nil); use NewCollectPlan")
	}
	if account.Username == "" {
		return fmt.Errorf("account username is empty")
	}

	ap := &AccountPlan{
		Account:      account,
		Dependencies: make(map[data.DependencyKey]data.DependencyRequest),
		Checks:       selectedChecks,
	}

	// The parsed usage report is always fetched: usage export to the sinks
	// does not depend on which checks are selected.
	ap.Dependencies[data.DepUsageReport] = data.DependencyRequest{Key: data.DepUsageReport}

	for _, c := range selectedChecks {
		deps, err := c.Dependencies(ctx, account)
		if err != nil {
			return fmt.Errorf("failed to get dependencies for check %s: %w", c.ID(), err)
		}

		for _, d := range deps {
			// Simple deduplication by key.
			if _, exists := ap.Dependencies[d]; !exists {
				ap.Dependencies[d] = data.DependencyRequest{Key: d}
			}
		}
	}

	p.AccountPlans[strings.ToLower(account.Username)] = ap
	return nil
}

// SortedDependencies returns the list of dependency keys sorted by priority (P0 first).
func (ap *AccountPlan) SortedDependencies() []data.DependencyKey {
	keys := make([]data.DependencyKey, 0, len(ap.Dependencies))
	for k := range ap.Dependencies {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		p1 := data.Priority(keys[i])
		p2 := data.Priority(keys[j])
		if p1 != p2 {
			return p1 < p2
		}
		return keys[i] < keys[j] // Stable sort for same priority
	})

	return keys
}
