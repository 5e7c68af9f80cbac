package checks

import (
	"context"

	"coxstatus/internal/cox"
	"coxstatus/internal/data"
)

type Check interface {
	ID() string
	Title() string
	Description() string

	// Dependencies declares required account data for this check.
	Dependencies(ctx context.Context, account cox.Account) ([]data.DependencyKey, error)

	// Evaluate runs check logic using only DataContext.
	// Checks MUST NOT call the Cox portal.
	Evaluate(ctx context.Context, account cox.Account, data data.DataContext) (Result, error)
}

type Option struct {
	Name        string
	Description string
	Default     string
}

type ConfigurableCheck interface {
	Check
	Options() []Option
	Configure(opts map[string]string) error
}
