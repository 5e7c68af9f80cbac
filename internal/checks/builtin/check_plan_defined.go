// Package builtin holds the built-in checks evaluated against a parsed usage
// report. Import it for side effects.
package builtin

import (
	"context"
	"fmt"

	"coxstatus/internal/checks"
	"coxstatus/internal/cox"
	"coxstatus/internal/data"
	"coxstatus/internal/usage"
)

type PlanDefinedCheck struct{}

func (c *PlanDefinedCheck) ID() string {
	return "plan-defined"
}

func (c *PlanDefinedCheck) Title() string {
	return "Data Plan Defined"
}

func (c *PlanDefinedCheck) Description() string {
	return "Verifies that the usage feed reports a non-zero monthly data plan for the account."
}

func (c *PlanDefinedCheck) Dependencies(ctx context.Context, account cox.Account) ([]data.DependencyKey, error) {
	return []data.DependencyKey{data.DepUsageReport}, nil
}

func (c *PlanDefinedCheck) Evaluate(ctx context.Context, account cox.Account, dc data.DataContext) (checks.Result, error) {
	report, errMsg := usageReport(dc)
	if errMsg != "" {
		return checks.ErrorResult(account, c.ID(), errMsg), nil
	}

	if report.PlanBytes <= 0 {
		return checks.FailResult(account, c.ID(), "Usage feed reports no data plan"), nil
	}

	return checks.PassResultWithMessage(account, c.ID(), fmt.Sprintf("Plan is %.0f GB", report.PlanGB())), nil
}

// usageReport pulls the parsed report out of the data context. The returned
// message is empty on success.
func usageReport(dc data.DataContext) (*usage.Report, string) {
	val, ok := dc.Get(data.DepUsageReport)
	if !ok {
		return nil, "Dependency missing"
	}
	report, ok := val.(*usage.Report)
	if !ok || report == nil {
		return nil, "Unexpected type for usage report"
	}
	return report, ""
}

func init() {
	checks.Register(&PlanDefinedCheck{})
}
