package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"coxstatus/internal/checks"
	"coxstatus/internal/cox"
	"coxstatus/internal/data"
	"coxstatus/internal/usage"
)

type CyclePaceCheck struct {
	gracePercent int
}

func (c *CyclePaceCheck) ID() string {
	return "cycle-pace"
}

func (c *CyclePaceCheck) Title() string {
	return "Cycle Pace Within Plan"
}

func (c *CyclePaceCheck) Description() string {
	return "Verifies that the current usage pace, extrapolated over the whole billing cycle, stays " +
		"within the monthly plan.\n\n" +
		"A grace margin above the plan can be allowed via the grace_percent option."
}

func (c *CyclePaceCheck) Options() []checks.Option {
	return []checks.Option{
		{
			Name:        "grace_percent",
			Description: "Percentage above the plan the projected usage may reach before the check fails. Must be >= 0.",
			Default:     "0",
		},
	}
}

func (c *CyclePaceCheck) Configure(opts map[string]string) error {
	c.gracePercent = 0

	if v, ok := opts["grace_percent"]; ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid value for grace_percent: %s", v)
		}
		c.gracePercent = n
	}

	if c.gracePercent < 0 {
		return fmt.Errorf("grace_percent must be >= 0")
	}
	return nil
}

func (c *CyclePaceCheck) Dependencies(ctx context.Context, account cox.Account) ([]data.DependencyKey, error) {
	return []data.DependencyKey{data.DepUsageReport}, nil
}

func (c *CyclePaceCheck) Evaluate(ctx context.Context, account cox.Account, dc data.DataContext) (checks.Result, error) {
	report, errMsg := usageReport(dc)
	if errMsg != "" {
		return checks.ErrorResult(account, c.ID(), errMsg), nil
	}

	if report.PlanBytes <= 0 {
		return checks.SkippedResult(account, c.ID(), "No data plan defined"), nil
	}
	if report.CycleDaysIn() <= 0 {
		return checks.SkippedResult(account, c.ID(), "Cycle just started, no pace to project yet"), nil
	}

	projected := report.ProjectedBytes()
	limit := report.PlanBytes + report.PlanBytes*int64(c.gracePercent)/100
	projectedGB := float64(projected) / float64(usage.GiB)

	metadata := map[string]any{
		"projected_gb":  projectedGB,
		"plan_gb":       report.PlanGB(),
		"days_in":       report.CycleDaysIn(),
		"grace_percent": c.gracePercent,
	}

	if projected > limit {
		return checks.FailResultWithMetadata(account, c.ID(),
			fmt.Sprintf("On pace for %.0f GB against a %.0f GB plan", projectedGB, report.PlanGB()), metadata), nil
	}

	return checks.PassResultWithMetadata(account, c.ID(),
		fmt.Sprintf("On pace for %.0f GB of %.0f GB plan", projectedGB, report.PlanGB()), metadata), nil
}

func init() {
	c := &CyclePaceCheck{}
	_ = c.Configure(map[string]string{})
	checks.Register(c)
}
