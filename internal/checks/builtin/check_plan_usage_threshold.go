package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"coxstatus/internal/checks"
	"coxstatus/internal/cox"
	"coxstatus/internal/data"
)

type PlanUsageThresholdCheck struct {
	warnPercent int
}

func (c *PlanUsageThresholdCheck) ID() string {
	return "plan-usage-threshold"
}

func (c *PlanUsageThresholdCheck) Title() string {
	return "Plan Usage Below Threshold"
}

func (c *PlanUsageThresholdCheck) Description() string {
	return "Verifies that the data used so far this cycle stays below a percentage of the monthly plan.\n\n" +
		"The threshold is configurable via the warn_percent option."
}

func (c *PlanUsageThresholdCheck) Options() []checks.Option {
	return []checks.Option{
		{
			Name:        "warn_percent",
			Description: "Usage percentage of the plan at which the check fails. Must be >= 1.",
			Default:     "90",
		},
	}
}

func (c *PlanUsageThresholdCheck) Configure(opts map[string]string) error {
	c.warnPercent = 90

	if v, ok := opts["warn_percent"]; ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid value for warn_percent: %s", v)
		}
		c.warnPercent = n
	}

	if c.warnPercent < 1 {
		return fmt.Errorf("warn_percent must be >= 1")
	}
	return nil
}

func (c *PlanUsageThresholdCheck) Dependencies(ctx context.Context, account cox.Account) ([]data.DependencyKey, error) {
	return []data.DependencyKey{data.DepUsageReport}, nil
}

func (c *PlanUsageThresholdCheck) Evaluate(ctx context.Context, account cox.Account, dc data.DataContext) (checks.Result, error) {
	report, errMsg := usageReport(dc)
	if errMsg != "" {
		return checks.ErrorResult(account, c.ID(), errMsg), nil
	}

	if report.PlanBytes <= 0 {
		return checks.SkippedResult(account, c.ID(), "No data plan defined"), nil
	}

	usedPercent := float64(report.UsedBytes) * 100 / float64(report.PlanBytes)
	metadata := map[string]any{
		"used_gb":      report.UsedGB(),
		"plan_gb":      report.PlanGB(),
		"used_percent": usedPercent,
		"warn_percent": c.warnPercent,
	}

	if usedPercent >= float64(c.warnPercent) {
		return checks.FailResultWithMetadata(account, c.ID(),
			fmt.Sprintf("%.1f%% of plan used (%.0f of %.0f GB, threshold %d%%)",
				usedPercent, report.UsedGB(), report.PlanGB(), c.warnPercent), metadata), nil
	}

	return checks.PassResultWithMetadata(account, c.ID(),
		fmt.Sprintf("%.1f%% of plan used (%.0f of %.0f GB)",
			usedPercent, report.UsedGB(), report.PlanGB()), metadata), nil
}

func init() {
	c := &PlanUsageThresholdCheck{}
	_ = c.Configure(map[string]string{})
	checks.Register(c)
}
