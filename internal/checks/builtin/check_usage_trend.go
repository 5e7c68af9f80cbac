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

type UsageTrendCheck struct {
	maxIncreasePercent int
}

func (c *UsageTrendCheck) ID() string {
	return "usage-trend"
}

func (c *UsageTrendCheck) Title() string {
	return "Usage Trend Versus Previous Cycle"
}

func (c *UsageTrendCheck) Description() string {
	return "Verifies that the current cycle's projected usage does not exceed the previous cycle's " +
		"total by more than an allowed margin.\n\n" +
		"Per-cycle totals come from the monthly summary feed; the margin is configurable via the " +
		"max_increase_percent option. The check is skipped when no completed cycle is available to " +
		"compare against."
}

func (c *UsageTrendCheck) Options() []checks.Option {
	return []checks.Option{
		{
			Name:        "max_increase_percent",
			Description: "Percentage above the previous cycle's total the projected usage may reach before the check fails. Must be >= 0.",
			Default:     "25",
		},
	}
}

func (c *UsageTrendCheck) Configure(opts map[string]string) error {
	c.maxIncreasePercent = 25

	if v, ok := opts["max_increase_percent"]; ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid value for max_increase_percent: %s", v)
		}
		c.maxIncreasePercent = n
	}

	if c.maxIncreasePercent < 0 {
		return fmt.Errorf("max_increase_percent must be >= 0")
	}
	return nil
}

func (c *UsageTrendCheck) Dependencies(ctx context.Context, account cox.Account) ([]data.DependencyKey, error) {
	return []data.DependencyKey{data.DepUsageReport, data.DepUsageSummary}, nil
}

func (c *UsageTrendCheck) Evaluate(ctx context.Context, account cox.Account, dc data.DataContext) (checks.Result, error) {
	report, errMsg := usageReport(dc)
	if errMsg != "" {
		return checks.ErrorResult(account, c.ID(), errMsg), nil
	}
	summary, errMsg := cycleSummary(dc)
	if errMsg != "" {
		return checks.ErrorResult(account, c.ID(), errMsg), nil
	}

	previous, ok := summary.PreviousCycleTotal()
	if !ok {
		return checks.SkippedResult(account, c.ID(), "No completed cycle to compare against"), nil
	}
	if previous <= 0 {
		return checks.SkippedResult(account, c.ID(), "Previous cycle reported no usage"), nil
	}
	current, _ := summary.CurrentCycleTotal()
	daysIn := report.CycleDaysIn()
	if daysIn <= 0 {
		return checks.SkippedResult(account, c.ID(), "Cycle just started, no pace to project yet"), nil
	}

	projected := current * int64(report.CycleDays()) / int64(daysIn)
	limit := previous + previous*int64(c.maxIncreasePercent)/100

	metadata := map[string]any{
		"previous_cycle":       previous,
		"current_cycle":        current,
		"projected":            projected,
		"max_increase_percent": c.maxIncreasePercent,
	}

	if projected > limit {
		return checks.FailResultWithMetadata(account, c.ID(),
			fmt.Sprintf("On pace for %d this cycle against %d last cycle (allowed +%d%%)",
				projected, previous, c.maxIncreasePercent), metadata), nil
	}

	return checks.PassResultWithMetadata(account, c.ID(),
		fmt.Sprintf("On pace for %d this cycle against %d last cycle", projected, previous), metadata), nil
}

// cycleSummary pulls the parsed monthly summary out of the data context. The
// returned message is empty on success.
func cycleSummary(dc data.DataContext) (*usage.CycleSummary, string) {
	val, ok := dc.Get(data.DepUsageSummary)
	if !ok {
		return nil, "Dependency missing"
	}
	summary, ok := val.(*usage.CycleSummary)
	if !ok || summary == nil {
		return nil, "Unexpected type for cycle summary"
	}
	return summary, ""
}

func init() {
	c := &UsageTrendCheck{}
	_ = c.Configure(map[string]string{})
	checks.Register(c)
}
