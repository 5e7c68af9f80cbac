package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"coxstatus/internal/checks"
	"coxstatus/internal/cox"
	"coxstatus/internal/data"
)

type UsageDataCurrentCheck struct {
	maxAgeDays int
}

func (c *UsageDataCurrentCheck) ID() string {
	return "usage-data-current"
}

func (c *UsageDataCurrentCheck) Title() string {
	return "Usage Data Is Current"
}

func (c *UsageDataCurrentCheck) Description() string {
	return "Verifies that the usage feed's last-updated date is recent.\n\n" +
		"The portal keeps serving stale snapshots when its metering backend falls behind; a stale " +
		"last-updated date means every other number in the feed is suspect. The allowed age is " +
		"configurable via the max_age_days option."
}

func (c *UsageDataCurrentCheck) Options() []checks.Option {
	return []checks.Option{
		{
			Name:        "max_age_days",
			Description: "Maximum allowed age of the feed's last-updated date, in days. Must be >= 1.",
			Default:     "2",
		},
	}
}

func (c *UsageDataCurrentCheck) Configure(opts map[string]string) error {
	c.maxAgeDays = 2

	if v, ok := opts["max_age_days"]; ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid value for max_age_days: %s", v)
		}
		c.maxAgeDays = n
	}

	if c.maxAgeDays < 1 {
		return fmt.Errorf("max_age_days must be >= 1")
	}
	return nil
}

func (c *UsageDataCurrentCheck) Dependencies(ctx context.Context, account cox.Account) ([]data.DependencyKey, error) {
	return []data.DependencyKey{data.DepUsageReport}, nil
}

func (c *UsageDataCurrentCheck) Evaluate(ctx context.Context, account cox.Account, dc data.DataContext) (checks.Result, error) {
	report, errMsg := usageReport(dc)
	if errMsg != "" {
		return checks.ErrorResult(account, c.ID(), errMsg), nil
	}

	if report.LastUpdated.IsZero() {
		return checks.ErrorResult(account, c.ID(), "Usage feed carries no last-updated date"), nil
	}

	age := report.Collected.Sub(report.LastUpdated)
	ageDays := int(age.Hours() / 24)
	if age > time.Duration(c.maxAgeDays)*24*time.Hour {
		return checks.FailResultWithMetadata(account, c.ID(),
			fmt.Sprintf("Usage data last updated %s (%d days ago, max %d)",
				report.LastUpdated.Format("2006-01-02"), ageDays, c.maxAgeDays),
			map[string]any{
				"last_updated": report.LastUpdated.Format("2006-01-02"),
				"age_days":     ageDays,
				"max_age_days": c.maxAgeDays,
			}), nil
	}

	return checks.PassResultWithMessage(account, c.ID(),
		fmt.Sprintf("Usage data last updated %s", report.LastUpdated.Format("2006-01-02"))), nil
}

func init() {
	c := &UsageDataCurrentCheck{}
	_ = c.Configure(map[string]string{})
	checks.Register(c)
}
