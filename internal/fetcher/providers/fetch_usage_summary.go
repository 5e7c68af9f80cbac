package providers

import (
	"context"

	"coxstatus/internal/cox"
	"coxstatus/internal/data"
	"coxstatus/internal/fetcher"
	"coxstatus/internal/usage"
)

// usageSummaryFetcher retrieves the monthly aggregation of the usage feed.
// Unlike the daily feed it carries one entry per billing cycle instead of one
// per day.
type usageSummaryFetcher struct{}

func (u *usageSummaryFetcher) Key() data.DependencyKey { return data.DepUsageSummary }

func (u *usageSummaryFetcher) Scope() data.FetchScope { return data.ScopeAccount }

func (u *usageSummaryFetcher) Fetch(ctx context.Context, _ cox.Account, _ map[string]string, f *fetcher.Fetcher) (any, error) {
	if err := f.Budget().Acquire(ctx, 1); err != nil {
		return nil, err
	}

	payload, resp, err := f.Client().FetchUsage(ctx, cox.PeriodMonthly)
	if resp != nil {
		f.Budget().UpdateFromResponse(resp)
	}
	if err != nil {
		return nil, err
	}
	return usage.ParseCycleSummary(payload)
}

func init() {
	fetcher.RegisterDataFetcher(&usageSummaryFetcher{})
}
