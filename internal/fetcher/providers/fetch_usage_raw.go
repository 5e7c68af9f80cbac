// Package providers registers the DataFetcher implementations behind each
// dependency key. Import it for side effects.
package providers

import (
	"context"

	"coxstatus/internal/cox"
	"coxstatus/internal/data"
	"coxstatus/internal/fetcher"
)

type usageRawFetcher struct{}

func (u *usageRawFetcher) Key() data.DependencyKey { return data.DepUsageRaw }

func (u *usageRawFetcher) Scope() data.FetchScope { return data.ScopeAccount }

func (u *usageRawFetcher) Fetch(ctx context.Context, _ cox.Account, _ map[string]string, f *fetcher.Fetcher) (any, error) {
	if err := f.Budget().Acquire(ctx, 1); err != nil {
		return nil, err
	}

	payload, resp, err := f.Client().FetchUsage(ctx, cox.PeriodDaily)
	if resp != nil {
		f.Budget().UpdateFromResponse(resp)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func init() {
	fetcher.RegisterDataFetcher(&usageRawFetcher{})
}
