package providers

import (
	"context"
	"fmt"
	"time"

	"coxstatus/internal/cox"
	"coxstatus/internal/data"
	"coxstatus/internal/fetcher"
	"coxstatus/internal/usage"
)

// usageReportFetcher derives a parsed usage report from the raw daily feed.
// It costs no portal request of its own: the raw payload comes through the
// fetcher so concurrent consumers share one feed read.
type usageReportFetcher struct {
	now func() time.Time
}

func (u *usageReportFetcher) Key() data.DependencyKey { return data.DepUsageReport }

func (u *usageReportFetcher) Scope() data.FetchScope { return data.ScopeAccount }

func (u *usageReportFetcher) Fetch(ctx context.Context, account cox.Account, _ map[string]string, f *fetcher.Fetcher) (any, error) {
	val, err := f.Fetch(ctx, account, data.DepUsageRaw, nil)
	if err != nil {
		return nil, err
	}
	raw, ok := val.(*cox.RawPayload)
	if !ok {
		return nil, fmt.Errorf("fetch usage report: unexpected type %T for %s", val, data.DepUsageRaw)
	}

	now := time.Now
	if u.now != nil {
		now = u.now
	}
	return usage.ParseReport(raw, account.Username, now())
}

func init() {
	fetcher.RegisterDataFetcher(&usageReportFetcher{})
}
