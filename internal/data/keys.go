package data

const (
	// DepUsageRaw represents the raw daily data-usage feed payload as returned
	// by the cox.com usage endpoint, before any parsing or cleanup.
	DepUsageRaw DependencyKey = "account.usage_raw"

	// DepUsageReport represents the parsed usage report derived from the raw
	// daily feed: plan size, bytes used, billing-cycle window and per-day
	// usage points.
	DepUsageReport DependencyKey = "account.usage_report"

	// DepUsageSummary represents the parsed per-cycle totals from the
	// monthly-granularity feed.
	//
	// The endpoint is the same as the daily feed with usagePeriodType=monthly;
	// it reports one aggregate entry per billing cycle.
	DepUsageSummary DependencyKey = "account.usage_summary"
)

// Priority returns the fetch priority for a dependency key (lower is higher priority).
func Priority(key DependencyKey) int {
	switch key {
	case DepUsageRaw:
		return 0 // Raw feed first; derived data reuses it via the fetcher cache.
	case DepUsageReport:
		return 1
	default:
		return 2
	}
}
