package usage

import (
	"fmt"

	"coxstatus/internal/cox"
)

// CycleSummary is the parsed view of the monthly-granularity feed: one total
// per billing cycle, oldest first. The last entry is the cycle in progress.
type CycleSummary struct {
	// Totals are the feed's raw per-cycle measurements, forwarded unconverted
	// like DayUsage.Value.
	Totals []int64 `json:"totals"`
}

// CurrentCycleTotal returns the in-progress cycle's running total.
func (s *CycleSummary) CurrentCycleTotal() (int64, bool) {
	if s == nil || len(s.Totals) == 0 {
		return 0, false
	}
	return s.Totals[len(s.Totals)-1], true
}

// PreviousCycleTotal returns the most recent completed cycle's total.
func (s *CycleSummary) PreviousCycleTotal() (int64, bool) {
	if s == nil || len(s.Totals) < 2 {
		return 0, false
	}
	return s.Totals[len(s.Totals)-2], true
}

// ParseCycleSummary converts a monthly-period feed payload into a
// CycleSummary. Like ParseReport, a feed-level error comes back as
// *cox.FeedError so callers can tell an outage from a malformed payload.
func ParseCycleSummary(raw *cox.RawPayload) (*CycleSummary, error) {
	if raw == nil {
		return nil, fmt.Errorf("parse cycle summary: nil payload")
	}
	if len(raw.ModemDetails) == 0 {
		return nil, fmt.Errorf("parse cycle summary: no modem details")
	}
	md := raw.ModemDetails[0]

	if md.ErrorDaily != nil {
		return nil, md.ErrorDaily
	}
	if md.DataUsed == nil {
		return nil, fmt.Errorf("parse cycle summary: missing dataUsed")
	}

	summary := &CycleSummary{}
	for i, entry := range md.DataUsed.Daily {
		value, err := entry.Data.Int64()
		if err != nil {
			return nil, fmt.Errorf("parse cycle entry %d %q: %w", i, entry.Data, err)
		}
		summary.Totals = append(summary.Totals, value)
	}
	return summary, nil
}
