// Package usage turns the raw cox.com data-usage feed into a typed report of
// the current billing cycle.
package usage

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/docker/go-units"

	"coxstatus/internal/cox"
)

// feedDateLayout is the MM/DD/YY format the feed uses for the service period
// and last-updated fields.
const feedDateLayout = "01/02/06"

// GiB is the byte size the feed's "GB" labels actually mean (binary multiple).
const GiB = int64(1) << 30

// DayUsage is one day's measurement within the billing cycle.
type DayUsage struct {
	Date time.Time `json:"date"`
	// Value is the feed's raw daily measurement, forwarded unconverted.
	Value int64 `json:"value"`
}

// Report is the parsed view of one account's current billing cycle.
type Report struct {
	Account     string     `json:"account"`
	PlanBytes   int64      `json:"plan_bytes"`
	UsedBytes   int64      `json:"used_bytes"`
	CycleStart  time.Time  `json:"cycle_start"`
	CycleEnd    time.Time  `json:"cycle_end"`
	Daily       []DayUsage `json:"daily,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
	// Collected is the time the feed was read; cycle-position math is
	// anchored to it so a report stays self-consistent.
	Collected time.Time `json:"collected"`
}

func (r *Report) RemainingBytes() int64 {
	if r == nil {
		return 0
	}
	return r.PlanBytes - r.UsedBytes
}

func (r *Report) UsedGB() float64      { return float64(r.UsedBytes) / float64(GiB) }
func (r *Report) PlanGB() float64      { return float64(r.PlanBytes) / float64(GiB) }
func (r *Report) RemainingGB() float64 { return float64(r.RemainingBytes()) / float64(GiB) }

// CycleDaysIn returns whole days elapsed since the cycle started, at
// collection time.
func (r *Report) CycleDaysIn() int {
	if r == nil {
		return 0
	}
	return wholeDays(r.Collected.Sub(r.CycleStart))
}

// CycleDaysLeft returns whole days remaining in the cycle, at collection time.
func (r *Report) CycleDaysLeft() int {
	if r == nil {
		return 0
	}
	return wholeDays(r.CycleEnd.Sub(r.Collected))
}

// CycleDays returns the total length of the billing cycle in whole days.
func (r *Report) CycleDays() int {
	if r == nil {
		return 0
	}
	return wholeDays(r.CycleEnd.Sub(r.CycleStart))
}

// ProjectedBytes linearly extrapolates the cycle-end usage from the pace so
// far. Before a full day has elapsed it returns the current usage unchanged.
func (r *Report) ProjectedBytes() int64 {
	if r == nil {
		return 0
	}
	daysIn := r.CycleDaysIn()
	if daysIn <= 0 {
		return r.UsedBytes
	}
	perDay := float64(r.UsedBytes) / float64(daysIn)
	return int64(perDay * float64(r.CycleDays()))
}

// wholeDays floors, so a span of -12h counts as -1 day. Cycle-position math
// relies on that for collections after the cycle has ended.
func wholeDays(d time.Duration) int {
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// ParseReport converts a raw feed payload into a Report.
//
// A feed-level error (errorDaily) is returned as *cox.FeedError so callers
// can distinguish "data temporarily unavailable" from malformed payloads.
// Daily entries dated after now are dropped; the feed pre-allocates the whole
// cycle and pads future days with zeroes.
func ParseReport(raw *cox.RawPayload, account string, now time.Time) (*Report, error) {
	if raw == nil {
		return nil, fmt.Errorf("parse usage report: nil payload")
	}
	if len(raw.ModemDetails) == 0 {
		return nil, fmt.Errorf("parse usage report: no modem details")
	}
	md := raw.ModemDetails[0]

	if md.ErrorDaily != nil {
		return nil, md.ErrorDaily
	}
	if md.DataUsed == nil {
		return nil, fmt.Errorf("parse usage report: missing dataUsed")
	}

	usedBytes, err := parseSize(md.DataUsed.TotalDataUsed)
	if err != nil {
		return nil, fmt.Errorf("parse total data used %q: %w", md.DataUsed.TotalDataUsed, err)
	}
	planBytes, err := parseSize(md.DataPlan)
	if err != nil {
		return nil, fmt.Errorf("parse data plan %q: %w", md.DataPlan, err)
	}

	cycleStart, cycleEnd, err := parseServicePeriod(md.ServicePeriod)
	if err != nil {
		return nil, err
	}

	lastUpdated, err := time.Parse(feedDateLayout, strings.TrimSpace(md.LastUpdatedDate))
	if err != nil {
		return nil, fmt.Errorf("parse last updated date %q: %w", md.LastUpdatedDate, err)
	}

	report := &Report{
		Account:     account,
		PlanBytes:   planBytes,
		UsedBytes:   usedBytes,
		CycleStart:  cycleStart,
		CycleEnd:    cycleEnd,
		LastUpdated: lastUpdated,
		Collected:   now,
	}

	for i, entry := range md.DataUsed.Daily {
		date := cycleStart.AddDate(0, 0, i)
		if date.After(now) {
			break
		}
		value, err := entry.Data.Int64()
		if err != nil {
			return nil, fmt.Errorf("parse daily entry %d %q: %w", i, entry.Data, err)
		}
		report.Daily = append(report.Daily, DayUsage{Date: date, Value: value})
	}

	return report, nil
}

func parseServicePeriod(period string) (start, end time.Time, err error) {
	from, to, ok := strings.Cut(period, "-")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("parse service period %q: expected MM/DD/YY-MM/DD/YY", period)
	}
	start, err = time.Parse(feedDateLayout, strings.TrimSpace(from))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse service period start %q: %w", from, err)
	}
	end, err = time.Parse(feedDateLayout, strings.TrimSpace(to))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse service period end %q: %w", to, err)
	}
	return start, end, nil
}

// parseSize parses the feed's human-formatted size strings ("1024 GB",
// "10.5&#160;GB"). Sizes use binary multiples: the feed's 1 GB is 2^30 bytes.
func parseSize(s string) (int64, error) {
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ") // &#160; unescapes to NBSP
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	return units.RAMInBytes(s)
}
