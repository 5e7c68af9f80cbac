package output

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"coxstatus/internal/checks"
	"coxstatus/internal/influx"
	"coxstatus/internal/usage"
)

// InfluxSink converts usage reports and check results into InfluxDB points
// and writes them in one batch on Close.
type InfluxSink struct {
	store   influx.Store
	timeout time.Duration
	mu      sync.Mutex
	points  []influx.Point
	// collected remembers each account's report collection time so check
	// points land on the same timestamp as the usage points of the run.
	collected map[string]time.Time
}

func NewInfluxSink(store influx.Store, timeout time.Duration) (*InfluxSink, error) {
	if store == nil {
		return nil, fmt.Errorf("influx sink store must not be nil")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InfluxSink{store: store, timeout: timeout, collected: make(map[string]time.Time)}, nil
}

func (s *InfluxSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t := v.(type) {
	case *usage.Report:
		s.collected[strings.ToLower(t.Account)] = t.Collected
		s.points = append(s.points, usagePoints(t)...)
	case checks.Result:
		ts, ok := s.collected[strings.ToLower(t.Account)]
		if !ok {
			// No report came through for the account (its fetch failed);
			// fall back to wall-clock time.
			ts = time.Now()
		}
		s.points = append(s.points, checkPoint(t, ts))
	}
	return nil
}

func (s *InfluxSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.points) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.store.WriteBatch(ctx, s.points); err != nil {
		_ = s.store.Close()
		return fmt.Errorf("write usage metrics: %w", err)
	}
	return s.store.Close()
}

// usagePoints renders one report as the measurement set consumed by the
// usage dashboards: current/remaining gauges, cycle-day counters, one
// date-tagged point per day, and the feed's last-updated stamp.
func usagePoints(r *usage.Report) []influx.Point {
	if r == nil {
		return nil
	}
	tags := map[string]string{"account": r.Account}
	ts := r.Collected

	points := []influx.Point{
		{
			Measurement: "current_monthly_usage",
			Tags:        tags,
			Fields: map[string]interface{}{
				"current":   r.UsedGB(),
				"remaining": r.RemainingGB(),
			},
			Timestamp: ts,
		},
		{
			Measurement: "current_monthly_total",
			Tags:        tags,
			Fields:      map[string]interface{}{"value": r.PlanGB()},
			Timestamp:   ts,
		},
		{
			Measurement: "cycle_days",
			Tags:        tags,
			Fields: map[string]interface{}{
				"remaining": r.CycleDaysLeft(),
				"current":   r.CycleDaysIn(),
			},
			Timestamp: ts,
		},
		{
			Measurement: "last_update",
			Tags:        tags,
			Fields:      map[string]interface{}{"value": r.LastUpdated.Format("01/02/2006")},
			Timestamp:   ts,
		},
	}

	for _, day := range r.Daily {
		dayTags := map[string]string{
			"account": r.Account,
			"date":    day.Date.Format("2006-01-02"),
		}
		points = append(points, influx.Point{
			Measurement: "daily_usage",
			Tags:        dayTags,
			Fields:      map[string]interface{}{"value": day.Value},
			Timestamp:   day.Date,
		})
	}

	return points
}

func checkPoint(r checks.Result, ts time.Time) influx.Point {
	passed := 0
	if r.Status == checks.StatusPass {
		passed = 1
	}
	return influx.Point{
		Measurement: "usage_check",
		Tags: map[string]string{
			"account": r.Account,
			"check":   r.CheckID,
		},
		Fields: map[string]interface{}{
			"passed": passed,
			"status": string(r.Status),
		},
		Timestamp: ts,
	}
}
