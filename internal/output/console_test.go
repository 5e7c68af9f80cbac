package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"coxstatus/internal/checks"
	"coxstatus/internal/usage"
)

func sampleReport() *usage.Report {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	return &usage.Report{
		Account:     "tester",
		PlanBytes:   1024 * usage.GiB,
		UsedBytes:   320 * usage.GiB,
		CycleStart:  start,
		CycleEnd:    start.AddDate(0, 1, 0),
		Daily:       []usage.DayUsage{{Date: start, Value: 10}},
		LastUpdated: start.AddDate(0, 0, 2),
		Collected:   start.AddDate(0, 0, 3),
	}
}

func sampleResult(status checks.Status) checks.Result {
	return checks.Result{
		CheckID: "plan-usage-threshold",
		Account: "tester",
		Status:  status,
		Message: "31.2% of plan used",
	}
}

func TestConsoleSink_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", nil)

	if err := sink.Write(sampleReport()); err != nil {
		t.Fatalf("Write report failed: %v", err)
	}
	if err := sink.Write(sampleResult(checks.StatusPass)); err != nil {
		t.Fatalf("Write result failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"tester: monthly data used 320 GB of 1024 GB (704 GB remaining)",
		"tester: 3 days into the cycle, 28 days remaining",
		"tester: usage data last updated 01/07/2026",
		"[PASS] tester: plan-usage-threshold - 31.2% of plan used",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestConsoleSink_TextFormat_IgnoresLifecycleEvents(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", nil)

	if err := sink.Write(Event{Type: "run.started", Accounts: 1}); err != nil {
		t.Fatalf("Write event failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output for lifecycle event, got %q", buf.String())
	}
}

func TestConsoleSink_StatusFilter(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", []string{"fail"})

	if err := sink.Write(sampleResult(checks.StatusPass)); err != nil {
		t.Fatalf("Write pass failed: %v", err)
	}
	if err := sink.Write(sampleResult(checks.StatusFail)); err != nil {
		t.Fatalf("Write fail failed: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "[PASS]") {
		t.Fatalf("expected PASS result filtered out, got:\n%s", out)
	}
	if !strings.Contains(out, "[FAIL]") {
		t.Fatalf("expected FAIL result in output, got:\n%s", out)
	}
}

func TestConsoleSink_JSONFormat_AggregatesOnClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "json", nil)

	if err := sink.Write(sampleResult(checks.StatusPass)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := sink.Write(sampleReport()); err != nil {
		t.Fatalf("Write report failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output before Close, got %q", buf.String())
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var results []checks.Result
	if err := json.Unmarshal(buf.Bytes(), &results); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].CheckID != "plan-usage-threshold" {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestConsoleSink_NDJSONFormat_StreamsEvents(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "ndjson", nil)

	if err := sink.Write(Event{Type: "run.started", Accounts: 1, Checks: 4}); err != nil {
		t.Fatalf("Write event failed: %v", err)
	}
	if err := sink.Write(sampleReport()); err != nil {
		t.Fatalf("Write report failed: %v", err)
	}
	if err := sink.Write(sampleResult(checks.StatusPass)); err != nil {
		t.Fatalf("Write result failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 NDJSON lines, got %d:\n%s", len(lines), buf.String())
	}

	var types []string
	for _, line := range lines {
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("unmarshal line %q: %v", line, err)
		}
		types = append(types, e.Type)
	}
	want := []string{"run.started", "usage.report", "check.result"}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected event types %v, got %v", want, types)
		}
	}
}

func TestConsoleSink_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "xml", nil)
	if err := sink.Write(sampleResult(checks.StatusPass)); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
