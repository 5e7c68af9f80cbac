package engine

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"coxstatus/internal/checks"
	"coxstatus/internal/config"
	"coxstatus/internal/cox"
	"coxstatus/internal/data"
	"coxstatus/internal/output"
	"coxstatus/internal/usage"
)

type captureSink struct {
	writes []any
}

func (s *captureSink) Write(v any) error {
	s.writes = append(s.writes, v)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) results() []checks.Result {
	var out []checks.Result
	for _, w := range s.writes {
		if r, ok := w.(checks.Result); ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *captureSink) reports() []*usage.Report {
	var out []*usage.Report
	for _, w := range s.writes {
		if r, ok := w.(*usage.Report); ok {
			out = append(out, r)
		}
	}
	return out
}

func testUsageReport(account string) *usage.Report {
	cycleStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	return &usage.Report{
		Account:     account,
		PlanBytes:   1024 * usage.GiB,
		UsedBytes:   320 * usage.GiB,
		CycleStart:  cycleStart,
		CycleEnd:    cycleStart.AddDate(0, 1, 0),
		LastUpdated: time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC),
		Collected:   time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC),
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Account.Username = "tester@cox.net"
	cfg.Output.NoConsole = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return cfg
}

func planWithChecks(t *testing.T, selected []checks.Check) *CollectPlan {
	t.Helper()
	plan := NewCollectPlan()
	if err := plan.AddAccount(context.Background(), cox.Account{Username: "tester@cox.net"}, selected); err != nil {
		t.Fatalf("AddAccount failed: %v", err)
	}
	return plan
}

func managerWithCapture(t *testing.T) (*output.Manager, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	m := output.NewManager()
	if err := m.AddSink(sink); err != nil {
		t.Fatalf("AddSink failed: %v", err)
	}
	return m, sink
}

func streamOf(results ...AccountExecutionResult) <-chan AccountExecutionResult {
	ch := make(chan AccountExecutionResult, len(results))
	for _, r := range results {
		ch <- r
	}
	close(ch)
	return ch
}

func TestExitCodeForRun(t *testing.T) {
	tests := []struct {
		name     string
		fatal    bool
		partial  bool
		failures bool
		want     int
	}{
		{name: "clean", want: 0},
		{name: "failures", failures: true, want: 1},
		{name: "partial", partial: true, want: 2},
		{name: "partial wins over failures", partial: true, failures: true, want: 2},
		{name: "fatal wins", fatal: true, partial: true, failures: true, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeForRun(tt.fatal, tt.partial, tt.failures); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestEvaluateStreamingResults_PublishesUsageBeforeChecks(t *testing.T) {
	check := &fakeCheck{id: "engine-pass", deps: []data.DependencyKey{data.DepUsageReport}}
	plan := planWithChecks(t, []checks.Check{check})
	outMgr, sink := managerWithCapture(t)
	defer outMgr.Close()

	report := testUsageReport("tester@cox.net")
	resCh := streamOf(AccountExecutionResult{
		Account: "tester@cox.net",
		Data:    data.NewMapDataContext(map[data.DependencyKey]any{data.DepUsageReport: report}),
	})

	hasErrors, hasFailures := evaluateStreamingResults(context.Background(), testConfig(t), plan, resCh, outMgr)
	if hasErrors || hasFailures {
		t.Fatalf("expected clean run, got errors=%v failures=%v", hasErrors, hasFailures)
	}

	reports := sink.reports()
	if len(reports) != 1 || reports[0].Account != "tester@cox.net" {
		t.Fatalf("expected one usage report published, got %+v", reports)
	}

	results := sink.results()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Status != checks.StatusPass {
		t.Fatalf("expected PASS, got %s", results[0].Status)
	}
	// Backfilled identifiers.
	if results[0].Account != "tester@cox.net" || results[0].CheckID != "engine-pass" {
		t.Fatalf("expected backfilled identifiers, got %+v", results[0])
	}

	// The usage report must be written before any check result.
	reportIdx, resultIdx := -1, -1
	for i, w := range sink.writes {
		switch w.(type) {
		case *usage.Report:
			if reportIdx == -1 {
				reportIdx = i
			}
		case checks.Result:
			if resultIdx == -1 {
				resultIdx = i
			}
		}
	}
	if reportIdx == -1 || resultIdx == -1 || reportIdx > resultIdx {
		t.Fatalf("expected usage report before check results (report=%d result=%d)", reportIdx, resultIdx)
	}
}

func TestEvaluateStreamingResults_DependencyFailure(t *testing.T) {
	check := &fakeCheck{id: "engine-dep-fail", deps: []data.DependencyKey{data.DepUsageReport}}
	plan := planWithChecks(t, []checks.Check{check})
	outMgr, sink := managerWithCapture(t)
	defer outMgr.Close()

	feedErr := &cox.FeedError{Code: "DU100", Message: "Data not available"}
	resCh := streamOf(AccountExecutionResult{
		Account: "tester@cox.net",
		Data:    data.NewMapDataContext(map[data.DependencyKey]any{}),
		DepErrs: map[data.DependencyKey]error{data.DepUsageReport: feedErr},
	})

	hasErrors, _ := evaluateStreamingResults(context.Background(), testConfig(t), plan, resCh, outMgr)
	if !hasErrors {
		t.Fatal("expected errors for failed usage report dependency")
	}

	results := sink.results()
	if len(results) != 1 || results[0].Status != checks.StatusError {
		t.Fatalf("expected one ERROR result, got %+v", results)
	}
	if !strings.Contains(results[0].Message, "usage feed unavailable") {
		t.Fatalf("unexpected message: %q", results[0].Message)
	}
}

func TestEvaluateStreamingResults_SkippableSummaryOutage(t *testing.T) {
	check := &fakeCheck{id: "engine-summary", deps: []data.DependencyKey{data.DepUsageSummary}}
	plan := planWithChecks(t, []checks.Check{check})
	outMgr, sink := managerWithCapture(t)
	defer outMgr.Close()

	resCh := streamOf(AccountExecutionResult{
		Account: "tester@cox.net",
		Data: data.NewMapDataContext(map[data.DependencyKey]any{
			data.DepUsageReport: testUsageReport("tester@cox.net"),
		}),
		DepErrs: map[data.DependencyKey]error{
			data.DepUsageSummary: &cox.FeedError{Code: "DU100", Message: "Data not available"},
		},
	})

	hasErrors, hasFailures := evaluateStreamingResults(context.Background(), testConfig(t), plan, resCh, outMgr)
	if hasErrors || hasFailures {
		t.Fatalf("expected clean run for skippable outage, got errors=%v failures=%v", hasErrors, hasFailures)
	}

	results := sink.results()
	if len(results) != 1 || results[0].Status != checks.StatusSkipped {
		t.Fatalf("expected one SKIPPED result, got %+v", results)
	}
}

func TestEvaluateStreamingResults_UndeclaredDependencyAccess(t *testing.T) {
	check := &fakeCheck{
		id:   "engine-undeclared",
		deps: []data.DependencyKey{data.DepUsageReport},
		evaluate: func(_ context.Context, account cox.Account, dc data.DataContext) (checks.Result, error) {
			dc.Get(data.DepUsageRaw) // not declared
			return checks.Result{Status: checks.StatusPass}, nil
		},
	}
	plan := planWithChecks(t, []checks.Check{check})
	outMgr, sink := managerWithCapture(t)
	defer outMgr.Close()

	resCh := streamOf(AccountExecutionResult{
		Account: "tester@cox.net",
		Data: data.NewMapDataContext(map[data.DependencyKey]any{
			data.DepUsageReport: testUsageReport("tester@cox.net"),
			data.DepUsageRaw:    &cox.RawPayload{},
		}),
	})

	hasErrors, _ := evaluateStreamingResults(context.Background(), testConfig(t), plan, resCh, outMgr)
	if !hasErrors {
		t.Fatal("expected errors for undeclared dependency access")
	}

	results := sink.results()
	if len(results) != 1 || results[0].Status != checks.StatusError {
		t.Fatalf("expected one ERROR result, got %+v", results)
	}
	if !strings.Contains(results[0].Message, "undeclared dependencies") {
		t.Fatalf("unexpected message: %q", results[0].Message)
	}
}

func TestCheckResultIfDependenciesMissingOrFailed_Missing(t *testing.T) {
	dc := data.NewMapDataContext(map[data.DependencyKey]any{})
	status, msg, ok := checkResultIfDependenciesMissingOrFailed(dc, []data.DependencyKey{data.DepUsageReport}, nil, false)
	if !ok {
		t.Fatal("expected synthetic result for missing dependency")
	}
	if status != checks.StatusError {
		t.Fatalf("expected ERROR, got %s", status)
	}
	if !strings.Contains(msg, "Missing dependencies") {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestCheckResultIfDependenciesMissingOrFailed_AllPresent(t *testing.T) {
	dc := data.NewMapDataContext(map[data.DependencyKey]any{data.DepUsageReport: testUsageReport("t")})
	if _, _, ok := checkResultIfDependenciesMissingOrFailed(dc, []data.DependencyKey{data.DepUsageReport}, nil, false); ok {
		t.Fatal("expected no synthetic result when dependencies are present")
	}
}

var registerRunChecksOnce sync.Once

func registerRunChecks() {
	registerRunChecksOnce.Do(func() {
		checks.Register(&fakeCheck{id: "engine-run-pass", deps: []data.DependencyKey{data.DepUsageReport}})
		checks.Register(&fakeCheck{
			id:   "engine-run-fail",
			deps: []data.DependencyKey{data.DepUsageReport},
			evaluate: func(context.Context, cox.Account, data.DataContext) (checks.Result, error) {
				return checks.Result{Status: checks.StatusFail, Message: "over plan"}, nil
			},
		})
	})
}

func runWithSeam(t *testing.T, cfg *config.Config, seam func(ctx context.Context, cfg *config.Config, plan *CollectPlan) (<-chan AccountExecutionResult, <-chan error)) int {
	t.Helper()
	eng := NewEngine(nil)
	eng.schedulerExecute = seam
	return eng.Run(context.Background(), cfg)
}

func seamReturning(res AccountExecutionResult) func(ctx context.Context, cfg *config.Config, plan *CollectPlan) (<-chan AccountExecutionResult, <-chan error) {
	return func(context.Context, *config.Config, *CollectPlan) (<-chan AccountExecutionResult, <-chan error) {
		errCh := make(chan error)
		close(errCh)
		return streamOf(res), errCh
	}
}

func TestRun_CleanPass(t *testing.T) {
	registerRunChecks()
	cfg := testConfig(t)
	cfg.Checks.Selector = "engine-run-pass"

	res := AccountExecutionResult{
		Account: "tester@cox.net",
		Data: data.NewMapDataContext(map[data.DependencyKey]any{
			data.DepUsageReport: testUsageReport("tester@cox.net"),
		}),
	}
	if code := runWithSeam(t, cfg, seamReturning(res)); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestRun_CheckFailure(t *testing.T) {
	registerRunChecks()
	cfg := testConfig(t)
	cfg.Checks.Selector = "engine-run-fail"

	res := AccountExecutionResult{
		Account: "tester@cox.net",
		Data: data.NewMapDataContext(map[data.DependencyKey]any{
			data.DepUsageReport: testUsageReport("tester@cox.net"),
		}),
	}
	if code := runWithSeam(t, cfg, seamReturning(res)); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRun_DependencyErrorIsPartial(t *testing.T) {
	registerRunChecks()
	cfg := testConfig(t)
	cfg.Checks.Selector = "engine-run-pass"

	res := AccountExecutionResult{
		Account: "tester@cox.net",
		Data:    data.NewMapDataContext(map[data.DependencyKey]any{}),
		DepErrs: map[data.DependencyKey]error{
			data.DepUsageReport: &cox.LoginError{Reason: "SM_LOGGEDIN cookie not set"},
		},
	}
	if code := runWithSeam(t, cfg, seamReturning(res)); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestRun_SchedulerErrorIsFatal(t *testing.T) {
	registerRunChecks()
	cfg := testConfig(t)
	cfg.Checks.Selector = "engine-run-pass"

	seam := func(context.Context, *config.Config, *CollectPlan) (<-chan AccountExecutionResult, <-chan error) {
		resCh := make(chan AccountExecutionResult)
		close(resCh)
		errCh := make(chan error, 1)
		errCh <- context.Canceled
		close(errCh)
		return resCh, errCh
	}
	if code := runWithSeam(t, cfg, seam); code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
}

func TestRun_UnknownCheckSelectorIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Checks.Selector = "no-such-check"
	if code := runWithSeam(t, cfg, nil); code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
}

func TestRun_WritesNDJSONOutput(t *testing.T) {
	registerRunChecks()
	cfg := testConfig(t)
	cfg.Checks.Selector = "engine-run-pass"
	cfg.Output.Out = filepath.Join(t.TempDir(), "run.ndjson")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	res := AccountExecutionResult{
		Account: "tester@cox.net",
		Data: data.NewMapDataContext(map[data.DependencyKey]any{
			data.DepUsageReport: testUsageReport("tester@cox.net"),
		}),
	}
	if code := runWithSeam(t, cfg, seamReturning(res)); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

type configurableFakeCheck struct {
	fakeCheck
	configured map[string]string
}

func (c *configurableFakeCheck) Options() []checks.Option {
	return []checks.Option{{Name: "threshold", Description: "test option", Default: "1"}}
}

func (c *configurableFakeCheck) Configure(opts map[string]string) error {
	c.configured = opts
	return nil
}

var registerConfigurableOnce sync.Once

func TestApplyCheckOptionsIfAny(t *testing.T) {
	cc := &configurableFakeCheck{fakeCheck: fakeCheck{id: "engine-configurable"}}
	registerConfigurableOnce.Do(func() { checks.Register(cc) })

	cfg := testConfig(t)
	cfg.Checks.Set = []string{"engine-configurable.threshold=5"}
	if err := applyCheckOptionsIfAny(cfg); err != nil {
		t.Fatalf("applyCheckOptionsIfAny failed: %v", err)
	}
	if cc.configured["threshold"] != "5" {
		t.Fatalf("expected option applied, got %v", cc.configured)
	}

	cfg.Checks.Set = []string{"engine-configurable.unknown=1"}
	if err := applyCheckOptionsIfAny(cfg); err == nil {
		t.Fatal("expected error for unknown option")
	}

	cfg.Checks.Set = []string{"no-such-check.threshold=1"}
	if err := applyCheckOptionsIfAny(cfg); err == nil {
		t.Fatal("expected error for unknown check")
	}
}
