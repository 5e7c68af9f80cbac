package fetcher_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"coxstatus/internal/cox"
	"coxstatus/internal/data"
	"coxstatus/internal/fetcher"
	_ "coxstatus/internal/fetcher/providers"
	"coxstatus/internal/usage"
)

const testFeedJSON = `{
  "modemDetails": [
    {
      "dataUsed": {"totalDataUsed": "320 GB", "daily": [{"data": 10}, {"data": 25}]},
      "dataPlan": "1024 GB",
      "servicePeriod": "01/05/26-02/04/26",
      "lastUpdatedDate": "01/07/26"
    }
  ]
}`

type testCycleFetcher struct {
	key    data.DependencyKey
	target data.DependencyKey
}

func (t *testCycleFetcher) Key() data.DependencyKey { return t.key }

func (t *testCycleFetcher) Scope() data.FetchScope { return data.ScopeAccount }

func (t *testCycleFetcher) Fetch(ctx context.Context, account cox.Account, _ map[string]string, f *fetcher.Fetcher) (any, error) {
	return f.Fetch(ctx, account, t.target, nil)
}

type testValueFetcher struct {
	key   data.DependencyKey
	calls *int32
}

func (t *testValueFetcher) Key() data.DependencyKey { return t.key }

func (t *testValueFetcher) Scope() data.FetchScope { return data.ScopeAccount }

func (t *testValueFetcher) Fetch(_ context.Context, _ cox.Account, _ map[string]string, _ *fetcher.Fetcher) (any, error) {
	atomic.AddInt32(t.calls, 1)
	return "ok", nil
}

const testAccountScopeKey data.DependencyKey = "test.scope.account"

var (
	testAccountScopeCalls int32
	testScopeOnce         sync.Once
)

func ensureTestScopeFetcherRegistered() {
	testScopeOnce.Do(func() {
		fetcher.RegisterDataFetcher(&testValueFetcher{key: testAccountScopeKey, calls: &testAccountScopeCalls})
	})
}

// newTestServer serves the cox.com endpoints the client talks to: the
// sign-in form, the priming page and the usage feed.
func newTestServer(t *testing.T, feedCalls *int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/idm/coxnetlogin", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SM_LOGGEDIN", Value: "YES", Path: "/"})
	})
	mux.HandleFunc("/internet/mydatausage.cox", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/internet/ajaxDataUsageJSON.ajax", func(w http.ResponseWriter, r *http.Request) {
		if feedCalls != nil {
			atomic.AddInt32(feedCalls, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, testFeedJSON)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, serverURL string) *cox.Client {
	t.Helper()

	client, err := cox.NewClient(
		cox.Credentials{Username: "tester", Password: "hunter2"},
		cox.WithEndpoints(
			serverURL+"/idm/coxnetlogin",
			serverURL+"/internet/mydatausage.cox",
			serverURL+"/internet/ajaxDataUsageJSON.ajax",
		),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestDataFetcherRegistry_ResolvesKnownKeys(t *testing.T) {
	tests := []struct {
		name string
		key  data.DependencyKey
	}{
		{name: "raw feed", key: data.DepUsageRaw},
		{name: "usage report", key: data.DepUsageReport},
		{name: "usage summary", key: data.DepUsageSummary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := fetcher.ResolveDataFetcher(tt.key); !ok {
				t.Fatalf("expected data fetcher registered for key %q", tt.key)
			}
		})
	}
}

func TestFetcher_Fetch_RawFeed(t *testing.T) {
	var feedCalls int32
	server := newTestServer(t, &feedCalls)

	client := newTestClient(t, server.URL)
	budget := fetcher.NewRequestBudget()
	f := fetcher.NewFetcher(client, budget)

	val, err := f.Fetch(context.Background(), client.Account(), data.DepUsageRaw, nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	payload, ok := val.(*cox.RawPayload)
	if !ok {
		t.Fatalf("expected *cox.RawPayload, got %T", val)
	}
	if len(payload.ModemDetails) != 1 {
		t.Fatalf("expected 1 modem detail, got %d", len(payload.ModemDetails))
	}
	if got := atomic.LoadInt32(&feedCalls); got != 1 {
		t.Fatalf("expected 1 feed call, got %d", got)
	}
	if rem := budget.Remaining(); rem != 59 {
		t.Fatalf("expected 59 remaining, got %d", rem)
	}
}

func TestFetcher_Fetch_ReportDerivesFromCachedRawFeed(t *testing.T) {
	var feedCalls int32
	server := newTestServer(t, &feedCalls)

	client := newTestClient(t, server.URL)
	f := fetcher.NewFetcher(client, fetcher.NewRequestBudget())

	// Prime the raw feed cache.
	if _, err := f.Fetch(context.Background(), client.Account(), data.DepUsageRaw, nil); err != nil {
		t.Fatalf("Fetch raw failed: %v", err)
	}

	val, err := f.Fetch(context.Background(), client.Account(), data.DepUsageReport, nil)
	if err != nil {
		t.Fatalf("Fetch report failed: %v", err)
	}
	report, ok := val.(*usage.Report)
	if !ok {
		t.Fatalf("expected *usage.Report, got %T", val)
	}
	if report.Account != "tester" {
		t.Fatalf("expected account tester, got %q", report.Account)
	}
	if report.UsedBytes != 320*usage.GiB {
		t.Fatalf("expected 320 GiB used, got %d", report.UsedBytes)
	}

	if got := atomic.LoadInt32(&feedCalls); got != 1 {
		t.Fatalf("expected report to reuse cached raw feed, got %d feed calls", got)
	}
}

func TestFetcher_Fetch_SummaryParsesCycleTotals(t *testing.T) {
	var feedCalls int32
	server := newTestServer(t, &feedCalls)

	client := newTestClient(t, server.URL)
	f := fetcher.NewFetcher(client, fetcher.NewRequestBudget())

	val, err := f.Fetch(context.Background(), client.Account(), data.DepUsageSummary, nil)
	if err != nil {
		t.Fatalf("Fetch summary failed: %v", err)
	}
	summary, ok := val.(*usage.CycleSummary)
	if !ok {
		t.Fatalf("expected *usage.CycleSummary, got %T", val)
	}
	if len(summary.Totals) != 2 || summary.Totals[0] != 10 || summary.Totals[1] != 25 {
		t.Fatalf("unexpected cycle totals: %v", summary.Totals)
	}
	if got := atomic.LoadInt32(&feedCalls); got != 1 {
		t.Fatalf("expected 1 feed call, got %d", got)
	}
}

func TestFetcher_CacheKey_DeterministicParamsOrder(t *testing.T) {
	ensureTestScopeFetcherRegistered()
	atomic.StoreInt32(&testAccountScopeCalls, 0)

	server := newTestServer(t, nil)
	client := newTestClient(t, server.URL)
	f := fetcher.NewFetcher(client, fetcher.NewRequestBudget())

	paramsA := map[string]string{"b": "2", "a": "1"}
	paramsB := map[string]string{"a": "1", "b": "2"}

	if _, err := f.Fetch(context.Background(), client.Account(), testAccountScopeKey, paramsA); err != nil {
		t.Fatalf("Fetch paramsA failed: %v", err)
	}
	if _, err := f.Fetch(context.Background(), client.Account(), testAccountScopeKey, paramsB); err != nil {
		t.Fatalf("Fetch paramsB failed: %v", err)
	}

	if got := atomic.LoadInt32(&testAccountScopeCalls); got != 1 {
		t.Fatalf("expected 1 call due to deterministic cache key, got %d", got)
	}
}

func TestFetcher_AccountScope_DoesNotDedupeAcrossAccounts(t *testing.T) {
	ensureTestScopeFetcherRegistered()
	atomic.StoreInt32(&testAccountScopeCalls, 0)

	server := newTestServer(t, nil)
	client := newTestClient(t, server.URL)
	f := fetcher.NewFetcher(client, fetcher.NewRequestBudget())

	if _, err := f.Fetch(context.Background(), cox.Account{Username: "alice"}, testAccountScopeKey, nil); err != nil {
		t.Fatalf("Fetch alice failed: %v", err)
	}
	if _, err := f.Fetch(context.Background(), cox.Account{Username: "bob"}, testAccountScopeKey, nil); err != nil {
		t.Fatalf("Fetch bob failed: %v", err)
	}

	if got := atomic.LoadInt32(&testAccountScopeCalls); got != 2 {
		t.Fatalf("expected 2 calls across different accounts, got %d", got)
	}
}

func TestFetcher_DependencyCycleDetection_SelfCycle(t *testing.T) {
	const selfKey data.DependencyKey = "test.cycle.self"
	fetcher.RegisterDataFetcher(&testCycleFetcher{key: selfKey, target: selfKey})

	server := newTestServer(t, nil)
	client := newTestClient(t, server.URL)
	f := fetcher.NewFetcher(client, fetcher.NewRequestBudget())

	if _, err := f.Fetch(context.Background(), client.Account(), selfKey, nil); err == nil {
		t.Fatalf("expected cycle detection error")
	}
}

func TestFetcher_DependencyCycleDetection_MutualCycle(t *testing.T) {
	const aKey data.DependencyKey = "test.cycle.a"
	const bKey data.DependencyKey = "test.cycle.b"
	fetcher.RegisterDataFetcher(&testCycleFetcher{key: aKey, target: bKey})
	fetcher.RegisterDataFetcher(&testCycleFetcher{key: bKey, target: aKey})

	server := newTestServer(t, nil)
	client := newTestClient(t, server.URL)
	f := fetcher.NewFetcher(client, fetcher.NewRequestBudget())

	if _, err := f.Fetch(context.Background(), client.Account(), aKey, nil); err == nil {
		t.Fatalf("expected cycle detection error")
	}
}

func TestFetcher_Fetch_RejectsMissingAccount(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server.URL)
	f := fetcher.NewFetcher(client, fetcher.NewRequestBudget())

	if _, err := f.Fetch(context.Background(), cox.Account{}, data.DepUsageRaw, nil); err == nil {
		t.Fatalf("expected error for empty account")
	}
}
