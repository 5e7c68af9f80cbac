package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"coxstatus/internal/checks"
	"coxstatus/internal/config"
	"coxstatus/internal/cox"
	"coxstatus/internal/data"
	"coxstatus/internal/fetcher"
	"coxstatus/internal/influx"
	"coxstatus/internal/output"
	"coxstatus/internal/usage"
)

func exitCodeForRun(fatal, partial, failures bool) int {
	// Exit code contract:
	// 0 = clean run, all checks passed
	// 1 = check failures detected
	// 2 = partial failure (some checks/dependencies errored)
	// 3 = fatal error (collection did not run)
	if fatal {
		return 3
	}
	if partial {
		return 2
	}
	if failures {
		return 1
	}
	return 0
}

func setupOutputManager(cfg *config.Config) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(nil, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(os.Stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(rs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// InfluxDB Sink
	if cfg.Influx.URL != "" {
		opts := []influx.StoreOption{
			influx.WithURL(cfg.Influx.URL),
			influx.WithTimeout(cfg.Influx.Timeout),
			influx.WithInsecureSkipVerify(cfg.Influx.InsecureSkipVerify),
		}
		// Explicit settings win over anything embedded in the URL.
		if cfg.Influx.Database != "" {
			opts = append(opts, influx.WithDatabase(cfg.Influx.Database))
		}
		if cfg.Influx.Username != "" {
			opts = append(opts, influx.WithUser(cfg.Influx.Username))
		}
		if cfg.Influx.Password != "" {
			opts = append(opts, influx.WithPassword(cfg.Influx.Password))
		}
		store, err := influx.NewStore(opts...)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		is, err := output.NewInfluxSink(store, cfg.Influx.Timeout)
		if err != nil {
			store.Close()
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(is); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

func applyCheckOptionsIfAny(cfg *config.Config) error {
	// applyCheckOptionsIfAny applies per-check configuration supplied via
	// repeated --set flags.
	//
	// --set values are parsed as "checkID.option=value" and routed to the
	// matching check's Configure method (only checks that implement
	// checks.ConfigurableCheck).
	//
	// Example:
	//   coxstatus collect --username me --set plan-usage-threshold.warn_percent=80

	if len(cfg.Checks.Set) == 0 {
		return nil
	}

	assignments, err := config.ParseCheckOptionAssignments(cfg.Checks.Set)
	if err != nil {
		return err
	}

	all := checks.List()
	byID := make(map[string]checks.Check, len(all))
	for _, c := range all {
		byID[c.ID()] = c
	}

	for checkID, opts := range assignments {
		c, ok := byID[checkID]
		if !ok {
			return fmt.Errorf("unknown check ID %q", checkID)
		}
		cc, ok := c.(checks.ConfigurableCheck)
		if !ok {
			return fmt.Errorf("check %q does not support options", checkID)
		}

		allowed := make(map[string]struct{})
		for _, opt := range cc.Options() {
			allowed[opt.Name] = struct{}{}
		}
		for name := range opts {
			if _, ok := allowed[name]; !ok {
				return fmt.Errorf("unknown option %q for check %q", name, checkID)
			}
		}

		if err := cc.Configure(opts); err != nil {
			return fmt.Errorf("configure check %q: %w", checkID, err)
		}
	}

	return nil
}

// checkResultIfDependenciesMissingOrFailed returns a synthetic check status/message when required dependencies are missing or failed.
//
// A "dependency" is a required piece of account data identified by a data.DependencyKey.
// Those dependencies are fetched ahead of time and placed into the account's data.DataContext; if a required
// key is missing from the DataContext (or failed to fetch), the check can't be evaluated normally.
func checkResultIfDependenciesMissingOrFailed(dc data.DataContext, deps []data.DependencyKey, accountDepErrs map[data.DependencyKey]error, verbose bool) (checks.Status, string, bool) {
	var missing []string
	var failedDepMessages []string
	hasSkippableFailure := false
	hasHardFailure := false

	for _, d := range deps {
		if _, ok := dc.Get(d); ok {
			continue
		}
		if accountDepErrs != nil {
			if depErr := accountDepErrs[d]; depErr != nil {
				pres := presentDependencyError(d, depErr, verbose)
				// If multiple deps fail, include the dependency key so the user can tell what failed.
				// If exactly one dep fails, emit only the message for a cleaner UX.
				failedDepMessages = append(failedDepMessages, fmt.Sprintf("%s: %s", d, pres.message))
				if pres.disposition == depErrDispositionSkip {
					hasSkippableFailure = true
				} else {
					hasHardFailure = true
				}
				continue
			}
		}
		missing = append(missing, string(d))
	}

	if len(failedDepMessages) > 0 {
		status := checks.StatusError
		if hasSkippableFailure && !hasHardFailure {
			status = checks.StatusSkipped
		}

		msg := strings.Join(failedDepMessages, "; ")
		if len(failedDepMessages) == 1 {
			if _, after, ok := strings.Cut(failedDepMessages[0], ": "); ok {
				msg = after
			}
		}
		return status, msg, true
	}

	if len(missing) > 0 {
		return checks.StatusError, fmt.Sprintf("Missing dependencies: %v", missing), true
	}

	return "", "", false
}

type Engine struct {
	Client *cox.Client

	// schedulerExecute is a test seam for streaming execution.
	// If nil, Engine uses the real fetcher + scheduler.
	schedulerExecute func(ctx context.Context, cfg *config.Config, plan *CollectPlan) (<-chan AccountExecutionResult, <-chan error)
}

func NewEngine(client *cox.Client) *Engine {
	return &Engine{
		Client: client,
	}
}

// ResetSession discards the persisted portal session so the next run signs
// in from scratch. Watch mode calls this after failed passes.
func (e *Engine) ResetSession() error {
	if e == nil || e.Client == nil {
		return nil
	}
	return e.Client.ResetSession()
}

func (e *Engine) executePlanStream(ctx context.Context, cfg *config.Config, plan *CollectPlan) (<-chan AccountExecutionResult, <-chan error) {
	if e.schedulerExecute != nil {
		return e.schedulerExecute(ctx, cfg, plan)
	}

	// Initialize Fetcher
	budget := fetcher.NewRequestBudget()
	f := fetcher.NewFetcher(e.Client, budget)

	// Initialize Scheduler
	scheduler, err := NewScheduler(f, cfg.Runtime.Concurrency)
	if err != nil {
		resCh := make(chan AccountExecutionResult)
		errCh := make(chan error, 1)
		close(resCh)
		errCh <- err
		close(errCh)
		return resCh, errCh
	}
	return scheduler.Execute(ctx, plan)
}

// evaluateStreamingResults receives streamed per-account execution results (fetched dependencies + any fetch errors),
// publishes the parsed usage report, validates that each check's required dependencies are present, executes check
// logic, and forwards results/events to the configured output sinks.
func evaluateStreamingResults(ctx context.Context, cfg *config.Config, plan *CollectPlan, resCh <-chan AccountExecutionResult, outMgr *output.Manager) (hasErrors bool, hasFailures bool) {
	for res := range resCh {
		ap := plan.AccountPlans[res.Account]
		if ap == nil {
			hasErrors = true
			continue
		}

		accountName := ap.Account.Username
		_ = outMgr.Write(output.Event{Type: "account.started", Account: accountName})

		dc := res.Data
		if dc == nil {
			dc = data.NewMapDataContext(map[data.DependencyKey]any{})
		}

		// Usage export happens before check evaluation: sinks receive the
		// parsed report even when every check subsequently errors.
		if val, ok := dc.Get(data.DepUsageReport); ok {
			if report, ok := val.(*usage.Report); ok && report != nil {
				_ = outMgr.Write(report)
			}
		} else if depErr := res.DepErrs[data.DepUsageReport]; depErr != nil {
			pres := presentDependencyError(data.DepUsageReport, depErr, cfg.Runtime.Verbose)
			fmt.Fprintf(os.Stderr, "Error collecting usage for %s: %s\n", accountName, pres.message)
			hasErrors = true
		}

		for _, check := range ap.Checks {
			deps, err := check.Dependencies(ctx, ap.Account)
			if err != nil {
				_ = outMgr.Write(checks.Result{
					Account: accountName,
					CheckID: check.ID(),
					Status:  checks.StatusError,
					Message: fmt.Sprintf("Failed to determine dependencies: %v", err),
				})
				hasErrors = true
				continue
			}

			if status, msg, ok := checkResultIfDependenciesMissingOrFailed(dc, deps, res.DepErrs, cfg.Runtime.Verbose); ok {
				_ = outMgr.Write(checks.Result{
					Account: accountName,
					CheckID: check.ID(),
					Status:  status,
					Message: msg,
				})
				if status == checks.StatusError {
					hasErrors = true
				}
				if status == checks.StatusFail {
					hasFailures = true
				}
				continue
			}

			// Enforce the checks contract: a check must not read dependency keys it
			// did not declare in Dependencies(). This prevents checks from implicitly
			// relying on other checks' dependencies.
			tracked := data.NewTrackingDataContext(dc)
			checkRes, err := check.Evaluate(ctx, ap.Account, tracked)
			undeclared := undeclaredDependencyAccesses(tracked.AccessedKeys(), deps)
			if len(undeclared) > 0 {
				msg := fmt.Sprintf("Check accessed undeclared dependencies: %s. Declare them in Dependencies().", strings.Join(undeclared, ", "))
				if err != nil {
					msg = fmt.Sprintf("%s (evaluation error: %v)", msg, err)
				}
				_ = outMgr.Write(checks.Result{Account: accountName, CheckID: check.ID(), Status: checks.StatusError, Message: msg})
				hasErrors = true
				continue
			}
			if err != nil {
				_ = outMgr.Write(checks.Result{
					Account: accountName,
					CheckID: check.ID(),
					Status:  checks.StatusError,
					Message: fmt.Sprintf("Evaluation failed: %v", err),
				})
				hasErrors = true
				continue
			}

			// Backfill identifiers so output stays consistent and well-formed.
			// Checks usually care about PASS/FAIL + message/metadata; the engine already knows the account and check ID,
			// so we stamp them here to avoid repeated boilerplate and to keep sinks (ndjson/report/etc) happy.
			if checkRes.Account == "" {
				checkRes.Account = accountName
			}
			if checkRes.CheckID == "" {
				checkRes.CheckID = check.ID()
			}

			switch checkRes.Status {
			case checks.StatusFail:
				hasFailures = true
			case checks.StatusError:
				hasErrors = true
			}

			_ = outMgr.Write(checkRes)
		}

		_ = outMgr.Write(output.Event{Type: "account.finished", Account: accountName})
	}

	return hasErrors, hasFailures
}

func undeclaredDependencyAccesses(accessed []data.DependencyKey, declared []data.DependencyKey) []string {
	if len(accessed) == 0 {
		return nil
	}
	decl := make(map[data.DependencyKey]struct{}, len(declared))
	for _, d := range declared {
		decl[d] = struct{}{}
	}

	var out []string
	for _, k := range accessed {
		if _, ok := decl[k]; ok {
			continue
		}
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

func resolveAndConfigureChecks(cfg *config.Config) ([]checks.Check, bool) {
	selectedChecks, err := checks.Resolve(cfg.Checks.Selector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving checks: %v\n", err)
		return nil, false
	}

	if err := applyCheckOptionsIfAny(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring checks: %v\n", err)
		return nil, false
	}

	return selectedChecks, true
}

func (e *Engine) buildPlan(ctx context.Context, cfg *config.Config, selectedChecks []checks.Check) (*CollectPlan, bool) {
	plan := NewCollectPlan()
	account := cox.Account{Username: cfg.Account.Username}
	if e.Client != nil {
		// The client's account carries the fully qualified login name.
		account = e.Client.Account()
	}
	if err := plan.AddAccount(ctx, account, selectedChecks); err != nil {
		fmt.Fprintf(os.Stderr, "Error adding account %s to plan: %v\n", account.Username, err)
		return nil, false
	}
	return plan, true
}

func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	selectedChecks, ok := resolveAndConfigureChecks(cfg)
	if !ok {
		return exitCodeForRun(true, false, false)
	}

	plan, ok := e.buildPlan(ctx, cfg, selectedChecks)
	if !ok {
		return exitCodeForRun(true, false, false)
	}

	outMgr, err := setupOutputManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	defer outMgr.Close()

	_ = outMgr.Write(output.Event{Type: "run.started", Accounts: len(plan.AccountPlans), Checks: len(selectedChecks)})

	resCh, errCh := e.executePlanStream(ctx, cfg, plan)

	hasErrors, hasFailures := evaluateStreamingResults(ctx, cfg, plan, resCh, outMgr)

	var schedErr error
	// Drain scheduler errors; we only need to know whether any fatal error occurred (keep one non-nil error).
	for err := range errCh {
		if err != nil {
			schedErr = err
		}
	}

	fatal := schedErr != nil
	code := exitCodeForRun(fatal, hasErrors, hasFailures)
	_ = outMgr.Write(output.Event{Type: "run.finished", ExitCode: code})
	return code
}
