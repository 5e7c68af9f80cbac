package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"coxstatus/internal/checks"
	"coxstatus/internal/usage"
)

// ReportSink aggregates everything written during a run and renders a
// Markdown report on Close.
type ReportSink struct {
	path         string
	file         *os.File
	mu           sync.Mutex
	results      []checks.Result
	reports      map[string]*usage.Report
	accounts     map[string]struct{}
	exitCode     int
	haveExitCode bool
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{
		path:     path,
		file:     f,
		reports:  make(map[string]*usage.Report),
		accounts: make(map[string]struct{}),
	}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case checks.Result:
		s.results = append(s.results, t)
		if t.Account != "" {
			s.accounts[t.Account] = struct{}{}
		}
	case *usage.Report:
		if t != nil && t.Account != "" {
			s.reports[t.Account] = t
			s.accounts[t.Account] = struct{}{}
		}
	case Event:
		if t.Account != "" {
			s.accounts[t.Account] = struct{}{}
		}
		if t.Type == "run.finished" {
			s.exitCode = t.ExitCode
			s.haveExitCode = true
		}
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []string
	for account := range s.accounts {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	resultsByAccount := make(map[string][]checks.Result)
	var fails, errs []checks.Result
	for _, r := range s.results {
		resultsByAccount[r.Account] = append(resultsByAccount[r.Account], r)
		switch r.Status {
		case checks.StatusFail:
			fails = append(fails, r)
		case checks.StatusError:
			errs = append(errs, r)
		}
	}

	var b strings.Builder
	b.WriteString("# Cox Data Usage Report\n\n")

	// --- Usage ---
	b.WriteString("## Usage\n\n")
	if len(s.reports) == 0 {
		b.WriteString("No usage data collected.\n\n")
	} else {
		b.WriteString("| Account | Used (GB) | Plan (GB) | Remaining (GB) | Cycle | Days Left | Last Updated |\n")
		b.WriteString("| --- | ---: | ---: | ---: | --- | ---: | --- |\n")
		for _, account := range accounts {
			r, ok := s.reports[account]
			if !ok {
				continue
			}
			cycle := fmt.Sprintf("%s to %s",
				r.CycleStart.Format("2006-01-02"), r.CycleEnd.Format("2006-01-02"))
			b.WriteString(fmt.Sprintf("| %s | %.0f | %.0f | %.0f | %s | %d | %s |\n",
				account, r.UsedGB(), r.PlanGB(), r.RemainingGB(), cycle,
				r.CycleDaysLeft(), r.LastUpdated.Format("2006-01-02")))
		}
		b.WriteString("\n")
	}

	// --- Check results ---
	b.WriteString("## Check results\n\n")
	if len(s.results) == 0 {
		b.WriteString("No checks evaluated.\n\n")
	} else {
		b.WriteString("| Account | Check | Status | Message |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, account := range accounts {
			rs := resultsByAccount[account]
			sort.Slice(rs, func(i, j int) bool { return rs[i].CheckID < rs[j].CheckID })
			for _, r := range rs {
				b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
					account, r.CheckID, r.Status, r.Message))
			}
		}
		b.WriteString("\n")
	}

	// --- Attention needed ---
	b.WriteString("## Attention needed\n\n")
	if len(fails) == 0 && len(errs) == 0 {
		b.WriteString("- None\n\n")
	} else {
		for _, r := range fails {
			b.WriteString(fmt.Sprintf("- **%s** failed for %s", r.CheckID, r.Account))
			if r.Message != "" {
				b.WriteString(": " + r.Message)
			}
			b.WriteString("\n")
		}
		for _, r := range errs {
			b.WriteString(fmt.Sprintf("- **%s** could not be evaluated for %s", r.CheckID, r.Account))
			if r.Message != "" {
				b.WriteString(": " + r.Message)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	// --- Summary ---
	b.WriteString("## Summary\n\n")
	b.WriteString(fmt.Sprintf("Collected usage for %d account(s), evaluated %d check result(s).\n",
		len(s.reports), len(s.results)))
	if s.haveExitCode {
		b.WriteString(fmt.Sprintf("Run finished with exit code %d.\n", s.exitCode))
	}

	if _, err := s.file.WriteString(b.String()); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
