package output

import (
	"coxstatus/internal/checks"
	"coxstatus/internal/usage"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line), including:
// - run.started
// - account.started
// - usage.report
// - check.result
// - account.finished
// - run.finished
//
// JSON mode remains an aggregate of checks.Result values.
type Event struct {
	Type    string `json:"type"`
	Account string `json:"account,omitempty"`
	*checks.Result
	Usage    *usage.Report `json:"usage,omitempty"`
	Accounts int           `json:"accounts,omitempty"`
	Checks   int           `json:"checks,omitempty"`
	ExitCode int           `json:"exit_code,omitempty"`
}

func eventFromResult(r checks.Result) Event {
	return Event{Type: "check.result", Account: r.Account, Result: &r}
}

func eventFromUsage(r *usage.Report) Event {
	return Event{Type: "usage.report", Account: r.Account, Usage: r}
}
