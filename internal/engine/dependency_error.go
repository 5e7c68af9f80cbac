package engine

import (
	"errors"
	"fmt"
	"strings"

	"coxstatus/internal/cox"
	"coxstatus/internal/data"
)

type depErrorDisposition int

const (
	depErrDispositionError depErrorDisposition = iota
	depErrDispositionSkip
)

type depErrorPresentation struct {
	disposition depErrorDisposition
	message     string
	verbose     string
}

func isSkippableFeedOutage(key data.DependencyKey) bool {
	switch key {
	case data.DepUsageSummary:
		// The monthly summary is supplementary; a feed outage there should
		// not error the whole run.
		return true
	default:
		return false
	}
}

func presentDependencyError(key data.DependencyKey, err error, verbose bool) depErrorPresentation {
	if err == nil {
		return depErrorPresentation{disposition: depErrDispositionError, message: "unknown error"}
	}

	full := err.Error()

	// Prefer structured portal error types to avoid leaking full request URLs.
	var fe *cox.FeedError
	if errors.As(err, &fe) {
		msg := strings.TrimSpace(fe.Message)
		if msg == "" {
			msg = "no detail reported"
		}
		if !verbose && isSkippableFeedOutage(key) {
			return depErrorPresentation{disposition: depErrDispositionSkip, message: msg}
		}
		if verbose {
			return depErrorPresentation{disposition: depErrDispositionError, message: full, verbose: full}
		}
		return depErrorPresentation{disposition: depErrDispositionError, message: fmt.Sprintf("usage feed unavailable (%s): %s", fe.Code, msg)}
	}

	var le *cox.LoginError
	if errors.As(err, &le) {
		// LoginError never carries credentials, so it is safe verbatim.
		return depErrorPresentation{disposition: depErrDispositionError, message: full, verbose: full}
	}

	// Fallback: best-effort scrub to avoid printing full request details.
	s := strings.TrimSpace(full)
	if verbose {
		return depErrorPresentation{disposition: depErrDispositionError, message: full, verbose: full}
	}
	if scrubbed := scrubPortalRequestFromErrorString(s); scrubbed != "" {
		return depErrorPresentation{disposition: depErrDispositionError, message: scrubbed}
	}
	return depErrorPresentation{disposition: depErrDispositionError, message: "cox portal request failed"}
}

func scrubPortalRequestFromErrorString(s string) string {
	// Typical wrapped request error format:
	//   GET https://www.cox.com/...: 403 Some message
	// We want to drop the leading "GET https://...: " part.
	methods := []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "}
	for _, m := range methods {
		if strings.HasPrefix(s, m) {
			if i := strings.Index(s, "https://"); i >= 0 {
				if j := strings.Index(s[i:], ": "); j >= 0 {
					out := strings.TrimSpace(s[i+j+2:])
					return out
				}
			}
			if j := strings.Index(s, ": "); j >= 0 {
				return strings.TrimSpace(s[j+2:])
			}
			break
		}
	}
	return ""
}
