package cox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// PeriodType selects the granularity of the data-usage feed.
type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodMonthly PeriodType = "monthly"
)

// RawPayload mirrors the JSON document served by the data-usage feed.
type RawPayload struct {
	ModemDetails []ModemDetail `json:"modemDetails"`
}

// ModemDetail describes usage for one modem on the account. The feed lists
// one entry per modem; residential accounts have exactly one.
type ModemDetail struct {
	ErrorDaily      *FeedError `json:"errorDaily"`
	DataUsed        *DataUsed  `json:"dataUsed"`
	DataPlan        string     `json:"dataPlan"`
	ServicePeriod   string     `json:"servicePeriod"`
	LastUpdatedDate string     `json:"lastUpdatedDate"`
}

// DataUsed carries the human-formatted total plus per-day entries for the
// current billing cycle.
type DataUsed struct {
	TotalDataUsed string       `json:"totalDataUsed"`
	Daily         []DailyEntry `json:"daily"`
}

// DailyEntry is one day's measurement. Day N of the cycle is element N; the
// feed carries no explicit dates.
type DailyEntry struct {
	Data json.Number `json:"data"`
}

// FeedError is the in-band error the feed reports when usage data is
// temporarily unavailable (typically right after a cycle rollover). The
// session is considered poisoned after one of these; callers reset it and
// retry later.
type FeedError struct {
	Code    string `json:"errorCode"`
	Message string `json:"errorMessage"`
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("usage feed error %s: %s", e.Code, e.Message)
}

// FetchUsage retrieves the data-usage feed at the given granularity.
//
// The returned response has a closed body and is provided so callers can
// inspect headers (e.g. Retry-After) for request pacing.
func (c *Client) FetchUsage(ctx context.Context, period PeriodType) (*RawPayload, *http.Response, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("FetchUsage: nil context")
	}
	if c == nil {
		return nil, nil, fmt.Errorf("FetchUsage: nil client (use NewClient)")
	}
	if period != PeriodDaily && period != PeriodMonthly {
		return nil, nil, fmt.Errorf("FetchUsage: unsupported period type %q", period)
	}

	// The trailing "_" cache-buster carries a microsecond timestamp, matching
	// what the usage page's own JavaScript sends.
	q := url.Values{}
	q.Set("usagePeriodType", string(period))
	q.Set("_", strconv.FormatInt(c.now().UnixMicro(), 10))

	resp, err := c.GetWithAuth(ctx, c.usageURL+"?"+q.Encode())
	if err != nil {
		return nil, resp, err
	}
	defer drainAndClose(resp)

	var payload RawPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp, fmt.Errorf("decode usage feed: %w", err)
	}
	if len(payload.ModemDetails) == 0 {
		return nil, resp, fmt.Errorf("usage feed contained no modem details")
	}
	return &payload, resp, nil
}
