package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	defaultBudgetCapacity = 60
	defaultBudgetWindow   = time.Hour

	// cox.com advertises no rate-limit headers, so a throttled response
	// without Retry-After gets a fixed cooldown.
	defaultThrottleCooldown = 5 * time.Minute
)

// RequestBudget caps how many portal requests may be made per window. The
// portal publishes no quota of its own, so the budget refills on a local
// clock; a Retry-After header or a throttled status code imposes a cooldown
// during which no request may start.
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	capacity  int
	window    time.Duration
	reset     time.Time
	cooldown  time.Time
	now       func() time.Time
	notifyCh  chan struct{}
}

func NewRequestBudget() *RequestBudget {
	return NewRequestBudgetWithCapacity(defaultBudgetCapacity, defaultBudgetWindow)
}

func NewRequestBudgetWithCapacity(capacity int, window time.Duration) *RequestBudget {
	if capacity <= 0 {
		capacity = defaultBudgetCapacity
	}
	if window <= 0 {
		window = defaultBudgetWindow
	}
	return &RequestBudget{
		remaining: capacity,
		capacity:  capacity,
		window:    window,
		reset:     time.Now().Add(window),
		now:       time.Now,
		notifyCh:  make(chan struct{}),
	}
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(b.now())
	return b.remaining
}

func (b *RequestBudget) Acquire(ctx context.Context, n int) error {
	if ctx == nil {
		return fmt.Errorf("Acquire: nil context")
	}
	if n <= 0 {
		return fmt.Errorf("Acquire: n must be > 0 (got %d)", n)
	}
	if b == nil {
		return fmt.Errorf("Acquire: nil RequestBudget")
	}
	if b.now == nil {
		return fmt.Errorf("Acquire: RequestBudget.now is nil (use NewRequestBudget)")
	}
	if b.notifyCh == nil {
		return fmt.Errorf("Acquire: RequestBudget.notifyCh is nil (use NewRequestBudget)")
	}

	for i := 0; i < n; i++ {
		if err := b.acquireOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *RequestBudget) acquireOne(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		b.refillLocked(now)

		if now.Before(b.cooldown) {
			until := b.cooldown
			ch := b.notifyCh
			b.mu.Unlock()

			if err := waitUntil(ctx, now, until, ch); err != nil {
				return err
			}
			continue
		}

		if b.remaining > 0 {
			b.remaining--
			b.mu.Unlock()
			return nil
		}

		// Exhausted. Wait for the window to roll over or for an external
		// cooldown update to signal.
		reset := b.reset
		ch := b.notifyCh
		b.mu.Unlock()

		if err := waitUntil(ctx, now, reset, ch); err != nil {
			return err
		}
	}
}

func waitUntil(ctx context.Context, now, until time.Time, ch <-chan struct{}) error {
	wait := until.Sub(now)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return ctx.Err()
	case <-ch:
		if !timer.Stop() {
			<-timer.C
		}
		return nil
	case <-timer.C:
		return nil
	}
}

func (b *RequestBudget) refillLocked(now time.Time) {
	if now.Before(b.reset) {
		return
	}
	b.remaining = b.capacity
	b.reset = now.Add(b.window)
}

func (b *RequestBudget) signalLocked() {
	if b.notifyCh == nil {
		b.notifyCh = make(chan struct{})
		return
	}
	close(b.notifyCh)
	b.notifyCh = make(chan struct{})
}

// UpdateFromResponse folds throttling signals from a portal response into the
// budget. Safe to call with a nil response.
func (b *RequestBudget) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}
	if b == nil {
		return
	}
	if b.now == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false

	if cooldown, ok := parseRetryAfter(resp.Header.Get("Retry-After"), b.now()); ok {
		if cooldown.After(b.cooldown) {
			b.cooldown = cooldown
			changed = true
		}
	} else if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		until := b.now().Add(defaultThrottleCooldown)
		if until.After(b.cooldown) {
			b.cooldown = until
			changed = true
		}
	}

	if changed {
		b.signalLocked()
	}
}

func parseRetryAfter(value string, now time.Time) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return time.Time{}, false
		}
		return now.Add(time.Duration(seconds) * time.Second), true
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at, true
	}
	return time.Time{}, false
}
