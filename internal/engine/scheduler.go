package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"coxstatus/internal/data"
	"coxstatus/internal/fetcher"
)

type Scheduler struct {
	fetcher     *fetcher.Fetcher
	concurrency int
}

func NewScheduler(f *fetcher.Fetcher, concurrency int) (*Scheduler, error) {
	if f == nil {
		return nil, errors.New("fetcher is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{fetcher: f, concurrency: concurrency}, nil
}

// Execute streams per-account dependency fetch completion results.
//
// Channel semantics:
//   - In the normal (non-canceled) case, exactly one AccountExecutionResult is sent per account.
//   - On context cancellation, the scheduler stops promptly; it may emit fewer than N results.
//   - The results channel and error channel are both closed reliably.
//   - The error channel is used for fatal errors / cancellation signals; per-dependency
//     fetch failures are recorded on AccountExecutionResult.DepErrs.
func (s *Scheduler) Execute(ctx context.Context, plan *CollectPlan) (<-chan AccountExecutionResult, <-chan error) {
	resultsCh := make(chan AccountExecutionResult)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultsCh)
		defer close(errCh)

		trySendErr := func(err error) {
			if err == nil {
				return
			}
			select {
			case errCh <- err:
			default:
			}
		}

		if ctx == nil {
			trySendErr(errors.New("context is nil"))
			return
		}
		if plan == nil {
			trySendErr(errors.New("collect plan is nil"))
			return
		}
		if plan.AccountPlans == nil {
			trySendErr(errors.New("collect plan is not initialized (AccountPlans is nil); use NewCollectPlan"))
			return
		}
		if s == nil {
			trySendErr(errors.New("scheduler is nil"))
			return
		}
		if s.fetcher == nil {
			trySendErr(errors.New("scheduler fetcher is nil"))
			return
		}
		if s.concurrency <= 0 {
			trySendErr(fmt.Errorf("scheduler concurrency must be >= 1, got %d", s.concurrency))
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		// Limit active accounts (favor account completion).
		sem := make(chan struct{}, s.concurrency)
		var wg sync.WaitGroup

		accountKeys := make([]string, 0, len(plan.AccountPlans))
		for key := range plan.AccountPlans {
			accountKeys = append(accountKeys, key)
		}
		sort.Strings(accountKeys)

		var fatalErr error

	scheduleLoop:
		for _, accountKey := range accountKeys {
			if runCtx.Err() != nil {
				break
			}
			ap := plan.AccountPlans[accountKey]
			if ap == nil {
				fatalErr = errors.New("nil account plan")
				cancel()
				break
			}

			select {
			case sem <- struct{}{}:
				// acquired
			case <-runCtx.Done():
				break scheduleLoop
			}

			wg.Add(1)
			go func(accountKey string, ap *AccountPlan) {
				defer wg.Done()
				defer func() { <-sem }()

				dataMap := make(map[data.DependencyKey]any)
				depErrs := make(map[data.DependencyKey]error)

				deps := ap.SortedDependencies()
				for _, key := range deps {
					if runCtx.Err() != nil {
						return
					}
					req := ap.Dependencies[key]
					val, err := s.fetcher.Fetch(runCtx, ap.Account, req.Key, req.Params)
					if err != nil {
						depErrs[req.Key] = err
						continue
					}
					dataMap[req.Key] = val
				}

				if runCtx.Err() != nil {
					return
				}

				res := AccountExecutionResult{
					Account: accountKey,
					Data:    data.NewMapDataContext(dataMap),
					DepErrs: depErrs,
				}
				select {
				case resultsCh <- res:
				case <-runCtx.Done():
					return
				}
			}(accountKey, ap)
		}

		wg.Wait()
		if fatalErr != nil {
			trySendErr(fatalErr)
			return
		}
		trySendErr(ctx.Err())
	}()

	return resultsCh, errCh
}
