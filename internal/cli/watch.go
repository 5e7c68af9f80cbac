package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coxstatus/internal/config"
	"coxstatus/internal/engine"
	"coxstatus/internal/flags"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Collect Cox data usage continuously",
	Long: `Run collection passes forever, sleeping --interval between successful
passes.

After a failed pass (exit code 2 or 3) the persisted portal session is
discarded, so the next pass signs in from scratch, and the retry delay backs
off exponentially from --retry-interval up to --max-retry-interval. A
successful pass resets the backoff. The usage feed goes stale right after a
billing-cycle rollover; dropping the session and retrying later is what
recovers from that.

Check failures (exit code 1) are reported but do not trigger retries; the
next pass runs after the normal interval.

Watch runs until interrupted (SIGINT/SIGTERM) and then exits with the last
pass's exit code.

Examples:
  export COX_STATUS_USERNAME="myuser"
  export COX_STATUS_PASSWORD="<your_password>"
  coxstatus watch --influx-url http://localhost:8086/cox

  # Hourly collection with 10-minute retries
  coxstatus watch --interval 1h --retry-interval 10m
`,
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := prepareRun()
		if !ok {
			os.Exit(3)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng := engine.NewEngine(client)
		code := watchLoop(ctx, cfg, eng)
		stop()
		os.Exit(code)
	},
}

// watchLoop runs collection passes until ctx is canceled and returns the
// last pass's exit code.
func watchLoop(ctx context.Context, cfg *config.Config, eng *engine.Engine) int {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.Runtime.RetryInterval
	bo.MaxInterval = cfg.Runtime.MaxRetryInterval
	bo.MaxElapsedTime = 0 // retry forever
	bo.Reset()

	lastCode := 0
	for {
		if ctx.Err() != nil {
			return lastCode
		}

		runCtx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
		lastCode = eng.Run(runCtx, cfg)
		cancel()

		var wait time.Duration
		if lastCode >= 2 {
			// A partial or fatal pass usually means a dead session or a stale
			// feed; start over with a fresh sign-in after backing off.
			if err := eng.ResetSession(); err != nil {
				fmt.Fprintf(os.Stderr, "Error resetting session: %v\n", err)
			}
			wait = bo.NextBackOff()
			fmt.Fprintf(os.Stderr, "Collection failed (exit code %d); retrying in %s\n", lastCode, wait.Truncate(time.Second))
		} else {
			bo.Reset()
			wait = cfg.Runtime.Interval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastCode
		case <-timer.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.SetHelpTemplate(collectHelpTemplate)
	addCollectFlags(watchCmd)

	watchCmd.Flags().DurationVar(&cfg.Runtime.Interval, flags.FlagInterval, cfg.Runtime.Interval, "Delay between successful passes (default: 1h)")
	watchCmd.Flags().DurationVar(&cfg.Runtime.RetryInterval, flags.FlagRetryInterval, cfg.Runtime.RetryInterval, "Initial delay before retrying a failed pass (default: 5m)")
	watchCmd.Flags().DurationVar(&cfg.Runtime.MaxRetryInterval, flags.FlagMaxRetryInterval, cfg.Runtime.MaxRetryInterval, "Cap for the retry backoff (default: 1h)")
}
