package flags

// Package flags defines canonical CLI flag names shared across the CLI.
// Keeping these as constants helps avoid drift between Cobra flag wiring and
// other code paths that need to reference flags in error messages.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Account.Username, flags.FlagUsername, "", "...")
//	arg := "--" + flags.FlagUsername
const (
	// Account
	FlagUsername    = "username"
	FlagEmailDomain = "email-domain"
	FlagSessionFile = "session-file"
	FlagProxy       = "proxy"

	// Checks
	FlagChecks = "checks"
	FlagSet    = "set"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagReport              = "report"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"

	// InfluxDB
	FlagInfluxURL      = "influx-url"
	FlagInfluxDatabase = "influx-database"
	FlagInfluxUsername = "influx-username"
	FlagInfluxPassword = "influx-password"
	FlagInfluxTimeout  = "influx-timeout"
	FlagInfluxInsecure = "influx-insecure"

	// Runtime
	FlagConcurrency      = "concurrency"
	FlagTimeout          = "timeout"
	FlagInterval         = "interval"
	FlagRetryInterval    = "retry-interval"
	FlagMaxRetryInterval = "max-retry-interval"
	FlagVerbose          = "verbose"
)
