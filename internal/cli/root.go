package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "coxstatus",
	Short: "Collect Cox data-usage statistics and export them to InfluxDB",
	Long: `CoxStatus signs in to the cox.com residential portal, reads the data-usage
feed, and exports plan, usage, and per-day measurements to output sinks
(console, files, InfluxDB).

CoxStatus is read-only: it never changes anything on the Cox account.

Examples:
	# Show available commands and global flags
	coxstatus --help

	# Collect usage once
	coxstatus collect --username myuser

	# Collect continuously and export to InfluxDB
	coxstatus watch --username myuser --influx-url http://localhost:8086/cox

	# List checks
	coxstatus checks list

	# Print build info
	coxstatus version

Output:
	By default, commands write human-readable output to stdout.
	Some commands support structured output via emitter flags (see each command's --help).`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, "verbose", false, "Enable verbose logging (prints every portal request and full error details)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
