package main

import (
	_ "coxstatus/internal/checks/builtin"
	"coxstatus/internal/cli"
	_ "coxstatus/internal/fetcher/providers"
)

// These variables are populated by the build via -ldflags (see Taskfile.yml).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cli.SetBuildInfo(version, commit, date)
	cli.Execute()
}
