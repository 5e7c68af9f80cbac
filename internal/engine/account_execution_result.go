package engine

import "coxstatus/internal/data"

// AccountExecutionResult represents the outcome of executing (fetching) all
// planned dependencies for a single account.
//
// It is emitted by the scheduler and consumed by the engine during streaming
// collection execution. Account holds the lowercase plan key.
type AccountExecutionResult struct {
	Account string
	Data    data.DataContext
	DepErrs map[data.DependencyKey]error
}
