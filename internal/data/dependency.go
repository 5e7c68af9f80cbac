package data

// DependencyKey uniquely identifies a piece of Cox-derived data.
type DependencyKey string

// FetchScope describes how widely a fetched dependency may be shared.
type FetchScope string

const (
	// ScopeAccount scopes a dependency to a single Cox account. Fetched values
	// are shared across checks evaluating the same account, never across
	// accounts.
	ScopeAccount FetchScope = "account"
)

// DependencyRequest represents a request for a specific dependency with optional parameters.
type DependencyRequest struct {
	Key    DependencyKey
	Params map[string]string
}
