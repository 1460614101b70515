package enums

type FetchMode string

const (
	// FetchModeAPI pages the live Reddit listings and expands full comment trees.
	// Required for private subreddits, which the historical index cannot see.
	FetchModeAPI FetchMode = "api"

	// FetchModeSearch queries the historical search index with a time lower bound.
	FetchModeSearch FetchMode = "search"
)
