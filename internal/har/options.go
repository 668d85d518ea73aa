package har

// ResourceOptions controls which archive entries become resource entries.
type ResourceOptions struct {
	// IncludeDocument keeps each page's navigation request. Browsers report
	// the document as a navigation entry, not a resource, so it is skipped
	// by default.
	IncludeDocument bool
	// IncludeHosts keeps only requests to these hosts (empty = all hosts).
	IncludeHosts []string
	// ExcludeHosts drops requests to these hosts.
	ExcludeHosts []string
	// ExcludeFailed drops requests that never got a response (status 0).
	ExcludeFailed bool
}

// DefaultOptions returns ResourceOptions matching what a browser would
// expose through its resource timeline.
func DefaultOptions() ResourceOptions {
	return ResourceOptions{ExcludeFailed: true}
}
