package twotier

import "time"

const (
	// DefaultIdleExpiry is how long a local entry survives without access.
	DefaultIdleExpiry = 600 * time.Second

	// DefaultMaxDirectoryRetries bounds compare-and-swap directory joins.
	DefaultMaxDirectoryRetries = 8
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
