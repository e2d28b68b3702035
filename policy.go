package twotier

import (
	"strings"
	"time"
)

// Policy decides which writes go to the local tier. The zero value enables the
// local tier for every cache and every value size with the default idle expiry.
type Policy struct {
	// DisableLocalCache sends every write to the shared tier.
	DisableLocalCache bool
	// IdleExpiry of the default local tier. 0 => DefaultIdleExpiry.
	IdleExpiry time.Duration
	// NamePrefix restricts local caching to caches whose name starts with it.
	// Empty = all caches.
	NamePrefix string
	// MinLocalSize is the smallest measured value size cached locally.
	// <= 0 = no size gate.
	MinLocalSize int
}

// AllowsName reports whether the name gate admits cache.
func (p Policy) AllowsName(cache string) bool {
	if p.DisableLocalCache {
		return false
	}
	return p.NamePrefix == "" || strings.HasPrefix(cache, p.NamePrefix)
}

// AllowsSize reports whether the size gate admits a value of size bytes.
func (p Policy) AllowsSize(size int) bool {
	return p.MinLocalSize <= 0 || size >= p.MinLocalSize
}

func (p Policy) idle() time.Duration {
	return coalesce(p.IdleExpiry, DefaultIdleExpiry)
}

// SizeFunc measures a value for the size gate.
type SizeFunc func(value []byte) (int, error)

func byteLen(v []byte) (int, error) { return len(v), nil }
