// Package provider defines the storage capability consumed by twotier.
//
// The same contract is implemented twice per cache name: once by the shared
// tier (the system of record, reachable by every cooperating process) and once
// by the local tier (private to the process, bounded by its own idle expiry).
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Put for a key. The shared tier slot
// may hold either a real value or a freshness directory; telling the two apart
// is the caller's job, stores never interpret values.
package provider

import (
	"context"
	"errors"
)

// ErrUnknownCache is returned by Backend.Open when the backend serves a fixed
// set of cache names and the requested one is not among them.
var ErrUnknownCache = errors.New("provider: unknown cache")

// ErrNoSwap is returned by decorators whose wrapped store is not a Swapper.
var ErrNoSwap = errors.New("provider: compare-and-swap not supported")

// LoadFunc computes a value on a miss. The returned bytes are stored before
// being handed back to the caller.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Store is one named key/value cache.
// Must be safe for concurrent use.
type Store interface {
	// Name returns the logical cache name this store was opened for.
	Name() string

	// Native exposes the underlying client or cache (e.g. *redis.Client).
	Native() any

	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// GetOrLoad returns the stored value, or calls load on a miss, stores the
	// result and returns it. Load errors are returned unchanged and nothing is stored.
	GetOrLoad(ctx context.Context, key string, load LoadFunc) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// PutIfAbsent stores value only when key is missing.
	// It returns the existing value and loaded=true when key was present.
	PutIfAbsent(ctx context.Context, key string, value []byte) (existing []byte, loaded bool, err error)

	// Evict removes a key. Evicting a missing key is not an error.
	Evict(ctx context.Context, key string) error

	// Clear removes every key of this cache (and only of this cache).
	Clear(ctx context.Context) error
}

// Swapper is implemented by stores that can replace a value atomically.
// It is optional; twotier only uses it for directory joins when asked to.
type Swapper interface {
	// CompareAndSwap writes next iff the current value equals old
	// (or the key is missing when oldExists is false).
	// swapped=false with a nil error means another writer won the race.
	CompareAndSwap(ctx context.Context, key string, old []byte, oldExists bool, next []byte) (swapped bool, err error)
}

// Backend opens stores by cache name.
type Backend interface {
	// Open returns the store for name. Backends may return a fresh handle on
	// every call; twotier memoizes the result per name.
	Open(name string) (Store, error)

	// Names lists the cache names known to this backend.
	Names(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close(ctx context.Context) error
}

// SwapperOf returns s as a Swapper when s, or every store it decorates down to
// the innermost one, supports compare-and-swap. Decorators expose the store
// they wrap through an Unwrap() Store method.
func SwapperOf(s Store) (Swapper, bool) {
	sw, ok := s.(Swapper)
	if !ok {
		return nil, false
	}
	for {
		u, ok := s.(interface{ Unwrap() Store })
		if !ok {
			return sw, true
		}
		s = u.Unwrap()
		if _, ok := s.(Swapper); !ok {
			return nil, false
		}
	}
}
