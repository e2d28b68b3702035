package twotier

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStatus aborts an operation whose freshness classification is
	// outside the three known states.
	ErrUnknownStatus = errors.New("twotier: unrecognized cache status")

	// ErrDirectoryContention is returned when an atomic directory join keeps
	// losing compare-and-swap races. The local write is skipped.
	ErrDirectoryContention = errors.New("twotier: directory join contention")

	// ErrInvalidArgument is matched by configuration and lookup failures.
	ErrInvalidArgument = errors.New("twotier: invalid argument")
)

// TierError reports an operation that runs against both tiers and failed on
// one or both of them. Both tiers are always attempted.
type TierError struct {
	Op        string // "evict" or "clear"
	Cache     string
	Key       string // empty for clear
	SharedErr error
	LocalErr  error
}

func (e *TierError) Error() string {
	target := e.Cache
	if e.Key != "" {
		target = fmt.Sprintf("%s/%q", e.Cache, e.Key)
	}
	switch {
	case e.SharedErr != nil && e.LocalErr != nil:
		return fmt.Sprintf("%s %s failed on both tiers: shared=%v; local=%v",
			e.Op, target, e.SharedErr, e.LocalErr)
	case e.SharedErr != nil:
		return fmt.Sprintf("%s %s: shared tier failed: %v", e.Op, target, e.SharedErr)
	case e.LocalErr != nil:
		return fmt.Sprintf("%s %s: local tier failed: %v", e.Op, target, e.LocalErr)
	default:
		return fmt.Sprintf("%s %s: unknown error", e.Op, target)
	}
}

func (e *TierError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.SharedErr != nil {
		errs = append(errs, e.SharedErr)
	}
	if e.LocalErr != nil {
		errs = append(errs, e.LocalErr)
	}
	return errs
}

func tierErr(op, cache, key string, sharedErr, localErr error) error {
	if sharedErr == nil && localErr == nil {
		return nil
	}
	return &TierError{Op: op, Cache: cache, Key: key, SharedErr: sharedErr, LocalErr: localErr}
}

// ResolveError reports a cache name that the registry could not provide for
// an operation.
type ResolveError struct {
	Name string
	Op   string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("cannot find cache named '%s' for %s", e.Name, e.Op)
}

func (e *ResolveError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidArgument}
	}
	return []error{ErrInvalidArgument, e.Err}
}
