package twotier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/twotier/internal/slot"
	"github.com/unkn0wn-root/twotier/machineid"
	pr "github.com/unkn0wn-root/twotier/provider"
	"github.com/unkn0wn-root/twotier/provider/ristretto"
)

// ErrClosed is returned by Registry.Cache after Close.
var ErrClosed = errors.New("twotier: registry closed")

// Registry hands out one Cache per name for the life of the process.
//
// Lookups of an existing name take no lock. The first request for a name runs
// construction exactly once, even under concurrent callers; everybody gets
// the same instance.
type Registry struct {
	shared pr.Backend
	local  pr.Backend

	id        string
	policy    Policy
	format    slot.Format
	legacy    bool
	substring bool
	atomicDir bool
	retries   int
	sizer     SizeFunc
	log       Logger
	hooks     Hooks

	caches sync.Map // name -> *tiered
	build  singleflight.Group
	mu     sync.RWMutex // builds hold it shared; Close holds it exclusively
	closed atomic.Bool
}

// New builds a Registry. It fails when no machine id can be determined.
func New(opts Options) (*Registry, error) {
	if opts.Shared == nil {
		return nil, fmt.Errorf("%w: shared backend is required", ErrInvalidArgument)
	}
	format, ok := opts.Format.codec()
	if !ok {
		return nil, fmt.Errorf("%w: slot format %d", ErrInvalidArgument, opts.Format)
	}
	if opts.MaxDirectoryRetries < 0 {
		return nil, fmt.Errorf("%w: MaxDirectoryRetries must be >= 0", ErrInvalidArgument)
	}

	id := opts.MachineID
	if id == "" {
		var err error
		if id, err = machineid.Detect(); err != nil {
			return nil, fmt.Errorf("twotier: machine id: %w", err)
		}
	}
	if err := validMachineID(id); err != nil {
		return nil, err
	}

	r := &Registry{
		shared:    opts.Shared,
		local:     opts.Local,
		id:        id,
		policy:    opts.Policy,
		format:    format,
		legacy:    opts.Format == FormatLegacy,
		substring: opts.SubstringMembership,
		atomicDir: opts.AtomicDirectory,
	}

	// defaults
	r.retries = coalesce(opts.MaxDirectoryRetries, DefaultMaxDirectoryRetries)
	r.log = coalesce[Logger](opts.Logger, NopLogger{})
	r.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if opts.Sizer != nil {
		r.sizer = opts.Sizer
	} else {
		r.sizer = byteLen
	}
	if r.local == nil {
		local, err := ristretto.New(ristretto.Config{IdleExpiry: opts.Policy.idle()})
		if err != nil {
			return nil, fmt.Errorf("twotier: default local tier: %w", err)
		}
		r.local = local
	}
	return r, nil
}

func validMachineID(id string) error {
	if strings.Contains(id, ";") || strings.Contains(id, slot.Marker) {
		return fmt.Errorf("%w: machine id %q must not contain %q or %q", ErrInvalidArgument, id, ";", slot.Marker)
	}
	return nil
}

// Cache returns the cache for name, building it on first use. Backend errors
// are returned as is and nothing is remembered, so a later call retries.
// After Close every call fails with ErrClosed.
func (r *Registry) Cache(name string) (Cache, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if c, ok := r.caches.Load(name); ok {
		return c.(*tiered), nil
	}
	v, err, _ := r.build.Do(name, func() (any, error) {
		if c, ok := r.caches.Load(name); ok {
			return c, nil
		}
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.closed.Load() {
			return nil, ErrClosed
		}
		c, err := r.open(name)
		if err != nil {
			return nil, err
		}
		r.caches.Store(name, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tiered), nil
}

func (r *Registry) open(name string) (*tiered, error) {
	shared, err := r.shared.Open(name)
	if err != nil {
		return nil, fmt.Errorf("twotier: open shared %q: %w", name, err)
	}
	local, err := r.local.Open(name)
	if err != nil {
		return nil, fmt.Errorf("twotier: open local %q: %w", name, err)
	}
	c := &tiered{
		name:       name,
		shared:     shared,
		local:      local,
		id:         r.id,
		policy:     r.policy,
		format:     r.format,
		legacy:     r.legacy,
		substring:  r.substring,
		sizer:      r.sizer,
		maxRetries: r.retries,
		log:        r.log,
		hooks:      r.hooks,
	}
	if r.atomicDir {
		if sw, ok := pr.SwapperOf(shared); ok {
			c.swapper = sw
		} else {
			r.log.Warn("shared store cannot compare-and-swap; directory joins are not atomic",
				Fields{"cache": name})
		}
	}
	return c, nil
}

// Names lists the cache names the shared backend knows about.
func (r *Registry) Names(ctx context.Context) ([]string, error) {
	return r.shared.Names(ctx)
}

// MachineID is the directory token of this process.
func (r *Registry) MachineID() string { return r.id }

func (r *Registry) Policy() Policy { return r.policy }

// Close releases the local backend, then the shared one.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	swapped := r.closed.CompareAndSwap(false, true)
	r.mu.Unlock()
	if !swapped {
		return nil
	}
	var errs []error
	if err := r.local.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("twotier: close local: %w", err))
	}
	if err := r.shared.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("twotier: close shared: %w", err))
	}
	return errors.Join(errs...)
}
