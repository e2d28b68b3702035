// Package memstore is an in-process provider.Backend.
//
// Entries expire after a period without access (expire-after-access): every
// read pushes the deadline forward, writes set it. Unlike the ristretto and
// bigcache tiers the deadline is exact and nothing is dropped under memory
// pressure. A single Backend shared by several registries also works as an
// in-memory shared tier, which is how multi-process behavior is tested.
//
// Stored and returned slices are copies; callers may modify them.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	pr "github.com/unkn0wn-root/twotier/provider"
)

type Config struct {
	// IdleExpiry evicts entries not accessed for this long. 0 = never.
	IdleExpiry time.Duration
	// CleanupInterval runs a background purge of idle entries. 0 = lazy only.
	CleanupInterval time.Duration
	// Fixed restricts Open to these names. Empty = any name.
	Fixed []string
	// Clock overrides time.Now (tests).
	Clock func() time.Time
}

type Backend struct {
	cfg   Config
	fixed map[string]struct{}

	mu     sync.Mutex
	stores map[string]*Store
	closed bool
}

var _ pr.Backend = (*Backend)(nil)

func NewBackend(cfg Config) *Backend {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	b := &Backend{cfg: cfg, stores: make(map[string]*Store)}
	if len(cfg.Fixed) > 0 {
		b.fixed = make(map[string]struct{}, len(cfg.Fixed))
		for _, n := range cfg.Fixed {
			b.fixed[n] = struct{}{}
		}
	}
	return b
}

// Open returns the store for name, creating it on first use.
// Every call for the same name returns the same *Store.
func (b *Backend) Open(name string) (pr.Store, error) {
	if b.fixed != nil {
		if _, ok := b.fixed[name]; !ok {
			return nil, fmt.Errorf("memstore: %q: %w", name, pr.ErrUnknownCache)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("memstore: backend closed")
	}
	if s, ok := b.stores[name]; ok {
		return s, nil
	}
	s := newStore(name, b.cfg)
	b.stores[name] = s
	return s, nil
}

func (b *Backend) Names(context.Context) ([]string, error) {
	b.mu.Lock()
	seen := make(map[string]struct{}, len(b.stores)+len(b.fixed))
	for n := range b.stores {
		seen[n] = struct{}{}
	}
	b.mu.Unlock()
	for n := range b.fixed {
		seen[n] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Backend) Close(context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	stores := make([]*Store, 0, len(b.stores))
	for _, s := range b.stores {
		stores = append(stores, s)
	}
	b.mu.Unlock()

	for _, s := range stores {
		s.stop()
	}
	return nil
}

type entry struct {
	v        []byte
	expireAt time.Time // zero => no idle expiry
}

// Store is one named in-memory cache.
type Store struct {
	name string
	idle time.Duration
	now  func() time.Time

	mu sync.Mutex
	m  map[string]*entry
	sf singleflight.Group

	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var (
	_ pr.Store   = (*Store)(nil)
	_ pr.Swapper = (*Store)(nil)
)

func newStore(name string, cfg Config) *Store {
	s := &Store{
		name: name,
		idle: cfg.IdleExpiry,
		now:  cfg.Clock,
		m:    make(map[string]*entry),
	}
	if cfg.CleanupInterval > 0 && cfg.IdleExpiry > 0 {
		s.ticker = time.NewTicker(cfg.CleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.PurgeExpired()
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Store) stop() {
	s.stopOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
	})
}

func (s *Store) Name() string { return s.name }
func (s *Store) Native() any  { return s }

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, e := range s.m {
		if !s.expired(e, now) {
			n++
		}
	}
	return n
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

func (s *Store) deadline(now time.Time) time.Time {
	if s.idle <= 0 {
		return time.Time{}
	}
	return now.Add(s.idle)
}

// lookup must be called with s.mu held. A hit slides the idle deadline.
func (s *Store) lookup(key string) (*entry, bool) {
	e, ok := s.m[key]
	if !ok {
		return nil, false
	}
	now := s.now()
	if s.expired(e, now) {
		delete(s.m, key)
		return nil, false
	}
	e.expireAt = s.deadline(now)
	return e, true
}

// set must be called with s.mu held.
func (s *Store) set(key string, value []byte) {
	s.m[key] = &entry{v: bytes.Clone(value), expireAt: s.deadline(s.now())}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(e.v), true, nil
}

// GetOrLoad runs at most one load per key at a time; concurrent callers for
// the same key share its result.
func (s *Store) GetOrLoad(ctx context.Context, key string, load pr.LoadFunc) ([]byte, error) {
	if v, ok, _ := s.Get(ctx, key); ok {
		return v, nil
	}
	v, err, _ := s.sf.Do(key, func() (any, error) {
		if v, ok, _ := s.Get(ctx, key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.set(key, v)
		s.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.set(key, value)
	s.mu.Unlock()
	return nil
}

func (s *Store) PutIfAbsent(_ context.Context, key string, value []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.lookup(key); ok {
		return bytes.Clone(e.v), true, nil
	}
	s.set(key, value)
	return nil, false, nil
}

func (s *Store) CompareAndSwap(_ context.Context, key string, old []byte, oldExists bool, next []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if ok != oldExists || (ok && !bytes.Equal(e.v, old)) {
		return false, nil
	}
	s.set(key, next)
	return true, nil
}

func (s *Store) Evict(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	s.m = make(map[string]*entry)
	s.mu.Unlock()
	return nil
}

// PurgeExpired drops every entry past its idle deadline.
func (s *Store) PurgeExpired() {
	now := s.now()
	s.mu.Lock()
	for k, e := range s.m {
		if s.expired(e, now) {
			delete(s.m, k)
		}
	}
	s.mu.Unlock()
}
