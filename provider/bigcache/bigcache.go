// Package bigcache is a local-tier provider.Backend on allegro/bigcache.
//
// BigCache expires entries by write timestamp (LifeWindow), not by access.
// Hits re-set the entry, which refreshes its timestamp and turns LifeWindow
// into an idle window.
package bigcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"golang.org/x/sync/singleflight"

	pr "github.com/unkn0wn-root/twotier/provider"
)

type Config struct {
	IdleExpiry         time.Duration // LifeWindow; 0 => 10m
	CleanWindow        time.Duration // 0 => 1s
	Shards             int           // power of two; 0 => 64
	MaxEntriesInWindow int           // sizing hint; 0 => 1024
	MaxEntrySize       int           // sizing hint in bytes; 0 => 256
	HardMaxCacheSizeMB int           // per cache name; 0 = unlimited
}

func (c Config) bigcache() bc.Config {
	life := c.IdleExpiry
	if life <= 0 {
		life = 10 * time.Minute
	}
	conf := bc.DefaultConfig(life)
	conf.Shards = 64
	conf.MaxEntriesInWindow = 1024
	conf.MaxEntrySize = 256
	conf.Verbose = false
	if c.CleanWindow > 0 {
		conf.CleanWindow = c.CleanWindow
	}
	if c.Shards > 0 {
		conf.Shards = c.Shards
	}
	if c.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = c.MaxEntriesInWindow
	}
	if c.MaxEntrySize > 0 {
		conf.MaxEntrySize = c.MaxEntrySize
	}
	if c.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = c.HardMaxCacheSizeMB
	}
	return conf
}

// Backend owns one BigCache per cache name.
type Backend struct {
	cfg Config

	mu     sync.Mutex
	stores map[string]*Store
}

var _ pr.Backend = (*Backend)(nil)

func New(cfg Config) *Backend {
	return &Backend{cfg: cfg, stores: make(map[string]*Store)}
}

func (b *Backend) Open(name string) (pr.Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.stores[name]; ok {
		return s, nil
	}
	c, err := bc.New(context.Background(), b.cfg.bigcache())
	if err != nil {
		return nil, fmt.Errorf("bigcache: open %q: %w", name, err)
	}
	s := &Store{name: name, c: c}
	b.stores[name] = s
	return s, nil
}

// Names lists caches opened through this backend. The local tier is never the
// source of names for twotier; this exists for diagnostics.
func (b *Backend) Names(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.stores))
	for n := range b.stores {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Backend) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for n, s := range b.stores {
		if err := s.c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bigcache: close %q: %w", n, err))
		}
		delete(b.stores, n)
	}
	return errors.Join(errs...)
}

type Store struct {
	name string
	c    *bc.BigCache

	mu sync.Mutex // serializes writes, evictions and idle refreshes
	sf singleflight.Group
}

var _ pr.Store = (*Store)(nil)

func (s *Store) Name() string { return s.name }
func (s *Store) Native() any  { return s.c }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.touch(key, b)
	return b, true, nil
}

// touch re-sets key so it lives another idle window. It only writes while key
// still holds b: a Get racing a Put or Evict must not restore what it read.
func (s *Store) touch(key string, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.c.Get(key)
	if err != nil || !bytes.Equal(cur, b) {
		return
	}
	_ = s.c.Set(key, b)
}

func (s *Store) GetOrLoad(ctx context.Context, key string, load pr.LoadFunc) ([]byte, error) {
	if v, ok, err := s.Get(ctx, key); err != nil || ok {
		return v, err
	}
	v, err, _ := s.sf.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Put(ctx, key, v); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Set(key, value)
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, err := s.c.Get(key); err == nil {
		return b, true, nil
	} else if !errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, err
	}
	return nil, false, s.c.Set(key, value)
}

func (s *Store) Evict(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Reset()
}
