// Package ristretto is a local-tier provider.Backend on dgraph-io/ristretto.
//
// Every write and every hit re-sets the entry with the idle TTL, so entries
// expire after a period without access. Ristretto may refuse a write under
// pressure; the entry is then simply absent, which twotier reads as a local
// miss.
package ristretto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	pr "github.com/unkn0wn-root/twotier/provider"
)

type Config struct {
	IdleExpiry  time.Duration // 0 => no TTL
	NumCounters int64         // 0 => 1e5
	MaxCost     int64         // bytes per cache name; 0 => 64 MiB
	BufferItems int64         // 0 => 64
	Metrics     bool
}

func (c Config) ristretto() (*rc.Config, error) {
	conf := &rc.Config{
		NumCounters: c.NumCounters,
		MaxCost:     c.MaxCost,
		BufferItems: c.BufferItems,
		Metrics:     c.Metrics,
	}
	if conf.NumCounters == 0 {
		conf.NumCounters = 1e5
	}
	if conf.MaxCost == 0 {
		conf.MaxCost = 64 << 20
	}
	if conf.BufferItems == 0 {
		conf.BufferItems = 64
	}
	if conf.NumCounters < 0 || conf.MaxCost < 0 || conf.BufferItems < 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	return conf, nil
}

type Backend struct {
	cfg Config

	mu     sync.Mutex
	stores map[string]*Store
}

var _ pr.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	if _, err := cfg.ristretto(); err != nil {
		return nil, err
	}
	return &Backend{cfg: cfg, stores: make(map[string]*Store)}, nil
}

func (b *Backend) Open(name string) (pr.Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.stores[name]; ok {
		return s, nil
	}
	conf, err := b.cfg.ristretto()
	if err != nil {
		return nil, err
	}
	c, err := rc.NewCache(conf)
	if err != nil {
		return nil, fmt.Errorf("ristretto: open %q: %w", name, err)
	}
	s := &Store{name: name, c: c, ttl: b.cfg.IdleExpiry}
	b.stores[name] = s
	return s, nil
}

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
	for n, s := range b.stores {
		s.c.Close()
		delete(b.stores, n)
	}
	return nil
}

type Store struct {
	name string
	c    *rc.Cache
	ttl  time.Duration

	mu sync.Mutex // serializes writes, evictions and idle refreshes
	sf singleflight.Group
}

var _ pr.Store = (*Store)(nil)

func (s *Store) Name() string { return s.name }
func (s *Store) Native() any  { return s.c }

func cost(v []byte) int64 {
	if len(v) == 0 {
		return 1
	}
	return int64(len(v))
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// drop unexpected entry shape
		s.c.Del(key)
		return nil, false, nil
	}
	if s.ttl > 0 {
		s.touch(key, b)
	}
	return bytes.Clone(b), true, nil
}

// touch re-sets key with a fresh TTL; this ristretto version has no call that
// only extends a TTL. The write happens under mu and only while key still
// holds b, so a Get racing a Put or Evict cannot restore what it read.
// Re-setting an existing key updates the store synchronously.
func (s *Store) touch(key string, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.c.Get(key)
	if !ok {
		return
	}
	if cur, _ := v.([]byte); cur == nil || !bytes.Equal(cur, b) {
		return
	}
	s.c.SetWithTTL(key, b, cost(b), s.ttl)
}

func (s *Store) GetOrLoad(ctx context.Context, key string, load pr.LoadFunc) ([]byte, error) {
	if v, ok, _ := s.Get(ctx, key); ok {
		return v, nil
	}
	v, err, _ := s.sf.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		_ = s.Put(ctx, key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Put waits for the write buffer so the value is visible to the next Get.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value)
	return nil
}

func (s *Store) set(key string, value []byte) {
	value = bytes.Clone(value)
	if value == nil {
		value = []byte{}
	}
	s.c.SetWithTTL(key, value, cost(value), s.ttl)
	s.c.Wait()
}

func (s *Store) PutIfAbsent(_ context.Context, key string, value []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.c.Get(key); ok {
		if b, _ := v.([]byte); b != nil {
			return bytes.Clone(b), true, nil
		}
	}
	s.set(key, value)
	return nil, false, nil
}

// Evict waits for the delete to reach the policy so that an earlier pending
// set cannot re-add key afterwards.
func (s *Store) Evict(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Del(key)
	s.c.Wait()
	return nil
}

func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Clear()
	return nil
}

// Metrics exposes ristretto counters when Config.Metrics is set.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
