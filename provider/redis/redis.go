// Package redis is the shared-tier provider.Backend on go-redis.
//
// Slots live under <prefix><name>::<key>. Cache names are recorded in the
// set <prefix>names the first time a store writes, so Names reflects every
// process that ever wrote to the cluster, not only this one.
package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/twotier/internal/util"
	pr "github.com/unkn0wn-root/twotier/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

var errSwapMismatch = errors.New("redis provider: swap mismatch")

const scanCount = 512

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this backend exclusively owns the client

	// KeyPrefix namespaces every key written by this backend (e.g. "app:prod:").
	KeyPrefix string
	// EntryTTL bounds slot retention in Redis. 0 = no expiry.
	EntryTTL time.Duration
	// Fixed restricts Open to these names. Empty = any name.
	Fixed []string
}

type Backend struct {
	rdb         goredis.UniversalClient
	closeClient bool
	prefix      string
	ttl         time.Duration
	fixed       map[string]struct{}
}

var _ pr.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	b := &Backend{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		prefix:      cfg.KeyPrefix,
		ttl:         cfg.EntryTTL,
	}
	if b.ttl < 0 {
		b.ttl = 0
	}
	if len(cfg.Fixed) > 0 {
		b.fixed = make(map[string]struct{}, len(cfg.Fixed))
		for _, n := range cfg.Fixed {
			b.fixed[n] = struct{}{}
		}
	}
	return b, nil
}

func (b *Backend) namesKey() string { return b.prefix + "names" }

func (b *Backend) Open(name string) (pr.Store, error) {
	if err := util.ValidName(name); err != nil {
		return nil, fmt.Errorf("redis provider: %q: %w", name, err)
	}
	if b.fixed != nil {
		if _, ok := b.fixed[name]; !ok {
			return nil, fmt.Errorf("redis provider: %q: %w", name, pr.ErrUnknownCache)
		}
	}
	return &Store{b: b, name: name}, nil
}

func (b *Backend) Names(ctx context.Context) ([]string, error) {
	names, err := b.rdb.SMembers(ctx, b.namesKey()).Result()
	if err != nil && err != goredis.Nil {
		return nil, err
	}
	for n := range b.fixed {
		names = append(names, n)
	}
	sort.Strings(names)
	out := names[:0]
	for i, n := range names {
		if i == 0 || n != names[i-1] {
			out = append(out, n)
		}
	}
	return out, nil
}

// Close releases the underlying redis client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (b *Backend) Close(context.Context) error {
	if b.closeClient {
		if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// Store is one cache name on Redis.
type Store struct {
	b    *Backend
	name string

	registered atomic.Bool
}

var (
	_ pr.Store   = (*Store)(nil)
	_ pr.Swapper = (*Store)(nil)
)

func (s *Store) Name() string { return s.name }
func (s *Store) Native() any  { return s.b.rdb }

func (s *Store) key(k string) string { return util.SlotKey(s.b.prefix, s.name, k) }

// register records the cache name in the names set. Failures are retried on
// the next write; concurrent first writers may both SADD, which is harmless.
func (s *Store) register(ctx context.Context) {
	if s.registered.Load() {
		return
	}
	if err := s.b.rdb.SAdd(ctx, s.b.namesKey(), s.name).Err(); err == nil {
		s.registered.Store(true)
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.b.rdb.Get(ctx, s.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (s *Store) GetOrLoad(ctx context.Context, key string, load pr.LoadFunc) ([]byte, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	v, err = load(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Put(ctx, key, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.register(ctx)
	return s.b.rdb.Set(ctx, s.key(key), value, s.b.ttl).Err()
}

// PutIfAbsent uses SETNX; when the key exists its current value is read back.
// If the key vanishes between the two commands the SETNX is retried.
func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	s.register(ctx)
	k := s.key(key)
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := s.b.rdb.SetNX(ctx, k, value, s.b.ttl).Result()
		if err != nil {
			return nil, false, err
		}
		if ok {
			return nil, false, nil
		}
		cur, err := s.b.rdb.Get(ctx, k).Bytes()
		if err == goredis.Nil {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return cur, true, nil
	}
	return nil, false, fmt.Errorf("redis provider: putIfAbsent %q: key kept flapping", key)
}

// CompareAndSwap runs WATCH/GET/MULTI/SET/EXEC. A concurrent write to the key
// aborts the transaction and reports swapped=false.
func (s *Store) CompareAndSwap(ctx context.Context, key string, old []byte, oldExists bool, next []byte) (bool, error) {
	s.register(ctx)
	k := s.key(key)
	err := s.b.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		exists := true
		if err == goredis.Nil {
			exists = false
		} else if err != nil {
			return err
		}
		if exists != oldExists || (exists && !bytes.Equal(cur, old)) {
			return errSwapMismatch
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, k, next, s.b.ttl)
			return nil
		})
		return err
	}, k)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errSwapMismatch), errors.Is(err, goredis.TxFailedErr):
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) Evict(ctx context.Context, key string) error {
	return s.b.rdb.Del(ctx, s.key(key)).Err()
}

// Clear deletes every slot of this cache with SCAN MATCH. On a cluster each
// master is scanned. Not atomic: keys written during the scan may survive.
func (s *Store) Clear(ctx context.Context) error {
	pattern := util.NamePattern(s.b.prefix, s.name)
	if cc, ok := s.b.rdb.(*goredis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			return scanDelete(ctx, node, pattern)
		})
	}
	return scanDelete(ctx, s.b.rdb, pattern)
}

func scanDelete(ctx context.Context, c goredis.Cmdable, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			// one DEL per key: keys of a batch may hash to different slots
			_, err := c.Pipelined(ctx, func(p goredis.Pipeliner) error {
				for _, k := range keys {
					p.Del(ctx, k)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
