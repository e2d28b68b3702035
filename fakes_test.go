package twotier

import (
	"bytes"
	"context"
	"sort"
	"sync"

	pr "github.com/unkn0wn-root/twotier/provider"
)

// memStore is a counting in-memory store. Counters record every call so tests
// can assert which tier an operation touched.
type memStore struct {
	name string

	mu    sync.Mutex
	m     map[string][]byte
	calls map[string]int

	// injected failures by op name ("get", "put", "evict", "clear", ...)
	fail map[string]error
}

var _ pr.Store = (*memStore)(nil)

func newMemStore(name string) *memStore {
	return &memStore{name: name, m: map[string][]byte{}, calls: map[string]int{}, fail: map[string]error{}}
}

func (s *memStore) hit(op string) error {
	s.calls[op]++
	return s.fail[op]
}

func (s *memStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *memStore) raw(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return string(v), ok
}

func (s *memStore) seed(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = []byte(value)
}

func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *memStore) Name() string { return s.name }
func (s *memStore) Native() any  { return s.m }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("get"); err != nil {
		return nil, false, err
	}
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *memStore) GetOrLoad(ctx context.Context, key string, load pr.LoadFunc) ([]byte, error) {
	s.mu.Lock()
	if err := s.hit("get_or_load"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if v, ok := s.m[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()
	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.m[key] = v
	s.mu.Unlock()
	return v, nil
}

func (s *memStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("put"); err != nil {
		return err
	}
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) PutIfAbsent(_ context.Context, key string, value []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("put_if_absent"); err != nil {
		return nil, false, err
	}
	if v, ok := s.m[key]; ok {
		return v, true, nil
	}
	s.m[key] = append([]byte(nil), value...)
	return nil, false, nil
}

func (s *memStore) Evict(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("evict"); err != nil {
		return err
	}
	delete(s.m, key)
	return nil
}

func (s *memStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("clear"); err != nil {
		return err
	}
	s.m = map[string][]byte{}
	return nil
}

// swapStore adds compare-and-swap. The first `conflicts` swaps report a lost
// race after letting `interfere` mutate the slot.
type swapStore struct {
	*memStore
	conflicts int
	interfere func(m map[string][]byte)
}

var _ pr.Swapper = (*swapStore)(nil)

func (s *swapStore) CompareAndSwap(_ context.Context, key string, old []byte, oldExists bool, next []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("cas"); err != nil {
		return false, err
	}
	if s.conflicts > 0 {
		s.conflicts--
		if s.interfere != nil {
			s.interfere(s.m)
		}
		return false, nil
	}
	cur, ok := s.m[key]
	if ok != oldExists || (ok && !bytes.Equal(cur, old)) {
		return false, nil
	}
	s.m[key] = append([]byte(nil), next...)
	return true, nil
}

// memBackend opens memStores. All backends built with the same shared map see
// the same stores, which is how two simulated machines share a tier.
type memBackend struct {
	mu     sync.Mutex
	stores map[string]pr.Store
	opens  map[string]int
	wrap   func(*memStore) pr.Store
	fail   error
	closed int
}

var _ pr.Backend = (*memBackend)(nil)

func newMemBackend() *memBackend {
	return &memBackend{stores: map[string]pr.Store{}, opens: map[string]int{}}
}

func (b *memBackend) Open(name string) (pr.Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens[name]++
	if b.fail != nil {
		return nil, b.fail
	}
	if s, ok := b.stores[name]; ok {
		return s, nil
	}
	ms := newMemStore(name)
	var s pr.Store = ms
	if b.wrap != nil {
		s = b.wrap(ms)
	}
	b.stores[name] = s
	return s, nil
}

func (b *memBackend) store(name string) *memStore {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch s := b.stores[name].(type) {
	case *memStore:
		return s
	case *swapStore:
		return s.memStore
	}
	return nil
}

func (b *memBackend) openCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens[name]
}

func (b *memBackend) Names(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.stores))
	for n := range b.stores {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (b *memBackend) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

type event struct {
	kind, cache, key string
}

type recHooks struct {
	mu     sync.Mutex
	events []event
}

func (h *recHooks) add(kind, cache, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{kind, cache, key})
}

func (h *recHooks) count(kind string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (h *recHooks) DirectoryJoined(cache, key, _ string)       { h.add("joined", cache, key) }
func (h *recHooks) DirectoryConflict(cache, key string, _ int) { h.add("conflict", cache, key) }
func (h *recHooks) LocalMissOnValid(cache, key string)         { h.add("local_miss", cache, key) }
func (h *recHooks) SizeMeasureFailed(cache, key string, _ error) {
	h.add("size_failed", cache, key)
}
func (h *recHooks) ForeignSlot(cache, key string, _ error) { h.add("foreign", cache, key) }

type logLine struct {
	level, msg string
	f          Fields
}

type recLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *recLogger) add(level, msg string, f Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level, msg, f})
}

func (l *recLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, x := range l.lines {
		if x.level == level {
			n++
		}
	}
	return n
}

func (l *recLogger) Debug(msg string, f Fields) { l.add("debug", msg, f) }
func (l *recLogger) Info(msg string, f Fields)  { l.add("info", msg, f) }
func (l *recLogger) Warn(msg string, f Fields)  { l.add("warn", msg, f) }
func (l *recLogger) Error(msg string, f Fields) { l.add("error", msg, f) }
