// Package asynchook moves twotier.Hooks calls off the hot path.
//
// Events are queued to a fixed pool of workers. When the queue is full the
// event is dropped and counted; the cache never blocks on a hook.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{JoinEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	reg, _ := twotier.New(twotier.Options{Shared: shared, Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/twotier"
)

type Hooks struct {
	inner   twotier.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards q against send-after-close
	closed  bool
	dropped atomic.Uint64
}

var _ twotier.Hooks = (*Hooks)(nil)

func New(inner twotier.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) DirectoryJoined(c, k, id string) { h.try(func() { h.inner.DirectoryJoined(c, k, id) }) }
func (h *Hooks) LocalMissOnValid(c, k string)    { h.try(func() { h.inner.LocalMissOnValid(c, k) }) }
func (h *Hooks) DirectoryConflict(c, k string, attempt int) {
	h.try(func() { h.inner.DirectoryConflict(c, k, attempt) })
}
func (h *Hooks) SizeMeasureFailed(c, k string, err error) {
	h.try(func() { h.inner.SizeMeasureFailed(c, k, err) })
}
func (h *Hooks) ForeignSlot(c, k string, err error) {
	h.try(func() { h.inner.ForeignSlot(c, k, err) })
}
