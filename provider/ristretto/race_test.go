package ristretto

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

// readers hammers key with Get until the returned stop is called.
func readers(t *testing.T, s *Store, key string, n int) (stop func()) {
	t.Helper()
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_, _, _ = s.Get(context.Background(), key)
				}
			}
		}()
	}
	return func() { close(done); wg.Wait() }
}

func TestConcurrentGetDoesNotRevertPut(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, time.Minute)
	stop := readers(t, s, "k", 4)
	defer stop()

	stale := 0
	const rounds = 20000
	for i := 0; i < rounds; i++ {
		want := strconv.Itoa(i)
		if err := s.Put(ctx, "k", []byte(want)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if v, ok, _ := s.Get(ctx, "k"); !ok || string(v) != want {
			stale++
		}
	}
	if stale != 0 {
		t.Fatalf("%d/%d reads after Put returned an older value", stale, rounds)
	}
}

func TestConcurrentGetDoesNotResurrectEvicted(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, time.Minute)
	stop := readers(t, s, "k", 4)
	defer stop()

	const rounds = 5000
	for i := 0; i < rounds; i++ {
		_ = s.Put(ctx, "k", []byte(strconv.Itoa(i)))
		if err := s.Evict(ctx, "k"); err != nil {
			t.Fatalf("Evict: %v", err)
		}
		if v, ok, _ := s.Get(ctx, "k"); ok {
			t.Fatalf("round %d: evicted key came back as %q", i, v)
		}
	}
}
