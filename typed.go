package twotier

import (
	"context"

	c "github.com/unkn0wn-root/twotier/codec"
)

// Typed is a codec-backed view over a Cache. V is the caller's value type.
//
// Encoding happens before routing, so the size gate measures the encoded
// bytes. Encode errors leave both tiers untouched.
type Typed[V any] struct {
	cache Cache
	codec c.Codec[V]
}

func NewTyped[V any](cache Cache, codec c.Codec[V]) *Typed[V] {
	return &Typed[V]{cache: cache, codec: codec}
}

func (t *Typed[V]) Name() string { return t.cache.Name() }

// Cache returns the underlying byte-level cache.
func (t *Typed[V]) Cache() Cache { return t.cache }

func (t *Typed[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	b, ok, err := t.cache.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := t.codec.Decode(b)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// GetOrLoad runs loader only when the directory lists this machine and the
// local tier misses. The loaded value is stored locally.
func (t *Typed[V]) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (V, error)) (V, bool, error) {
	var zero V
	b, ok, err := t.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		return t.codec.Encode(v)
	})
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := t.codec.Decode(b)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (t *Typed[V]) Put(ctx context.Context, key string, value V) error {
	b, err := t.codec.Encode(value)
	if err != nil {
		return err
	}
	return t.cache.Put(ctx, key, b)
}

// PutIfAbsent returns the existing value when one is readable. loaded=true
// with a zero value means the key is held by a directory.
func (t *Typed[V]) PutIfAbsent(ctx context.Context, key string, value V) (V, bool, error) {
	var zero V
	b, err := t.codec.Encode(value)
	if err != nil {
		return zero, false, err
	}
	prev, loaded, err := t.cache.PutIfAbsent(ctx, key, b)
	if err != nil || !loaded || prev == nil {
		return zero, loaded, err
	}
	v, err := t.codec.Decode(prev)
	if err != nil {
		return zero, true, err
	}
	return v, true, nil
}

func (t *Typed[V]) Evict(ctx context.Context, key string) error { return t.cache.Evict(ctx, key) }
func (t *Typed[V]) Clear(ctx context.Context) error             { return t.cache.Clear(ctx) }
