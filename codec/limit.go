package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned by Limit when a payload exceeds its bound.
var ErrTooLarge = errors.New("codec: payload too large")

// Limit wraps another codec and bounds payload sizes.
// MaxDecode guards reads from the shared tier, which any process can write.
// MaxEncode refuses to produce values too large to cache at all.
// A bound <= 0 is disabled.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxEncode int
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.MaxEncode > 0 && len(b) > c.MaxEncode {
		return nil, fmt.Errorf("%w: encode %d > %d", ErrTooLarge, len(b), c.MaxEncode)
	}
	return b, nil
}

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: decode %d > %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
