// Package codec converts typed values to the bytes twotier stores.
//
// The encoded length is what the size gate measures, so the codec also decides
// which values qualify for the local tier: a compact codec moves the boundary.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Sizer adapts a codec to twotier's size gate for callers that store
// pre-encoded values but want sizes measured on a different encoding.
func Sizer[V any](c Codec[V]) func([]byte) (int, error) {
	return func(b []byte) (int, error) {
		v, err := c.Decode(b)
		if err != nil {
			return 0, err
		}
		out, err := c.Encode(v)
		return len(out), err
	}
}
