package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Protobuf serializes proto messages. Deterministic marshaling keeps map
// fields stable so equal messages produce equal bytes and equal sizes.
type Protobuf[T proto.Message] struct {
	new func() T // constructor for a concrete message (e.g., func() *mypb.User { return &mypb.User{} })
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

var marshal = proto.MarshalOptions{Deterministic: true}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return marshal.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.new == nil {
		var zero T
		return zero, errors.New("codec: protobuf constructor is nil; use NewProtobuf")
	}
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
