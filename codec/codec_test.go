package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type user struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Age   int       `json:"age"`
	Since time.Time `json:"since"`
}

func sample() user {
	return user{ID: "1", Name: "Ada", Age: 36, Since: time.Date(1843, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestStructCodecs(t *testing.T) {
	cases := []struct {
		name  string
		codec Codec[user]
	}{
		{"json", JSON[user]{}},
		{"cbor", MustCBOR[user](CBOROptions{})},
		{"cbor deterministic", MustCBOR[user](CBOROptions{Deterministic: true})},
		{"msgpack", Msgpack[user]{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.codec.Encode(sample())
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := tc.codec.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !got.Since.Equal(sample().Since) || got.ID != "1" || got.Name != "Ada" || got.Age != 36 {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestCompactCodecsAreSmallerThanJSON(t *testing.T) {
	j, _ := JSON[user]{}.Encode(sample())
	m, _ := Msgpack[user]{}.Encode(sample())
	c, _ := MustCBOR[user](CBOROptions{}).Encode(sample())
	if len(m) >= len(j) || len(c) >= len(j) {
		t.Fatalf("sizes json=%d msgpack=%d cbor=%d", len(j), len(m), len(c))
	}
}

func TestMsgpackUsesJSONTags(t *testing.T) {
	b, _ := Msgpack[user]{}.Encode(sample())
	var m map[string]any
	if err := msgpack.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := m["name"]; !ok {
		t.Fatalf("expected json tag names, got keys %v", m)
	}
}

func TestProtobuf(t *testing.T) {
	pc := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := pc.Encode(wrapperspb.String("hello"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := pc.Decode(b)
	if err != nil || got.GetValue() != "hello" {
		t.Fatalf("Decode: %v %v", got, err)
	}

	var zero Protobuf[*wrapperspb.StringValue]
	if _, err := zero.Decode(b); err == nil {
		t.Fatalf("zero Protobuf must refuse to decode")
	}
}

func TestLimit(t *testing.T) {
	lc := Limit[string]{Inner: String{}, MaxEncode: 4, MaxDecode: 3}

	if _, err := lc.Encode("hello"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("encode over limit: %v", err)
	}
	if b, err := lc.Encode("four"); err != nil || string(b) != "four" {
		t.Fatalf("encode at limit: %q %v", b, err)
	}
	if _, err := lc.Decode([]byte("four")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("decode over limit: %v", err)
	}
	if s, err := lc.Decode([]byte("abc")); err != nil || s != "abc" {
		t.Fatalf("decode at limit: %q %v", s, err)
	}
	if _, err := (Limit[string]{Inner: String{}}).Encode("unbounded"); err != nil {
		t.Fatalf("disabled limit: %v", err)
	}
}

func TestSizer(t *testing.T) {
	size := Sizer[user](JSON[user]{})
	in, _ := Msgpack[user]{}.Encode(sample())
	if _, err := size(in); err == nil {
		t.Fatalf("msgpack bytes are not json; expected error")
	}
	j, _ := JSON[user]{}.Encode(sample())
	if n, err := size(j); err != nil || n != len(j) {
		t.Fatalf("size = %d err=%v", n, err)
	}
}
