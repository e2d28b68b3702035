package slot

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func mustEncode(t *testing.T, f Format, s Slot) []byte {
	t.Helper()
	b, err := f.Encode(s)
	if err != nil {
		t.Fatalf("Encode(%+v): %v", s, err)
	}
	return b
}

func mustDecode(t *testing.T, f Format, b []byte) Slot {
	t.Helper()
	s, err := f.Decode(b)
	if err != nil {
		t.Fatalf("Decode(%q): %v", b, err)
	}
	return s
}

func equalMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLegacyDirectoryEncoding(t *testing.T) {
	cases := []struct {
		in   Slot
		want string
	}{
		{Directory("128"), "&IND&128;"},
		{Directory("129", "128"), "&IND&129;128;"},
		{Directory(), "&IND&"},
		{Value([]byte("real remote value")), "real remote value"},
	}
	for _, tc := range cases {
		got := mustEncode(t, Legacy, tc.in)
		if string(got) != tc.want {
			t.Fatalf("Encode(%+v) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestLegacyDecode(t *testing.T) {
	t.Run("directory_with_trailing_separator", func(t *testing.T) {
		s := mustDecode(t, Legacy, []byte("&IND&129;128;"))
		if s.Kind != KindDirectory || !equalMembers(s.Members, []string{"129", "128"}) {
			t.Fatalf("got %+v", s)
		}
	})
	t.Run("directory_without_trailing_separator", func(t *testing.T) {
		s := mustDecode(t, Legacy, []byte("&IND&128"))
		if !s.Has("128") {
			t.Fatalf("expected member 128 in %+v", s)
		}
	})
	t.Run("real_value", func(t *testing.T) {
		s := mustDecode(t, Legacy, []byte("xxx"))
		if s.Kind != KindValue || string(s.Value) != "xxx" {
			t.Fatalf("got %+v", s)
		}
	})
	t.Run("marker_not_at_start_is_a_value", func(t *testing.T) {
		s := mustDecode(t, Legacy, []byte("prefix&IND&128;"))
		if s.Kind != KindValue {
			t.Fatalf("expected value, got %+v", s)
		}
	})
}

func TestLegacyRejectsSeparatorInMember(t *testing.T) {
	if _, err := Legacy.Encode(Directory("a;b")); err == nil {
		t.Fatalf("expected error on member containing separator")
	}
	if _, err := Legacy.Encode(Directory("")); err == nil {
		t.Fatalf("expected error on empty member")
	}
}

func TestJoin(t *testing.T) {
	s := Directory("129").Join("128")
	if !equalMembers(s.Members, []string{"129", "128"}) {
		t.Fatalf("join append: %v", s.Members)
	}
	again := s.Join("128")
	if !equalMembers(again.Members, s.Members) {
		t.Fatalf("join should be idempotent: %v", again.Members)
	}
	fromValue := Value([]byte("v")).Join("128")
	if fromValue.Kind != KindDirectory || !equalMembers(fromValue.Members, []string{"128"}) {
		t.Fatalf("join on value: %+v", fromValue)
	}
}

func TestJoinDoesNotAliasInput(t *testing.T) {
	// spare capacity would let a naive append alias the two results
	base := Slot{Kind: KindDirectory, Members: append(make([]string, 0, 4), "a", "b")}
	c := base.Join("c")
	d := base.Join("d")
	if c.Members[2] != "c" || d.Members[2] != "d" {
		t.Fatalf("joins aliased: %v %v", c.Members, d.Members)
	}
}

func TestHasIsExact(t *testing.T) {
	s := Directory("128")
	if s.Has("12") {
		t.Fatalf("Has must not match substrings")
	}
	if Value([]byte("128")).Has("128") {
		t.Fatalf("a value has no members")
	}
}

func TestTokens(t *testing.T) {
	if got := Tokens([]byte("&IND&1;;2;")); !equalMembers(got, []string{"1", "2"}) {
		t.Fatalf("tokens: %v", got)
	}
	if got := Tokens([]byte("xxx")); !equalMembers(got, []string{"xxx"}) {
		t.Fatalf("tokens of raw value: %v", got)
	}
}

func TestFramedRoundTrip(t *testing.T) {
	cases := []Slot{
		Value(nil),
		Value([]byte("hello")),
		Value([]byte("&IND&128;")), // marker collision is harmless when framed
		Directory(),
		Directory("128"),
		Directory("129", "128", strings.Repeat("z", 300)),
	}
	for _, in := range cases {
		got := mustDecode(t, Framed, mustEncode(t, Framed, in))
		if got.Kind != in.Kind {
			t.Fatalf("kind mismatch: got %v want %v", got.Kind, in.Kind)
		}
		if !bytes.Equal(got.Value, in.Value) && !(len(got.Value) == 0 && len(in.Value) == 0) {
			t.Fatalf("value mismatch: got %q want %q", got.Value, in.Value)
		}
		if !equalMembers(got.Members, in.Members) {
			t.Fatalf("members mismatch: got %v want %v", got.Members, in.Members)
		}
	}
}

func TestFramedRejectsTrailingBytes(t *testing.T) {
	for _, in := range []Slot{Value([]byte("x")), Directory("1")} {
		enc := append(mustEncode(t, Framed, in), 0xDE, 0xAD)
		if _, err := Framed.Decode(enc); err == nil {
			t.Fatalf("expected error on trailing bytes for %v", in.Kind)
		}
	}
}

func TestFramedCorruptHeaders(t *testing.T) {
	enc := mustEncode(t, Framed, Value([]byte("abc")))

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Framed.Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Framed.Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = 9
	if _, err := Framed.Decode(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen at offset 6..9
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[6:10], uint32(len("abc")+1))
	if _, err := Framed.Decode(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, err := Framed.Decode([]byte("plain bytes")); err == nil {
		t.Fatalf("expected error on unframed input")
	}
}

func TestFramedDirectoryBogusCount(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(KindDirectory))
	var u2 [2]byte
	binary.BigEndian.PutUint16(u2[:], 0xFFFF)
	buf.Write(u2[:])
	if _, err := Framed.Decode(buf.Bytes()); err == nil {
		t.Fatalf("expected error on count without members")
	}
}

func TestFramedMemberLengthValidation(t *testing.T) {
	if _, err := Framed.Encode(Directory("")); err == nil {
		t.Fatalf("expected error on empty member")
	}
	if _, err := Framed.Encode(Directory(strings.Repeat("a", 0x10000))); err == nil {
		t.Fatalf("expected error on member length > 0xFFFF")
	}
	if _, err := Framed.Encode(Directory(strings.Repeat("b", 0xFFFF))); err != nil {
		t.Fatalf("boundary member length should succeed: %v", err)
	}
}
