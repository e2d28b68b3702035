// Package slot encodes what a shared-tier slot holds: either a real value or a
// freshness directory listing the machines whose local copy is trusted.
//
// Two wire formats exist. Legacy marks a directory with the "&IND&" prefix and
// stores real values raw, so a real value starting with the marker is
// misread as a directory. Framed tags both variants explicitly.
package slot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
)

// Marker prefixes a directory in the legacy format.
const Marker = "&IND&"

const sep = ";"

var ErrCorrupt = errors.New("twotier: corrupt slot")

type Kind uint8

const (
	KindValue Kind = iota + 1
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Slot is the decoded content of one shared-tier entry.
// Value is set for KindValue, Members for KindDirectory.
type Slot struct {
	Kind    Kind
	Value   []byte
	Members []string
}

func Value(b []byte) Slot { return Slot{Kind: KindValue, Value: b} }

func Directory(members ...string) Slot { return Slot{Kind: KindDirectory, Members: members} }

// Has reports whether id is an exact member of a directory.
func (s Slot) Has(id string) bool {
	if s.Kind != KindDirectory {
		return false
	}
	for _, m := range s.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Join returns a directory with id appended. Joining a real value drops the
// value: the slot becomes a directory of id alone.
func (s Slot) Join(id string) Slot {
	if s.Kind != KindDirectory {
		return Directory(id)
	}
	if s.Has(id) {
		return s
	}
	members := make([]string, 0, len(s.Members)+1)
	members = append(members, s.Members...)
	return Directory(append(members, id)...)
}

// Format converts slots to and from stored bytes.
type Format interface {
	Encode(Slot) ([]byte, error)
	Decode([]byte) (Slot, error)
}

var (
	Legacy Format = legacyFormat{}
	Framed Format = framedFormat{}
)

// legacy: "&IND&" + ("<id>;")* for directories, raw bytes for values.
type legacyFormat struct{}

func (legacyFormat) Encode(s Slot) ([]byte, error) {
	switch s.Kind {
	case KindValue:
		return s.Value, nil
	case KindDirectory:
		var b strings.Builder
		b.WriteString(Marker)
		for _, m := range s.Members {
			if m == "" || strings.Contains(m, sep) {
				return nil, ErrCorrupt
			}
			b.WriteString(m)
			b.WriteString(sep)
		}
		return []byte(b.String()), nil
	default:
		return nil, ErrCorrupt
	}
}

func (legacyFormat) Decode(b []byte) (Slot, error) {
	if !bytes.HasPrefix(b, []byte(Marker)) {
		return Value(b), nil
	}
	return Directory(Tokens(b)...), nil
}

// Tokens splits the body of a legacy directory (marker optional) into its
// non-empty members. For a string without the marker the whole text is
// tokenized, which is how the legacy format treats a value it overwrites.
func Tokens(b []byte) []string {
	body := strings.TrimPrefix(string(b), Marker)
	parts := strings.Split(body, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

const (
	version byte = 1
)

var magic4 = [...]byte{'T', 'T', 'S', 'L'}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// framed:
//
//	value:     magic(4) | ver(1) | kind(1) | vlen(u32 be) | payload(vlen)
//	directory: magic(4) | ver(1) | kind(2) | n(u16 be) | (len(u16 be) | id(len)) * n
type framedFormat struct{}

func (framedFormat) Encode(s Slot) ([]byte, error) {
	var buf bytes.Buffer
	var u4 [4]byte
	var u2 [2]byte

	switch s.Kind {
	case KindValue:
		buf.Grow(4 + 1 + 1 + 4 + len(s.Value))
		buf.Write(magic4[:])
		buf.WriteByte(version)
		buf.WriteByte(byte(KindValue))
		binary.BigEndian.PutUint32(u4[:], uint32(len(s.Value)))
		buf.Write(u4[:])
		buf.Write(s.Value)
	case KindDirectory:
		if len(s.Members) > 0xFFFF {
			return nil, ErrCorrupt
		}
		buf.Write(magic4[:])
		buf.WriteByte(version)
		buf.WriteByte(byte(KindDirectory))
		binary.BigEndian.PutUint16(u2[:], uint16(len(s.Members)))
		buf.Write(u2[:])
		for _, m := range s.Members {
			if l := len(m); l == 0 || l > 0xFFFF {
				return nil, ErrCorrupt
			}
			binary.BigEndian.PutUint16(u2[:], uint16(len(m)))
			buf.Write(u2[:])
			buf.WriteString(m)
		}
	default:
		return nil, ErrCorrupt
	}
	return buf.Bytes(), nil
}

func (framedFormat) Decode(b []byte) (Slot, error) {
	const hdr = 4 + 1 + 1
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Slot{}, ErrCorrupt
	}
	off := hdr

	switch Kind(b[5]) {
	case KindValue:
		if off+4 > len(b) {
			return Slot{}, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen != len(b)-off {
			return Slot{}, ErrCorrupt
		}
		return Value(b[off:]), nil

	case KindDirectory:
		if off+2 > len(b) {
			return Slot{}, ErrCorrupt
		}
		n := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2

		// do not trust n for preallocation beyond what the buffer can hold
		members := make([]string, 0, min(n, (len(b)-off)/3))
		for i := 0; i < n; i++ {
			if off+2 > len(b) {
				return Slot{}, ErrCorrupt
			}
			l := int(binary.BigEndian.Uint16(b[off : off+2]))
			off += 2
			if l == 0 || l > len(b)-off {
				return Slot{}, ErrCorrupt
			}
			members = append(members, string(b[off:off+l]))
			off += l
		}
		if off != len(b) {
			return Slot{}, ErrCorrupt
		}
		return Directory(members...), nil

	default:
		return Slot{}, ErrCorrupt
	}
}
