package util

import (
	"errors"
	"strings"
)

// NameSep separates the cache name from the key in namespaced storage keys.
const NameSep = "::"

// ErrInvalidName is returned for cache names that would make slot keys
// ambiguous.
var ErrInvalidName = errors.New("cache name must not contain \"::\" or end with \":\"")

// ValidName rejects names containing NameSep or ending with ':'. For every
// other name the first NameSep after the prefix is the name/key boundary, so
// no two (name, key) pairs share a slot key and NamePattern matches only the
// slots of its own cache.
func ValidName(name string) error {
	if strings.Contains(name, NameSep) || strings.HasSuffix(name, ":") {
		return ErrInvalidName
	}
	return nil
}

// SlotKey returns the storage key of key in cache name: <prefix><name>::<key>.
func SlotKey(prefix, name, key string) string {
	return prefix + name + NameSep + key
}

// NamePattern returns a glob matching every slot key of cache name.
// Glob metacharacters in prefix and name are escaped.
func NamePattern(prefix, name string) string {
	return escapeGlob(prefix+name+NameSep) + "*"
}

func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
