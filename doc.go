// Package twotier puts a process-local cache tier in front of a shared cache
// tier and decides, per key, whether this process's local copy may be served.
//
// Freshness is tracked in the shared slot itself. Small or excluded values are
// written to the shared tier as they are. Values routed to the local tier leave
// a directory behind in the shared slot: the list of machines whose local copy
// was written after the slot last changed.
//
//	shared slot                 read on machine 128
//	-----------                 -------------------
//	(missing)                   miss
//	"raw bytes"                 "raw bytes" (shared value, local untouched)
//	"&IND&129;128;"             local tier value
//	"&IND&129;"                 miss (local untouched)
//
// Any process that overwrites the slot with a real value, or evicts it,
// implicitly invalidates every local copy.
//
// Components:
//   - provider.Backend: byte stores opened by cache name (ristretto is the
//     default local tier; redis, bigcache and memstore are the others; traced
//     decorates any of them).
//   - Registry: one Cache per name, built once.
//   - Typed[V] with a codec.Codec[V]: (de)serializes V <-> []byte.
//
// Consistency is best effort. Directory joins race unless
// Options.AtomicDirectory is set with a shared store that can compare-and-swap,
// and the local tier expires entries on its own clock, so a directory can list
// a machine that has already dropped its copy (reported as a miss).
//
// Usage:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	shared, _ := tierredis.New(tierredis.Config{Client: rdb, KeyPrefix: "app:"})
//	reg, err := twotier.New(twotier.Options{Shared: shared})
//	if err != nil { ... }
//	users, _ := reg.Cache("users")
//	typed := twotier.NewTyped[User](users, codec.JSON[User]{})
//	_ = typed.Put(ctx, "42", u)
package twotier
