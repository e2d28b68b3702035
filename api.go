package twotier

import (
	"context"

	"github.com/unkn0wn-root/twotier/internal/slot"
	pr "github.com/unkn0wn-root/twotier/provider"
)

// Cache is one named two-tier cache. Values are raw bytes; use Typed for a
// codec-backed view.
type Cache interface {
	// Name and Native describe the shared tier.
	Name() string
	Native() any

	// Get reads the shared slot once and resolves it: a real value is returned
	// as is, a directory listing this machine is served from the local tier,
	// anything else is a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// GetOrLoad is Get where a directory listing this machine defers to the
	// local tier's GetOrLoad. A miss on the shared tier does not run load.
	GetOrLoad(ctx context.Context, key string, load pr.LoadFunc) (value []byte, ok bool, err error)

	// Status classifies key without touching the local tier.
	Status(ctx context.Context, key string) (LocalStatus, error)

	// Put writes value to the local tier and joins this machine to the
	// directory when the policy allows; otherwise it writes the shared tier.
	Put(ctx context.Context, key string, value []byte) error

	// PutIfAbsent follows the same routing as Put and applies the
	// if-absent rule in whichever tier receives the value. When the shared
	// slot holds a directory the key counts as present and existing is nil.
	PutIfAbsent(ctx context.Context, key string, value []byte) (existing []byte, loaded bool, err error)

	// Evict removes key from the shared tier, then from the local tier.
	Evict(ctx context.Context, key string) error

	// Clear empties the local tier, then the shared tier.
	Clear(ctx context.Context) error
}

// SlotFormat selects how shared slots are encoded.
type SlotFormat uint8

const (
	// FormatLegacy marks directories with the "&IND&" prefix and stores real
	// values raw. Compatible with existing deployments; a real value that
	// starts with the marker is misread as a directory.
	FormatLegacy SlotFormat = iota
	// FormatFramed tags both variants in a binary header. All writers of a
	// shared tier must agree on it.
	FormatFramed
)

func (f SlotFormat) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatFramed:
		return "framed"
	default:
		return "unknown"
	}
}

func (f SlotFormat) codec() (slot.Format, bool) {
	switch f {
	case FormatLegacy:
		return slot.Legacy, true
	case FormatFramed:
		return slot.Framed, true
	default:
		return nil, false
	}
}

// Options configure a Registry.
// Only Shared is required; others have sensible defaults.
type Options struct {
	// Required
	Shared pr.Backend // system of record, visible to every process

	Local     pr.Backend // nil => ristretto with Policy.IdleExpiry
	MachineID string     // "" => machineid.Detect()
	Policy    Policy
	Format    SlotFormat // default FormatLegacy
	Sizer     SizeFunc   // nil => len(value)
	Logger    Logger     // nil => NopLogger
	Hooks     Hooks      // nil => NopHooks

	// AtomicDirectory joins directories with compare-and-swap when the shared
	// store supports it. Default is a plain read-modify-write, where two
	// machines joining at once can drop one another.
	AtomicDirectory     bool
	MaxDirectoryRetries int // 0 => DefaultMaxDirectoryRetries

	// SubstringMembership tests machine ids by substring containment on the
	// raw slot text instead of exact directory tokens. Id "12" then matches a
	// directory holding "128".
	SubstringMembership bool
}
