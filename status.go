package twotier

// LocalStatus is the freshness classification of a key, derived from one read
// of its shared slot.
type LocalStatus uint8

const (
	// StatusInvalid: the slot is missing, or it is a directory that does not
	// list this machine. The local copy (if any) must not be used.
	StatusInvalid LocalStatus = iota
	// StatusValid: the slot is a directory listing this machine.
	StatusValid
	// StatusUseRemote: the slot holds a real value.
	StatusUseRemote
)

func (s LocalStatus) String() string {
	switch s {
	case StatusInvalid:
		return "INVALID"
	case StatusValid:
		return "VALID"
	case StatusUseRemote:
		return "USE_REMOTE"
	default:
		return "UNKNOWN"
	}
}
