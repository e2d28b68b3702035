package twotier

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The protocol calls them on hot paths.
type Hooks interface {
	// This machine was added to the directory of key.
	DirectoryJoined(cache, key, machineID string)

	// A compare-and-swap directory join lost a race and will retry.
	// attempt starts at 1.
	DirectoryConflict(cache, key string, attempt int)

	// The directory lists this machine but the local tier no longer holds the
	// key (local idle expiry outran the shared entry). The read reports a miss.
	LocalMissOnValid(cache, key string)

	// The value size could not be measured; the value was treated as size 0.
	SizeMeasureFailed(cache, key string, err error)

	// The shared slot could not be decoded in the configured format.
	// It is read as a directory without this machine.
	ForeignSlot(cache, key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) DirectoryJoined(string, string, string)  {}
func (NopHooks) DirectoryConflict(string, string, int)   {}
func (NopHooks) LocalMissOnValid(string, string)         {}
func (NopHooks) SizeMeasureFailed(string, string, error) {}
func (NopHooks) ForeignSlot(string, string, error)       {}
