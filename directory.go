package twotier

import (
	"bytes"
	"context"
	"fmt"

	"github.com/unkn0wn-root/twotier/internal/slot"
)

// join adds this machine to the directory stored in the shared slot of key.
//
// Without a swapper this is a read followed by a write with nothing in
// between: two machines joining the same key at the same time can both read
// the old directory, and the later write drops the earlier machine. That
// machine then reads StatusInvalid for the key until it writes it again.
func (c *tiered) join(ctx context.Context, key string) error {
	if c.swapper != nil {
		return c.joinSwap(ctx, key)
	}
	raw, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		return err
	}
	next, changed, err := c.joined(key, raw, ok)
	if err != nil || !changed {
		return err
	}
	if err := c.shared.Put(ctx, key, next); err != nil {
		return err
	}
	c.joinedLog(key, 1)
	return nil
}

func (c *tiered) joinSwap(ctx context.Context, key string) error {
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		raw, ok, err := c.shared.Get(ctx, key)
		if err != nil {
			return err
		}
		next, changed, err := c.joined(key, raw, ok)
		if err != nil || !changed {
			return err
		}
		swapped, err := c.swapper.CompareAndSwap(ctx, key, raw, ok, next)
		if err != nil {
			return err
		}
		if swapped {
			c.joinedLog(key, attempt)
			return nil
		}
		c.log.Debug("directory join lost a race; retrying",
			Fields{"cache": c.name, "key": key, "attempt": attempt})
		c.hooks.DirectoryConflict(c.name, key, attempt)
	}
	return fmt.Errorf("%w: %s/%q after %d attempts", ErrDirectoryContention, c.name, key, c.maxRetries)
}

func (c *tiered) joinedLog(key string, attempts int) {
	c.log.Debug("joined directory",
		Fields{"cache": c.name, "key": key, "machine": c.id, "attempts": attempts})
	c.hooks.DirectoryJoined(c.name, key, c.id)
}

// joined computes the slot bytes after adding this machine. changed=false
// means the slot already counts this machine as a member.
//
// A slot holding a real value becomes a directory: the value is dropped,
// since the writer's own copy now lives in its local tier.
func (c *tiered) joined(key string, raw []byte, ok bool) ([]byte, bool, error) {
	if !ok {
		next, err := c.format.Encode(slot.Directory(c.id))
		return next, err == nil, err
	}

	if c.substring && c.legacy {
		if bytes.Contains(raw, []byte(c.id)) {
			return nil, false, nil
		}
		// keep whatever text was there as leading tokens
		members := append(slot.Tokens(raw), c.id)
		next, err := c.format.Encode(slot.Directory(members...))
		return next, err == nil, err
	}

	cur, err := c.format.Decode(raw)
	if err != nil {
		c.hooks.ForeignSlot(c.name, key, err)
		cur = slot.Directory()
	}
	if cur.Kind == slot.KindDirectory && c.member(cur) {
		return nil, false, nil
	}
	next, err := c.format.Encode(cur.Join(c.id))
	return next, err == nil, err
}
