package twotier

import (
	"bytes"
	"context"
	"strings"

	"github.com/unkn0wn-root/twotier/internal/slot"
	pr "github.com/unkn0wn-root/twotier/provider"
)

// tiered coordinates one shared store and one local store under a cache name.
type tiered struct {
	name   string
	shared pr.Store
	local  pr.Store

	id        string
	policy    Policy
	format    slot.Format
	legacy    bool
	substring bool
	sizer     SizeFunc

	swapper    pr.Swapper // nil => read-modify-write joins
	maxRetries int

	log   Logger
	hooks Hooks
}

var _ Cache = (*tiered)(nil)

func (c *tiered) Name() string { return c.shared.Name() }
func (c *tiered) Native() any  { return c.shared.Native() }

// classify maps a shared read to a LocalStatus. For StatusUseRemote it also
// returns the real value, unwrapped from its framing.
func (c *tiered) classify(key string, raw []byte, ok bool) (LocalStatus, []byte) {
	if !ok {
		return StatusInvalid, nil
	}
	if c.substring && c.legacy {
		if !bytes.Contains(raw, []byte(slot.Marker)) {
			return StatusUseRemote, raw
		}
		if bytes.Contains(raw, []byte(c.id)) {
			return StatusValid, nil
		}
		return StatusInvalid, nil
	}

	s, err := c.format.Decode(raw)
	if err != nil {
		c.hooks.ForeignSlot(c.name, key, err)
		return StatusInvalid, nil
	}
	if s.Kind == slot.KindValue {
		return StatusUseRemote, s.Value
	}
	if c.member(s) {
		return StatusValid, nil
	}
	return StatusInvalid, nil
}

func (c *tiered) member(s slot.Slot) bool {
	if !c.substring {
		return s.Has(c.id)
	}
	for _, m := range s.Members {
		if strings.Contains(m, c.id) {
			return true
		}
	}
	return false
}

func (c *tiered) Status(ctx context.Context, key string) (LocalStatus, error) {
	raw, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		return StatusInvalid, err
	}
	st, _ := c.classify(key, raw, ok)
	return st, nil
}

func (c *tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	st, remote := c.classify(key, raw, ok)
	return c.resolve(st, remote, func() ([]byte, bool, error) {
		v, ok, err := c.local.Get(ctx, key)
		if err == nil && !ok {
			c.hooks.LocalMissOnValid(c.name, key)
		}
		return v, ok, err
	})
}

func (c *tiered) GetOrLoad(ctx context.Context, key string, load pr.LoadFunc) ([]byte, bool, error) {
	raw, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	st, remote := c.classify(key, raw, ok)
	return c.resolve(st, remote, func() ([]byte, bool, error) {
		v, err := c.local.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
			c.hooks.LocalMissOnValid(c.name, key)
			return load(ctx)
		})
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	})
}

// resolve dispatches on st. local is only invoked for StatusValid.
func (c *tiered) resolve(st LocalStatus, remote []byte, local func() ([]byte, bool, error)) ([]byte, bool, error) {
	switch st {
	case StatusUseRemote:
		return remote, true, nil
	case StatusValid:
		return local()
	case StatusInvalid:
		return nil, false, nil
	}
	return nil, false, ErrUnknownStatus
}

// eligible applies the policy to a write. The size gate is only measured
// when it is configured.
func (c *tiered) eligible(key string, value []byte) bool {
	if !c.policy.AllowsName(c.name) {
		return false
	}
	if c.policy.MinLocalSize <= 0 {
		return true
	}
	size := 0
	if value != nil {
		n, err := c.sizer(value)
		if err != nil {
			c.log.Error("size measure failed; treating value as empty",
				Fields{"cache": c.name, "key": key, "err": err})
			c.hooks.SizeMeasureFailed(c.name, key, err)
		} else {
			size = n
		}
	}
	return c.policy.AllowsSize(size)
}

func (c *tiered) Put(ctx context.Context, key string, value []byte) error {
	if c.eligible(key, value) {
		if err := c.join(ctx, key); err != nil {
			return err
		}
		return c.local.Put(ctx, key, value)
	}
	enc, err := c.format.Encode(slot.Value(value))
	if err != nil {
		return err
	}
	return c.shared.Put(ctx, key, enc)
}

func (c *tiered) PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	if c.eligible(key, value) {
		if err := c.join(ctx, key); err != nil {
			return nil, false, err
		}
		return c.local.PutIfAbsent(ctx, key, value)
	}
	enc, err := c.format.Encode(slot.Value(value))
	if err != nil {
		return nil, false, err
	}
	prev, loaded, err := c.shared.PutIfAbsent(ctx, key, enc)
	if err != nil || !loaded {
		return nil, loaded, err
	}
	if st, remote := c.classify(key, prev, true); st == StatusUseRemote {
		return remote, true, nil
	}
	return nil, true, nil
}

func (c *tiered) Evict(ctx context.Context, key string) error {
	sharedErr := c.shared.Evict(ctx, key)
	localErr := c.local.Evict(ctx, key)
	return tierErr("evict", c.name, key, sharedErr, localErr)
}

func (c *tiered) Clear(ctx context.Context) error {
	localErr := c.local.Clear(ctx)
	sharedErr := c.shared.Clear(ctx)
	return tierErr("clear", c.name, "", sharedErr, localErr)
}
