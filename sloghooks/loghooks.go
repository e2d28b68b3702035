// Package sloghooks implements twotier.Hooks on log/slog with sampling for the
// high-volume events and key redaction.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/twotier"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	JoinEvery      uint64
	LocalMissEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	joinCtr      atomic.Uint64
	localMissCtr atomic.Uint64
}

var _ twotier.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) DirectoryJoined(cache, key, machineID string) {
	if h.l == nil || !sample(h.opts.JoinEvery, &h.joinCtr) {
		return
	}
	h.l.Debug("twotier.directory_joined",
		"cache", cache,
		"key", h.redact(key),
		"machine", machineID)
}

func (h *Hooks) DirectoryConflict(cache, key string, attempt int) {
	if h.l == nil {
		return
	}
	h.l.Info("twotier.directory_conflict",
		"cache", cache,
		"key", h.redact(key),
		"attempt", attempt)
}

func (h *Hooks) LocalMissOnValid(cache, key string) {
	if h.l == nil || !sample(h.opts.LocalMissEvery, &h.localMissCtr) {
		return
	}
	h.l.Debug("twotier.local_miss_on_valid",
		"cache", cache,
		"key", h.redact(key))
}

func (h *Hooks) SizeMeasureFailed(cache, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("twotier.size_measure_failed",
		"cache", cache,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) ForeignSlot(cache, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("twotier.foreign_slot",
		"cache", cache,
		"key", h.redact(key),
		"err", err)
}
