package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/twotier"
	"github.com/unkn0wn-root/twotier/config"
	asynchook "github.com/unkn0wn-root/twotier/hooks/async"
	tierlogrus "github.com/unkn0wn-root/twotier/log/logrus"
	tierslog "github.com/unkn0wn-root/twotier/log/slog"
	tierzap "github.com/unkn0wn-root/twotier/log/zap"
	pr "github.com/unkn0wn-root/twotier/provider"
	"github.com/unkn0wn-root/twotier/provider/bigcache"
	"github.com/unkn0wn-root/twotier/provider/memstore"
	tierredis "github.com/unkn0wn-root/twotier/provider/redis"
	"github.com/unkn0wn-root/twotier/provider/ristretto"
	"github.com/unkn0wn-root/twotier/provider/traced"
	"github.com/unkn0wn-root/twotier/sloghooks"
)

type app struct {
	reg   *twotier.Registry
	log   twotier.Logger
	hooks *asynchook.Hooks
	sync  func()
}

func (a *app) close() {
	_ = a.reg.Close(context.Background())
	a.hooks.Close()
	a.sync()
}

func build(cfg config.Config) (*app, error) {
	id, err := cfg.ResolveMachineID()
	if err != nil {
		return nil, fmt.Errorf("machine id: %w", err)
	}
	log, hookLog, sync, err := newLogger(cfg.LogBackend, strings.ToLower(cfg.LogLevel))
	if err != nil {
		return nil, err
	}

	shared, err := tierredis.New(tierredis.Config{
		Client: goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    cfg.RedisAddrs,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		CloseClient: true,
		KeyPrefix:   cfg.RedisKeyPrefix,
		EntryTTL:    cfg.RedisEntryTTL,
	})
	if err != nil {
		return nil, err
	}
	local, err := newLocal(cfg)
	if err != nil {
		_ = shared.Close(context.Background())
		return nil, err
	}

	hooks := asynchook.New(sloghooks.New(hookLog, sloghooks.Options{JoinEvery: 100, LocalMissEvery: 10}), 1, 1024)
	reg, err := twotier.New(twotier.Options{
		Shared:              traced.Wrap(shared, traced.Options{Tier: "shared"}),
		Local:               traced.Wrap(local, traced.Options{Tier: "local"}),
		MachineID:           id,
		Policy:              cfg.Policy(),
		Format:              cfg.Format(),
		Logger:              log,
		Hooks:               hooks,
		AtomicDirectory:     cfg.AtomicDirectory,
		SubstringMembership: cfg.SubstringMembership,
	})
	if err != nil {
		hooks.Close()
		_ = local.Close(context.Background())
		_ = shared.Close(context.Background())
		return nil, err
	}
	return &app{reg: reg, log: log, hooks: hooks, sync: sync}, nil
}

func newLocal(cfg config.Config) (pr.Backend, error) {
	idle := cfg.Policy().IdleExpiry
	if idle <= 0 {
		idle = twotier.DefaultIdleExpiry
	}
	switch cfg.LocalBackend {
	case "bigcache":
		return bigcache.New(bigcache.Config{IdleExpiry: idle}), nil
	case "memory":
		return memstore.NewBackend(memstore.Config{IdleExpiry: idle, CleanupInterval: idle}), nil
	default:
		return ristretto.New(ristretto.Config{IdleExpiry: idle})
	}
}

// newLogger returns the cache logger, the slog logger hooks report to, and a
// flush func.
func newLogger(backend, level string) (twotier.Logger, *slog.Logger, func(), error) {
	var sl slog.Level
	if err := sl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, nil, fmt.Errorf("log level %q: %w", level, err)
	}
	hookLog := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: sl}))

	switch backend {
	case "zap":
		zl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("log level %q: %w", level, err)
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zl)
		l, err := zc.Build()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("zap: %w", err)
		}
		return tierzap.New(l), hookLog, func() { _ = l.Sync() }, nil
	case "logrus":
		ll, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("log level %q: %w", level, err)
		}
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetFormatter(&logrus.JSONFormatter{})
		l.SetLevel(ll)
		return tierlogrus.New(l), hookLog, func() {}, nil
	default:
		return tierslog.New(hookLog), hookLog, func() {}, nil
	}
}
