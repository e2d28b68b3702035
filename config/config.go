// Package config loads process configuration for twotier binaries from
// TWOTIER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/unkn0wn-root/twotier"
	"github.com/unkn0wn-root/twotier/machineid"
)

// Prefix is prepended to every variable name below.
const Prefix = "TWOTIER_"

type Config struct {
	// Policy
	EnableLocalCache         bool   `env:"ENABLE_LOCAL_CACHE" envDefault:"true"`
	ExpireSecondsAfterAccess int    `env:"EXPIRE_SECONDS_AFTER_ACCESS" envDefault:"600"`
	LocalCachePrefix         string `env:"LOCAL_CACHE_PREFIX"`
	MinimumLocalKeySize      int    `env:"MINIMUM_LOCAL_KEY_SIZE" envDefault:"0"`

	// Tiers
	LocalBackend   string        `env:"LOCAL_BACKEND" envDefault:"ristretto"`
	RedisAddrs     []string      `env:"REDIS_ADDRS" envSeparator:"," envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string        `env:"REDIS_KEY_PREFIX"`
	RedisEntryTTL  time.Duration `env:"REDIS_ENTRY_TTL"`

	// Protocol
	SlotFormat          string `env:"SLOT_FORMAT" envDefault:"legacy"`
	AtomicDirectory     bool   `env:"ATOMIC_DIRECTORY"`
	SubstringMembership bool   `env:"SUBSTRING_MEMBERSHIP"`

	// Identity
	MachineID     string `env:"MACHINE_ID"`
	MachineIDMode string `env:"MACHINE_ID_MODE" envDefault:"ipsum"`
	MachineIDFile string `env:"MACHINE_ID_FILE" envDefault:"/var/lib/twotier/machine-id"`

	// Observability and surfaces
	LogBackend   string `env:"LOG_BACKEND" envDefault:"slog"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	AdminAddr    string `env:"ADMIN_ADDR" envDefault:":8080"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// ParseEnv loads TWOTIER_* environment variables into target.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("config: %s%s=%q, want one of %s", Prefix, field, v, strings.Join(allowed, "|"))
}

// Validate rejects unknown enum values and negative sizes.
func (c Config) Validate() error {
	checks := []error{
		oneOf("LOCAL_BACKEND", c.LocalBackend, "memory", "bigcache", "ristretto"),
		oneOf("SLOT_FORMAT", c.SlotFormat, "legacy", "framed"),
		oneOf("MACHINE_ID_MODE", c.MachineIDMode, "ipsum", "hashed", "persistent"),
		oneOf("LOG_BACKEND", c.LogBackend, "slog", "zap", "logrus"),
		oneOf("LOG_LEVEL", strings.ToLower(c.LogLevel), "debug", "info", "warn", "error"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.ExpireSecondsAfterAccess < 0 {
		return fmt.Errorf("config: %sEXPIRE_SECONDS_AFTER_ACCESS must be >= 0", Prefix)
	}
	if len(c.RedisAddrs) == 0 {
		return fmt.Errorf("config: %sREDIS_ADDRS is empty", Prefix)
	}
	return nil
}

// Policy converts the policy fields.
func (c Config) Policy() twotier.Policy {
	return twotier.Policy{
		DisableLocalCache: !c.EnableLocalCache,
		IdleExpiry:        time.Duration(c.ExpireSecondsAfterAccess) * time.Second,
		NamePrefix:        c.LocalCachePrefix,
		MinLocalSize:      c.MinimumLocalKeySize,
	}
}

func (c Config) Format() twotier.SlotFormat {
	if c.SlotFormat == "framed" {
		return twotier.FormatFramed
	}
	return twotier.FormatLegacy
}

// ResolveMachineID returns MACHINE_ID when set, otherwise derives one the way
// MACHINE_ID_MODE says.
func (c Config) ResolveMachineID() (string, error) {
	if c.MachineID != "" {
		return c.MachineID, nil
	}
	switch c.MachineIDMode {
	case "hashed":
		return machineid.Hashed()
	case "persistent":
		return machineid.Persistent(c.MachineIDFile)
	default:
		return machineid.Detect()
	}
}
