// Package config loads the tiercache server configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListen    = ":8080"
	DefaultNamespace = "tiercache"
	DefaultLoadTTL   = 5 * time.Minute
	DefaultGenTTL    = 24 * time.Hour
	DefaultRedisURL  = "redis://localhost:6379/0"
)

type Config struct {
	Listen    string        `yaml:"listen"`
	Namespace string        `yaml:"namespace"`
	Codec     string        `yaml:"codec"`     // json | cbor | msgpack
	LoadTTL   time.Duration `yaml:"load_ttl"`  // ttl for values produced by the loader
	LocalTTL  time.Duration `yaml:"local_ttl"` // hybrid L1 cap; 0 => same as L2

	Limits Limits `yaml:"limits"`
	Local  Local  `yaml:"local"`
	Remote Remote `yaml:"remote"`
	Log    Log    `yaml:"log"`
}

type Limits struct {
	MaxKeyLength    int `yaml:"max_key_length"`
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
}

type Local struct {
	MaxCost     int64 `yaml:"max_cost"`
	NumCounters int64 `yaml:"num_counters"`
}

type Remote struct {
	Driver      string        `yaml:"driver"`      // redis | bigcache
	URL         string        `yaml:"url"`         // redis only
	Generations string        `yaml:"generations"` // local | redis
	GenTTL      time.Duration `yaml:"gen_ttl"`

	BigCache BigCache `yaml:"bigcache"`
}

type BigCache struct {
	LifeWindow         time.Duration `yaml:"life_window"`
	Shards             int           `yaml:"shards"`
	MaxEntrySize       int           `yaml:"max_entry_size"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb"`
}

type Log struct {
	Backend string `yaml:"backend"` // zap | logrus | slog
	Level   string `yaml:"level"`   // debug | info | warn | error
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads and validates the YAML file at path. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults and validates. Unknown keys are rejected.
func Parse(b []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	c.Listen = coalesce(c.Listen, DefaultListen)
	c.Namespace = coalesce(c.Namespace, DefaultNamespace)
	c.Codec = coalesce(strings.ToLower(c.Codec), "json")
	c.LoadTTL = coalesce(c.LoadTTL, DefaultLoadTTL)
	c.Remote.Driver = coalesce(strings.ToLower(c.Remote.Driver), "redis")
	if c.Remote.Driver == "redis" {
		c.Remote.URL = coalesce(c.Remote.URL, DefaultRedisURL)
		c.Remote.Generations = coalesce(strings.ToLower(c.Remote.Generations), "redis")
	} else {
		c.Remote.Generations = coalesce(strings.ToLower(c.Remote.Generations), "local")
	}
	c.Remote.GenTTL = coalesce(c.Remote.GenTTL, DefaultGenTTL)
	c.Log.Backend = coalesce(strings.ToLower(c.Log.Backend), "zap")
	c.Log.Level = coalesce(strings.ToLower(c.Log.Level), "info")
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.LoadTTL < 0 {
		errs = append(errs, errors.New("load_ttl must not be negative"))
	}
	if c.LocalTTL < 0 {
		errs = append(errs, errors.New("local_ttl must not be negative"))
	}
	if c.Limits.MaxKeyLength < 0 || c.Limits.MaxPayloadBytes < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	if c.Local.MaxCost < 0 || c.Local.NumCounters < 0 {
		errs = append(errs, errors.New("local.max_cost and local.num_counters must not be negative"))
	}
	if !oneOf(c.Codec, "json", "cbor", "msgpack") {
		errs = append(errs, fmt.Errorf("codec %q: want json, cbor or msgpack", c.Codec))
	}
	switch c.Remote.Driver {
	case "redis":
	case "bigcache":
		if c.Remote.Generations == "redis" {
			errs = append(errs, errors.New("remote.generations=redis requires remote.driver=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("remote.driver %q: want redis or bigcache", c.Remote.Driver))
	}
	if !oneOf(c.Remote.Generations, "local", "redis") {
		errs = append(errs, fmt.Errorf("remote.generations %q: want local or redis", c.Remote.Generations))
	}
	if !oneOf(c.Log.Backend, "zap", "logrus", "slog") {
		errs = append(errs, fmt.Errorf("log.backend %q: want zap, logrus or slog", c.Log.Backend))
	}
	if !oneOf(c.Log.Level, "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func oneOf(s string, opts ...string) bool {
	for _, o := range opts {
		if s == o {
			return true
		}
	}
	return false
}

func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
