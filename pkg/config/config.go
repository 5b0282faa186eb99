// Package config loads the engine configuration. TOML is the primary
// format; YAML is accepted as a fallback. Environment variables override
// file values so a supervisor can relocate the socket or database without
// editing config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Emotion holds the tunable constants of the emotional core. Durations are
// strings ("6h", "90m") so both formats stay readable.
type Emotion struct {
	ElasticityFactor float64 `toml:"elasticity_factor" yaml:"elasticity_factor"`
	MaxTrustStep     float64 `toml:"max_trust_step" yaml:"max_trust_step"`
	DecayHalfLife    string  `toml:"decay_half_life" yaml:"decay_half_life"`
}

// Config is the engine configuration.
type Config struct {
	ActorID    string `toml:"actor_id" yaml:"actor_id"`
	SocketPath string `toml:"socket_path" yaml:"socket_path"`
	DBPath     string `toml:"db_path" yaml:"db_path"`
	Workspace  string `toml:"workspace" yaml:"workspace"`

	DecayInterval string `toml:"decay_interval" yaml:"decay_interval"`
	ActionTimeout string `toml:"action_timeout" yaml:"action_timeout"`
	EventBuffer   int    `toml:"event_buffer" yaml:"event_buffer"`

	Emotion Emotion `toml:"emotion" yaml:"emotion"`
}

// Defaults returns the configuration for a warden home directory.
func Defaults(home string) Config {
	return Config{
		ActorID:       "primary",
		SocketPath:    filepath.Join(home, "warden.sock"),
		DBPath:        filepath.Join(home, "warden.db"),
		Workspace:     filepath.Join(home, "workspace"),
		DecayInterval: "1m",
		ActionTimeout: "30s",
		EventBuffer:   64,
		Emotion: Emotion{
			ElasticityFactor: 1.5,
			MaxTrustStep:     0.05,
			DecayHalfLife:    "6h",
		},
	}
}

// Load reads the config file for home, if any, applies environment
// overrides, and fills defaults. It looks for warden.toml first, then
// warden.yaml; a missing file is not an error.
func Load(home string) (Config, error) {
	cfg := Defaults(home)

	for _, name := range []string{"warden.toml", "warden.yaml", "warden.yml"} {
		path := filepath.Join(home, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := unmarshal(path, data, &cfg); err != nil {
			return cfg, err
		}
		break
	}

	applyEnv(&cfg)
	cfg = cfg.withDefaults(home)
	return cfg, nil
}

// LoadFile reads one explicit config file, applies environment overrides,
// and fills defaults relative to the file's directory.
func LoadFile(path string) (Config, error) {
	home := filepath.Dir(path)
	cfg := Defaults(home)
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := unmarshal(path, data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg.withDefaults(home), nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("WARDEN_ACTOR"); v != "" {
		cfg.ActorID = v
	}
	if v := os.Getenv("WARDEN_SOCKET"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("WARDEN_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("WARDEN_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
}

func (c Config) withDefaults(home string) Config {
	def := Defaults(home)
	if c.ActorID == "" {
		c.ActorID = def.ActorID
	}
	if c.SocketPath == "" {
		c.SocketPath = def.SocketPath
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.Workspace == "" {
		c.Workspace = def.Workspace
	}
	if c.DecayInterval == "" {
		c.DecayInterval = def.DecayInterval
	}
	if c.ActionTimeout == "" {
		c.ActionTimeout = def.ActionTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.Emotion.ElasticityFactor <= 0 {
		c.Emotion.ElasticityFactor = def.Emotion.ElasticityFactor
	}
	if c.Emotion.MaxTrustStep <= 0 {
		c.Emotion.MaxTrustStep = def.Emotion.MaxTrustStep
	}
	if c.Emotion.DecayHalfLife == "" {
		c.Emotion.DecayHalfLife = def.Emotion.DecayHalfLife
	}
	return c
}

// DecayIntervalDuration parses the decay ticker interval.
func (c Config) DecayIntervalDuration() (time.Duration, error) {
	return parseDuration("decay_interval", c.DecayInterval)
}

// ActionTimeoutDuration parses the per-action execution bound.
func (c Config) ActionTimeoutDuration() (time.Duration, error) {
	return parseDuration("action_timeout", c.ActionTimeout)
}

// DecayHalfLifeDuration parses the emotional decay half-life.
func (c Config) DecayHalfLifeDuration() (time.Duration, error) {
	return parseDuration("emotion.decay_half_life", c.Emotion.DecayHalfLife)
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config %s: must be positive, got %s", field, d)
	}
	return d, nil
}
