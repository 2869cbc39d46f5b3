// Package config loads the engine's YAML configuration.
//
// Every tunable has a default; a missing file or empty section falls
// back to defaults, and Validate catches values that would misconfigure
// the engine (e.g. a confirm buffer at or above the countdown).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML decoding of strings like "3s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(td)
	return nil
}

// Std converts back to time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the engine configuration.
type Config struct {
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
	Resolver ResolverConfig `yaml:"resolver"`
	Protocol ProtocolConfig `yaml:"protocol"`
}

// RedisConfig locates the KV store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig bounds the resolution cache.
type CacheConfig struct {
	Size int      `yaml:"size"`
	TTL  Duration `yaml:"ttl"`
}

// LogConfig bounds the per-user adjustment log.
type LogConfig struct {
	// MaxLength is the per-user log bound; appends trim beyond it.
	MaxLength int64 `yaml:"max_length"`
}

// ResolverConfig tunes date resolution.
type ResolverConfig struct {
	// Window is how many recent log entries are read per member.
	Window int64 `yaml:"window"`

	// Fanout caps concurrent per-member log fetches.
	Fanout int `yaml:"fanout"`

	// CutoffYear is the oldest plausible self-reported year.
	CutoffYear int `yaml:"cutoff_year"`
}

// ProtocolConfig tunes the two-phase countdown.
type ProtocolConfig struct {
	Countdown     Duration `yaml:"countdown"`
	InitiateDelay Duration `yaml:"initiate_delay"`
	ConfirmBuffer Duration `yaml:"confirm_buffer"`
	ResetDelay    Duration `yaml:"reset_delay"`
	TokenTTL      Duration `yaml:"token_ttl"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Redis: RedisConfig{Addr: "localhost:6379"},
		Cache: CacheConfig{Size: 512, TTL: Duration(5 * time.Minute)},
		Log:   LogConfig{MaxLength: 1000},
		Resolver: ResolverConfig{
			Window:     300,
			Fanout:     8,
			CutoffYear: 2000,
		},
		Protocol: ProtocolConfig{
			Countdown:     Duration(3 * time.Second),
			InitiateDelay: Duration(150 * time.Millisecond),
			ConfirmBuffer: Duration(250 * time.Millisecond),
			ResetDelay:    Duration(1500 * time.Millisecond),
			TokenTTL:      Duration(30 * time.Second),
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr must be set")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("config: cache.size must be positive")
	}
	if c.Log.MaxLength <= 0 {
		return fmt.Errorf("config: log.max_length must be positive")
	}
	if c.Resolver.Window <= 0 || c.Resolver.Fanout <= 0 {
		return fmt.Errorf("config: resolver.window and resolver.fanout must be positive")
	}
	if c.Protocol.ConfirmBuffer.Std() >= c.Protocol.Countdown.Std() {
		return fmt.Errorf("config: protocol.confirm_buffer must be shorter than the countdown")
	}
	if c.Protocol.TokenTTL.Std() <= c.Protocol.Countdown.Std() {
		return fmt.Errorf("config: protocol.token_ttl must outlive the countdown")
	}
	return nil
}
