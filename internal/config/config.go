package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/midikiti/internal/protocol/session"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the resolved mkctl runtime configuration.
type Config struct {
	Port           string
	BaudRate       int
	ReadTimeout    time.Duration
	PollInterval   time.Duration
	DiscoveryGrace time.Duration
	HTTPAddr       string
	CorsOrigins    []string
	APIToken       string
	Console        bool
	Reconnect      bool
	Backoff        session.BackoffConfig
}

// Default returns the configuration used when no file overrides a key.
func Default() Config {
	link := session.DefaultConfig()
	return Config{
		Port:           "",
		BaudRate:       link.BaudRate,
		ReadTimeout:    link.ReadTimeout,
		PollInterval:   link.PollInterval,
		DiscoveryGrace: link.DiscoveryGrace,
		HTTPAddr:       "",
		CorsOrigins:    []string{"http://localhost:3000"},
		APIToken:       "",
		Console:        true,
		Reconnect:      false,
		Backoff:        link.Backoff,
	}
}

// SessionConfig projects the link timing fields.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		BaudRate:       c.BaudRate,
		ReadTimeout:    c.ReadTimeout,
		PollInterval:   c.PollInterval,
		DiscoveryGrace: c.DiscoveryGrace,
		Backoff:        c.Backoff,
	}
}

type fileConfig struct {
	Port           string      `toml:"port"`
	BaudRate       int         `toml:"baud_rate"`
	ReadTimeout    string      `toml:"read_timeout"`
	PollInterval   string      `toml:"poll_interval"`
	DiscoveryGrace string      `toml:"discovery_grace"`
	HTTPAddr       string      `toml:"http_addr"`
	CorsOrigins    []string    `toml:"cors_origins"`
	APIToken       string      `toml:"api_token"`
	Console        bool        `toml:"console"`
	Reconnect      bool        `toml:"reconnect"`
	Backoff        fileBackoff `toml:"backoff"`
}

type fileBackoff struct {
	Initial    string  `toml:"initial"`
	Multiplier float64 `toml:"multiplier"`
	Max        string  `toml:"max"`
	Jitter     bool    `toml:"jitter"`
}

// Load overlays the keys defined in path onto Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud_rate") {
		cfg.BaudRate = raw.BaudRate
	}
	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"read_timeout"}, raw.ReadTimeout, &cfg.ReadTimeout},
		{[]string{"poll_interval"}, raw.PollInterval, &cfg.PollInterval},
		{[]string{"discovery_grace"}, raw.DiscoveryGrace, &cfg.DiscoveryGrace},
		{[]string{"backoff", "initial"}, raw.Backoff.Initial, &cfg.Backoff.InitialDelay},
		{[]string{"backoff", "max"}, raw.Backoff.Max, &cfg.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dst = v
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("api_token") {
		cfg.APIToken = strings.TrimSpace(raw.APIToken)
	}
	if meta.IsDefined("console") {
		cfg.Console = raw.Console
	}
	if meta.IsDefined("reconnect") {
		cfg.Reconnect = raw.Reconnect
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Backoff.Jitter = raw.Backoff.Jitter
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.BaudRate <= 0 {
		return fmt.Errorf("%w: baud_rate must be positive", ErrInvalidConfig)
	}
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read_timeout must be positive", ErrInvalidConfig)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	}
	if cfg.DiscoveryGrace <= 0 {
		return fmt.Errorf("%w: discovery_grace must be positive", ErrInvalidConfig)
	}
	if cfg.Backoff.InitialDelay <= 0 {
		return fmt.Errorf("%w: backoff.initial must be positive", ErrInvalidConfig)
	}
	if cfg.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: backoff.multiplier must be >= 1", ErrInvalidConfig)
	}
	if cfg.Backoff.MaxDelay < cfg.Backoff.InitialDelay {
		return fmt.Errorf("%w: backoff.max below backoff.initial", ErrInvalidConfig)
	}
	if addr := cfg.HTTPAddr; addr != "" && !strings.Contains(addr, ":") {
		return fmt.Errorf("%w: http_addr %q needs host:port or :port", ErrInvalidConfig, addr)
	}
	return nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		if v := strings.TrimSpace(o); v != "" {
			out = append(out, v)
		}
	}
	return out
}
