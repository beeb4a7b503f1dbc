package session

import "time"

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines link timing defaults for one serial connection.
type Config struct {
	BaudRate       int
	ReadTimeout    time.Duration
	PollInterval   time.Duration
	DiscoveryGrace time.Duration
	Backoff        BackoffConfig
}

// DefaultConfig matches the device firmware's 9600 baud serial setup.
func DefaultConfig() Config {
	return Config{
		BaudRate:       9600,
		ReadTimeout:    100 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		DiscoveryGrace: 50 * time.Millisecond,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.BaudRate <= 0 {
		c.BaudRate = d.BaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DiscoveryGrace <= 0 {
		c.DiscoveryGrace = d.DiscoveryGrace
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = d.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = d.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = d.Backoff.MaxDelay
	}
	return c
}
