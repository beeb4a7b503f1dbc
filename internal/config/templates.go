package config

import (
	"fmt"
	"os"
	"strings"

	gotoml "github.com/pelletier/go-toml/v2"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "mkctl":
		return mkctlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Render encodes cfg in the same key layout Load reads.
func Render(cfg Config) ([]byte, error) {
	out, err := gotoml.Marshal(fileConfig{
		Port:           cfg.Port,
		BaudRate:       cfg.BaudRate,
		ReadTimeout:    cfg.ReadTimeout.String(),
		PollInterval:   cfg.PollInterval.String(),
		DiscoveryGrace: cfg.DiscoveryGrace.String(),
		HTTPAddr:       cfg.HTTPAddr,
		CorsOrigins:    cfg.CorsOrigins,
		APIToken:       cfg.APIToken,
		Console:        cfg.Console,
		Reconnect:      cfg.Reconnect,
		Backoff: fileBackoff{
			Initial:    cfg.Backoff.InitialDelay.String(),
			Multiplier: cfg.Backoff.Multiplier,
			Max:        cfg.Backoff.MaxDelay.String(),
			Jitter:     cfg.Backoff.Jitter,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return out, nil
}

const mkctlTemplate = `# serial device path; empty selects the first enumerated port
port = ""
baud_rate = 9600
read_timeout = "100ms"
poll_interval = "10ms"
discovery_grace = "50ms"

# status API; empty disables it
http_addr = "127.0.0.1:7070"
cors_origins = ["http://localhost:3000"]
# bearer token required for connect, push, refresh and value changes; empty leaves them open
api_token = ""

console = true
reconnect = true

[backoff]
initial = "250ms"
multiplier = 2.0
max = "5s"
jitter = true
`
