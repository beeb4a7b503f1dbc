package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the wait before reconnect attempt n (1-based).
// The delay starts at InitialDelay, grows by Multiplier per attempt and
// stops at MaxDelay. With Jitter it is drawn from [d/2, d), so a jittered
// wait never exceeds MaxDelay. A nil rng yields the lower bound.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	d := cfg.InitialDelay
	m := math.Max(cfg.Multiplier, 1)
	for n := 1; n < attempt && m > 1; n++ {
		next := float64(d) * m
		if cfg.MaxDelay > 0 && next >= float64(cfg.MaxDelay) {
			d = cfg.MaxDelay
			break
		}
		if next >= math.MaxInt64 {
			break
		}
		d = time.Duration(next)
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if !cfg.Jitter {
		return d
	}
	half := d / 2
	if rng == nil || d-half <= 0 {
		return half
	}
	return half + time.Duration(rng.Int63n(int64(d-half)))
}
