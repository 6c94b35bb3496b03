package connection

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy computes the delay before reconnect attempt n (n >= 1).
// Implementations must be safe for concurrent use.
type BackoffStrategy interface {
	NextInterval(attempt uint) time.Duration
}

// FixedBackoff waits the same interval before every attempt. It is the
// default strategy.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(attempt uint) time.Duration {
	if attempt == 0 {
		return 0
	}
	return f.Interval
}

// ExponentialBackoff grows the delay geometrically with optional jitter:
// min(Initial * Multiplier^(n-1) * (1 ± Jitter), Max).
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (e ExponentialBackoff) NextInterval(attempt uint) time.Duration {
	if attempt == 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = time.Second
	}
	ceiling := e.MaxInterval
	if ceiling == 0 {
		ceiling = time.Minute
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}
	if interval > float64(ceiling) {
		interval = float64(ceiling)
	}
	return time.Duration(interval)
}

// DefaultExponentialBackoff starts from the reconnect interval and caps at
// one minute with 20% jitter.
func DefaultExponentialBackoff(initial time.Duration) BackoffStrategy {
	return ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     time.Minute,
		Multiplier:      2,
		JitterFactor:    0.2,
	}
}
