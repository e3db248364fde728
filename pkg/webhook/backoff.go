package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before retry number attempt (starting at 1).
type Backoff interface {
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per attempt, capped at Max.
// Jitter spreads each delay by up to ±Jitter of its value.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	initial := cmpOr(e.Initial, time.Second)
	maxDelay := cmpOr(e.Max, 30*time.Second)
	mult := e.Multiplier
	if mult <= 0 {
		mult = 2
	}

	d := float64(initial) * math.Pow(mult, float64(attempt-1))
	if e.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*e.Jitter
	}
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	return time.Duration(d)
}

// FixedBackoff waits the same interval before every retry.
type FixedBackoff time.Duration

func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(f)
}

func cmpOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
