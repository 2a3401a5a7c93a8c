package submitter

import (
	"math"
	"time"
)

// Backoff returns base * 2^retry capped at max, plus up to jitter of random delay.
// rnd returns a value in [0, 1).
func Backoff(retry int, base, max, jitter time.Duration, rnd func() float64) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(retry))) * base
	if backoff > max || backoff <= 0 {
		backoff = max
	}
	if jitter > 0 && rnd != nil {
		backoff += time.Duration(rnd() * float64(jitter))
	}
	return backoff
}
