// Package device holds the device profile that parameterizes every timeout and backoff
// used while claiming.
package device

import (
	"context"
	"regexp"
	"time"
)

// Profile is the only environment signal the claim core may depend on
type Profile int

const (
	// Standard is a desktop browser or an injected wallet with a reliable response channel
	Standard Profile = iota
	// Constrained is a mobile wallet app that is slow to become ready and may stall responses
	Constrained
)

func (p Profile) String() string {
	if p == Constrained {
		return "constrained"
	}
	return "standard"
}

// IsConstrained reports whether the profile needs the longer timings
func (p Profile) IsConstrained() bool {
	return p == Constrained
}

var mobileUserAgent = regexp.MustCompile(`(?i)android|iphone|ipad|ipod|mobile|blackberry|iemobile|opera mini|metamaskmobile|trust/|coinbasewallet`)

// FromUserAgent maps a user agent string to a profile
func FromUserAgent(userAgent string) Profile {
	if mobileUserAgent.MatchString(userAgent) {
		return Constrained
	}
	return Standard
}

// Timings is one set of timeouts and backoff constants
type Timings struct {
	// WarmupDelay is waited before the first send
	WarmupDelay time.Duration
	// SubmitTimeout bounds a single wallet send
	SubmitTimeout time.Duration
	// ExtendedSubmitTimeout bounds the one resend after a timeout
	ExtendedSubmitTimeout time.Duration
	// ConfirmTimeout bounds the wait for a receipt
	ConfirmTimeout time.Duration
	// ConfirmPollInterval is the first receipt poll interval, doubled after each poll
	ConfirmPollInterval time.Duration
	// RetryBackoff is the base of the exponential backoff between retryable send errors
	RetryBackoff time.Duration
	// RetryBackoffMax caps the exponential backoff
	RetryBackoffMax time.Duration
	// RetryJitter is the upper bound of the random jitter added to each backoff
	RetryJitter time.Duration
	// SyncBackoff is multiplied by the attempt number between metadata sync attempts
	SyncBackoff time.Duration
	// WarmupBackoff is multiplied by the attempt number between metadata warm-up polls
	WarmupBackoff time.Duration
}

// TimingSet holds the timings of both profiles
type TimingSet struct {
	Standard    Timings
	Constrained Timings
}

// For returns the timings of the given profile
func (s TimingSet) For(p Profile) Timings {
	if p.IsConstrained() {
		return s.Constrained
	}
	return s.Standard
}

// DefaultTimingSet returns production timings
func DefaultTimingSet() TimingSet {
	return TimingSet{
		Standard: Timings{
			WarmupDelay:           0,
			SubmitTimeout:         30 * time.Second,
			ExtendedSubmitTimeout: 60 * time.Second,
			ConfirmTimeout:        60 * time.Second,
			ConfirmPollInterval:   time.Second,
			RetryBackoff:          time.Second,
			RetryBackoffMax:       8 * time.Second,
			RetryJitter:           500 * time.Millisecond,
			SyncBackoff:           time.Second,
			WarmupBackoff:         2 * time.Second,
		},
		Constrained: Timings{
			WarmupDelay:           1500 * time.Millisecond,
			SubmitTimeout:         60 * time.Second,
			ExtendedSubmitTimeout: 120 * time.Second,
			ConfirmTimeout:        120 * time.Second,
			ConfirmPollInterval:   2 * time.Second,
			RetryBackoff:          2 * time.Second,
			RetryBackoffMax:       15 * time.Second,
			RetryJitter:           time.Second,
			SyncBackoff:           2 * time.Second,
			WarmupBackoff:         3 * time.Second,
		},
	}
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
