package redditcore

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultRateLimitWindow = 600 * time.Second

// defaultBaselineInterval and defaultBaselineBurst bound the token bucket
// that floors request pacing before any x-ratelimit-* header has been seen -
// a defensive cap on the initial burst a caller could otherwise send before
// the adaptive half of the limiter has anything to go on. 200/s with a burst
// of 20 is well under Reddit's documented per-minute ceilings but loose
// enough that it never becomes the binding constraint once headers arrive.
const (
	defaultBaselineInterval = 5 * time.Millisecond
	defaultBaselineBurst    = 20
)

// RateLimiter paces requests using the x-ratelimit-* headers Reddit attaches
// to every OAuth response, so a session backs off before it gets a 429
// rather than after. A golang.org/x/time/rate token bucket provides a
// baseline floor under that adaptive pacing; a fresh RateLimiter has seen no
// headers yet but still won't let an initial burst through unthrottled.
type RateLimiter struct {
	mu sync.Mutex

	window   time.Duration
	baseline *rate.Limiter

	remaining   float64
	used        float64
	haveHeaders bool

	nextRequest    time.Time
	resetTimestamp time.Time
}

// NewRateLimiter creates a RateLimiter. window is Reddit's rate-limit reset
// window (600 seconds in production); a zero window uses that default.
func NewRateLimiter(window time.Duration) *RateLimiter {
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		window:   window,
		baseline: rate.NewLimiter(rate.Every(defaultBaselineInterval), defaultBaselineBurst),
	}
}

// Delay blocks until the next request is safe to send, or ctx is canceled.
// It waits out the baseline token bucket first, then any additional delay
// the adaptive header tracking has computed.
func (r *RateLimiter) Delay(ctx context.Context) error {
	if err := r.baseline.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	next := r.nextRequest
	r.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Update folds the rate-limit headers from a response into the limiter's
// pacing decision. Missing or unparseable headers reset pacing to
// "no delay" rather than carrying stale state forward.
func (r *RateLimiter) Update(header http.Header) {
	remainingRaw := header.Get("x-ratelimit-remaining")
	usedRaw := header.Get("x-ratelimit-used")
	resetRaw := header.Get("x-ratelimit-reset")
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if remainingRaw == "" {
		r.nextRequest = now
		r.haveHeaders = false
		return
	}

	remaining, err := strconv.ParseFloat(remainingRaw, 64)
	if err != nil {
		r.nextRequest = now
		r.haveHeaders = false
		return
	}
	used, _ := strconv.ParseFloat(usedRaw, 64)
	resetSeconds, _ := strconv.ParseFloat(resetRaw, 64)
	resetAt := now.Add(time.Duration(resetSeconds * float64(time.Second)))

	var waitSeconds float64
	switch {
	case remaining <= 0:
		waitSeconds = resetSeconds
	case remaining <= used:
		waitSeconds = resetSeconds / remaining
	default:
		waitSeconds = 0
	}

	next := now.Add(time.Duration(waitSeconds * float64(time.Second)))
	// A fractional remaining budget (0 < remaining < 1) can make
	// reset/remaining overshoot the reset window itself; never pace a
	// request past the point the window resets and the budget replenishes.
	if remaining > 0 && remaining < 1 && next.After(resetAt) {
		next = resetAt
	}

	r.remaining = remaining
	r.used = used
	r.haveHeaders = true
	r.nextRequest = next
	r.resetTimestamp = resetAt
}

// Remaining and Used report the most recently observed header values, for
// diagnostics; ok is false if no response has updated the limiter yet.
func (r *RateLimiter) Remaining() (remaining float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.haveHeaders
}
