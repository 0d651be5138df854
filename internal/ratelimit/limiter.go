// Package ratelimit paces provider calls with a sliding request window and
// applies adaptive exponential backoff after the provider reports overload.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls window pacing and rate-limit backoff.
type Config struct {
	// Window is the trailing period over which calls are counted. Default: 60s.
	Window time.Duration

	// MaxRequests is the number of calls allowed inside Window. Default: 50.
	MaxRequests int

	// BaseBackoff is the first backoff after a rate-limit error. Default: 60s.
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential part of the backoff. Default: 300s.
	MaxBackoff time.Duration

	// MaxMultiplier caps the consecutive-failure multiplier. Default: 3.
	MaxMultiplier int

	// MinInterval, when positive, spaces admitted calls at least this far
	// apart. Zero disables pacing.
	MinInterval time.Duration
}

// DefaultConfig returns the stock window and backoff settings.
func DefaultConfig() Config {
	return Config{
		Window:        60 * time.Second,
		MaxRequests:   50,
		BaseBackoff:   60 * time.Second,
		MaxBackoff:    300 * time.Second,
		MaxMultiplier: 3,
	}
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.MaxMultiplier <= 0 {
		cfg.MaxMultiplier = def.MaxMultiplier
	}
	return cfg
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithSleeper overrides the blocking wait.
func WithSleeper(s Sleeper) Option {
	return func(l *Limiter) {
		l.sleep = s
	}
}

// Limiter tracks recent call timestamps and consecutive rate-limit failures.
// A single Limiter is meant to be shared by every caller that draws on the
// same provider quota.
type Limiter struct {
	cfg   Config
	pacer *rate.Limiter

	mu          sync.Mutex
	calls       []time.Time
	consecutive int

	now   func() time.Time
	sleep Sleeper
}

// New creates a Limiter with the given config.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:   applyDefaults(cfg),
		now:   time.Now,
		sleep: Sleep,
	}
	if l.cfg.MinInterval > 0 {
		l.pacer = rate.NewLimiter(rate.Every(l.cfg.MinInterval), 1)
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Admit blocks until another call fits in the window, then records it.
func (l *Limiter) Admit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for {
		wait, ok := l.tryRecord()
		if ok {
			break
		}
		zap.L().Info("approaching rate limit, waiting",
			zap.Duration("wait", wait),
			zap.Int("max_requests", l.cfg.MaxRequests),
		)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
	if l.pacer != nil {
		return l.pacer.Wait(ctx)
	}
	return nil
}

// tryRecord purges expired timestamps and records a call if the window has
// room. Otherwise it reports how long until the oldest call ages out.
func (l *Limiter) tryRecord() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.calls) && l.calls[i].Before(cutoff) {
		i++
	}
	l.calls = l.calls[i:]

	if len(l.calls) >= l.cfg.MaxRequests {
		wait := l.cfg.Window - now.Sub(l.calls[0])
		if wait > 0 {
			return wait, false
		}
		l.calls = l.calls[1:]
	}
	l.calls = append(l.calls, now)
	return 0, true
}

// OnRateLimited records a rate-limit failure on the given 1-based attempt
// and sleeps for the resulting backoff. It returns the backoff applied.
func (l *Limiter) OnRateLimited(ctx context.Context, attempt int) (time.Duration, error) {
	l.mu.Lock()
	l.consecutive++
	consecutive := l.consecutive
	l.mu.Unlock()

	backoff := l.Backoff(attempt, consecutive)
	zap.L().Warn("rate limit detected, backing off",
		zap.Int("attempt", attempt),
		zap.Int("consecutive", consecutive),
		zap.Duration("backoff", backoff),
	)
	return backoff, l.sleep(ctx, backoff)
}

// Backoff computes min(base*2^(attempt-1), max), scaled by
// min(consecutive, MaxMultiplier) once more than one failure is in a row.
func (l *Limiter) Backoff(attempt, consecutive int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := l.cfg.BaseBackoff
	for i := 1; i < attempt && backoff < l.cfg.MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > l.cfg.MaxBackoff {
		backoff = l.cfg.MaxBackoff
	}
	if consecutive > 1 {
		backoff *= time.Duration(min(consecutive, l.cfg.MaxMultiplier))
	}
	return backoff
}

// ResetFailures clears the consecutive rate-limit counter after a success.
func (l *Limiter) ResetFailures() {
	l.mu.Lock()
	l.consecutive = 0
	l.mu.Unlock()
}

// Consecutive returns the current consecutive rate-limit failure count.
func (l *Limiter) Consecutive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consecutive
}

// InWindow returns the number of calls recorded inside the current window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.cfg.Window)
	n := 0
	for _, t := range l.calls {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}

// Sleep waits for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
