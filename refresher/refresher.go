// Package refresher keeps a fresh token available by fetching ahead of
// expiry. It is an opt-in layer over a token source; the source itself never
// schedules background work.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-attest/backoff"
	"github.com/goliatone/go-attest/core"
	"github.com/goliatone/go-attest/throttle"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultRefreshAhead    = 5 * time.Minute
	defaultFallbackPeriod  = 30 * time.Minute
	defaultMinRefreshDelay = time.Second
)

var ErrAlreadyRunning = errors.New("refresher: already running")

// TokenSource is anything that can mint a token on demand. Both the client
// facade and individual providers satisfy it.
type TokenSource interface {
	GetToken(ctx context.Context) (core.Token, error)
}

type Config struct {
	Source TokenSource
	Logger core.Logger

	// RefreshAhead is how long before expiry the next fetch is scheduled.
	RefreshAhead time.Duration
	// FallbackPeriod schedules the next fetch for tokens without expiry.
	FallbackPeriod time.Duration

	BaseDelay time.Duration
	Factor    float64
	MaxDelay  time.Duration

	Now     func() time.Time
	OnToken func(token core.Token)
	OnError func(err error)
}

// Refresher runs a single background loop. Failures escalate with jittered
// exponential delays; a throttled source is not polled again before its
// window opens.
type Refresher struct {
	config Config

	mu       sync.RWMutex
	current  core.Token
	hasToken bool
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(cfg Config) (*Refresher, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("refresher: token source is required")
	}
	if cfg.Logger == nil {
		_, logger := glog.Resolve("attest-refresher", nil, nil)
		cfg.Logger = glog.Ensure(logger)
	}
	if cfg.RefreshAhead <= 0 {
		cfg.RefreshAhead = defaultRefreshAhead
	}
	if cfg.FallbackPeriod <= 0 {
		cfg.FallbackPeriod = defaultFallbackPeriod
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = backoff.DefaultBase
	}
	if cfg.Factor <= 0 {
		cfg.Factor = backoff.DefaultFactor
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = backoff.DefaultMax
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Refresher{config: cfg}, nil
}

func (r *Refresher) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("refresher: refresher is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		r.run(runCtx)
	}()
	return nil
}

func (r *Refresher) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	r.mu.Lock()
	r.running = false
	r.done = nil
	r.mu.Unlock()
}

// Current returns the most recently fetched token, if any.
func (r *Refresher) Current() (core.Token, bool) {
	if r == nil {
		return core.Token{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.hasToken
}

func (r *Refresher) run(ctx context.Context) {
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		token, err := r.config.Source.GetToken(ctx)
		if err != nil {
			failures++
			delay := backoff.Delay(failures-1, r.config.BaseDelay, r.config.Factor, r.config.MaxDelay)
			if wait, ok := throttleWait(err, r.config.Now()); ok && wait > delay {
				delay = wait
			}
			r.config.Logger.Error("token refresh failed",
				"error", err.Error(),
				"failures", failures,
				"retry_in_ms", delay.Milliseconds(),
			)
			if r.config.OnError != nil {
				r.config.OnError(err)
			}
			if waitWithContext(ctx, delay) != nil {
				return
			}
			continue
		}

		failures = 0
		r.mu.Lock()
		r.current = token
		r.hasToken = true
		r.mu.Unlock()
		r.config.Logger.Info("token refreshed", "issued_at_ms", token.IssuedAtMillis())
		if r.config.OnToken != nil {
			r.config.OnToken(token)
		}

		if waitWithContext(ctx, r.nextRefreshDelay(token)) != nil {
			return
		}
	}
}

func (r *Refresher) nextRefreshDelay(token core.Token) time.Duration {
	if token.ExpiresAt == nil {
		return r.config.FallbackPeriod
	}
	delay := token.ExpiresAt.Sub(r.config.Now()) - r.config.RefreshAhead
	if delay < defaultMinRefreshDelay {
		delay = defaultMinRefreshDelay
	}
	return delay
}

// throttleWait extracts the remaining suppression window from a throttled
// failure so the loop does not poll into a closed window.
func throttleWait(err error, now time.Time) (time.Duration, bool) {
	var throttled throttle.ThrottledError
	if errors.As(err, &throttled) {
		if throttled.AllowAfter.After(now) {
			return throttled.AllowAfter.Sub(now), true
		}
		return 0, true
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == core.AttestErrorThrottled {
		if raw, ok := richErr.Metadata["allow_requests_after_ms"]; ok {
			if millis, ok := asInt64(raw); ok {
				allowAfter := time.UnixMilli(millis).UTC()
				if allowAfter.After(now) {
					return allowAfter.Sub(now), true
				}
				return 0, true
			}
		}
	}
	return 0, false
}

func asInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case float64:
		return int64(typed), true
	default:
		return 0, false
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
