// Package throttle implements the per-provider failure throttle state
// machine: failed token exchanges open a suppression window during which no
// new exchange attempts are made. Hard-block failures open a fixed
// twenty-four hour window; transient failures escalate exponentially.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-attest/backoff"
	"github.com/goliatone/go-attest/core"
	goerrors "github.com/goliatone/go-errors"
)

var ErrStateNotFound = errors.New("throttle: state not found")

const DefaultHardBlockWindow = 24 * time.Hour

// Key identifies one throttle record: the provider variant plus the app it
// attests for.
type Key struct {
	ProviderID string
	AppID      string
}

// State is the active throttle record for a key. A record exists only while
// a throttle window is open; elapsed records are cleared, not ignored.
type State struct {
	Key          Key
	BackoffCount int
	AllowAfter   time.Time
	HTTPStatus   int
	UpdatedAt    time.Time
}

type StateStore interface {
	Get(ctx context.Context, key Key) (State, error)
	Upsert(ctx context.Context, state State) error
	Clear(ctx context.Context, key Key) error
}

// ThrottledError reports a suppressed exchange attempt: either the caller
// entered an open window, or a failed exchange just opened one.
type ThrottledError struct {
	ProviderID string
	AppID      string
	AllowAfter time.Time
	HTTPStatus int
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"throttle: provider %q app %q throttled until %s (status %d)",
		strings.TrimSpace(e.ProviderID),
		strings.TrimSpace(e.AppID),
		e.AllowAfter.UTC().Format(time.RFC3339),
		e.HTTPStatus,
	)
}

func (e ThrottledError) ToAttestError() *goerrors.Error {
	metadata := map[string]any{
		"provider_id":             strings.TrimSpace(e.ProviderID),
		"app_id":                  strings.TrimSpace(e.AppID),
		"allow_requests_after_ms": e.AllowAfter.UTC().UnixMilli(),
	}
	if e.HTTPStatus > 0 {
		metadata["http_status"] = e.HTTPStatus
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.AttestErrorThrottled).
		WithMetadata(metadata)
}

// Policy decides throttle transitions. It owns no synchronization: the
// provider serializes its own read-decide-write sequence.
type Policy struct {
	Store           StateStore
	Now             func() time.Time
	BaseDelay       time.Duration
	Factor          float64
	MaxDelay        time.Duration
	HardBlockWindow time.Duration
}

func NewPolicy(store StateStore) *Policy {
	return &Policy{
		Store:           store,
		Now:             func() time.Time { return time.Now().UTC() },
		BaseDelay:       backoff.DefaultBase,
		Factor:          backoff.DefaultFactor,
		MaxDelay:        backoff.DefaultMax,
		HardBlockWindow: DefaultHardBlockWindow,
	}
}

// BeforeExchange evaluates the entry check. An absent record allows the
// attempt. An elapsed window is cleared before the attempt proceeds. An open
// window fails with ThrottledError and no exchange happens.
func (p *Policy) BeforeExchange(ctx context.Context, key Key) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = normalizeKey(key)
	state, err := p.Store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if !now.Before(state.AllowAfter) {
		return p.Store.Clear(ctx, key)
	}
	return ThrottledError{
		ProviderID: key.ProviderID,
		AppID:      key.AppID,
		AllowAfter: state.AllowAfter,
		HTTPStatus: state.HTTPStatus,
		RetryAfter: state.AllowAfter.Sub(now),
	}
}

// OnExchangeFailure records a failed exchange carrying an HTTP status and
// returns the new state. A hard-block status (403, 404) opens a fixed
// window and resets the count to 1; these failures will not self-resolve by
// retrying sooner. Any other status escalates from the previous count.
func (p *Policy) OnExchangeFailure(ctx context.Context, key Key, httpStatus int) (State, error) {
	if p == nil || p.Store == nil {
		return State{}, fmt.Errorf("throttle: policy store is not configured")
	}
	key = normalizeKey(key)
	now := p.now()

	previous := State{}
	existing, err := p.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return State{}, err
	}
	if err == nil {
		previous = existing
	}

	next := State{
		Key:        key,
		HTTPStatus: httpStatus,
		UpdatedAt:  now,
	}
	if isHardBlockStatus(httpStatus) {
		next.BackoffCount = 1
		next.AllowAfter = now.Add(p.hardBlockWindow())
	} else {
		next.BackoffCount = previous.BackoffCount + 1
		next.AllowAfter = now.Add(backoff.Delay(previous.BackoffCount, p.BaseDelay, p.Factor, p.MaxDelay))
	}

	if err := p.Store.Upsert(ctx, next); err != nil {
		return State{}, err
	}
	return next, nil
}

// ThrottledFromState builds the error surfaced immediately after a failure
// transition.
func (p *Policy) ThrottledFromState(state State) ThrottledError {
	now := p.now()
	retryAfter := time.Duration(0)
	if state.AllowAfter.After(now) {
		retryAfter = state.AllowAfter.Sub(now)
	}
	return ThrottledError{
		ProviderID: state.Key.ProviderID,
		AppID:      state.Key.AppID,
		AllowAfter: state.AllowAfter,
		HTTPStatus: state.HTTPStatus,
		RetryAfter: retryAfter,
	}
}

func (p *Policy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Policy) hardBlockWindow() time.Duration {
	if p != nil && p.HardBlockWindow > 0 {
		return p.HardBlockWindow
	}
	return DefaultHardBlockWindow
}

func isHardBlockStatus(httpStatus int) bool {
	return httpStatus == http.StatusForbidden || httpStatus == http.StatusNotFound
}

func normalizeKey(key Key) Key {
	return Key{
		ProviderID: strings.TrimSpace(strings.ToLower(key.ProviderID)),
		AppID:      strings.TrimSpace(key.AppID),
	}
}

// MemoryStateStore is the default in-process StateStore.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key Key) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("throttle: state store is nil")
	}
	normalized := normalizeKey(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[stateKey(normalized)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("throttle: state store is nil")
	}
	state.Key = normalizeKey(state.Key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[stateKey(state.Key)] = state
	return nil
}

func (s *MemoryStateStore) Clear(_ context.Context, key Key) error {
	if s == nil {
		return fmt.Errorf("throttle: state store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, stateKey(normalizeKey(key)))
	return nil
}

func stateKey(key Key) string {
	return key.ProviderID + "|" + key.AppID
}

var _ StateStore = (*MemoryStateStore)(nil)
