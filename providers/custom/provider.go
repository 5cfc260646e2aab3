// Package custom implements the attestation provider backed by a
// caller-supplied token callback. Custom providers are not throttled by
// this client: their failure semantics are caller-defined, so failures
// propagate unchanged.
package custom

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/goliatone/go-attest/core"
)

const ProviderID = "custom"

var (
	ErrCallbackRequired   = errors.New("providers/custom: token callback is required")
	ErrAlreadyInitialized = errors.New("providers/custom: provider is already initialized")
)

type Config struct {
	Callback core.TokenCallback
	Now      func() time.Time
}

type Provider struct {
	callback core.TokenCallback
	now      func() time.Time

	mu  sync.Mutex
	app core.AppContext
}

func New(cfg Config) (*Provider, error) {
	if cfg.Callback == nil {
		return nil, ErrCallbackRequired
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Provider{
		callback: cfg.Callback,
		now:      now,
	}, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) Initialize(app core.AppContext) error {
	if p == nil {
		return fmt.Errorf("providers/custom: provider is nil")
	}
	if app == nil {
		return fmt.Errorf("providers/custom: app context is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.app != nil {
		if p.app == app {
			return nil
		}
		return ErrAlreadyInitialized
	}
	p.app = app
	return nil
}

func (p *Provider) GetToken(ctx context.Context) (core.Token, error) {
	if p == nil {
		return core.Token{}, fmt.Errorf("providers/custom: provider is nil")
	}
	p.mu.Lock()
	initialized := p.app != nil
	p.mu.Unlock()
	if !initialized {
		return core.Token{}, core.NewUseBeforeActivationError()
	}

	value, err := p.callback(ctx)
	if err != nil {
		return core.Token{}, err
	}
	return core.NormalizeToken(p.now(), value), nil
}

// Equal compares callback identity, not behavior: closures cannot be
// compared by value, so two distinct callbacks with identical semantics are
// never equal.
func (p *Provider) Equal(other core.Provider) bool {
	if p == nil {
		return false
	}
	otherProvider, ok := other.(*Provider)
	if !ok || otherProvider == nil {
		return false
	}
	return reflect.ValueOf(p.callback).Pointer() == reflect.ValueOf(otherProvider.callback).Pointer()
}

var _ core.Provider = (*Provider)(nil)
