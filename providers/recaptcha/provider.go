// Package recaptcha implements the reCAPTCHA v3 backed attestation
// provider. Failed exchanges update a per-provider throttle record; while a
// throttle window is open no exchange attempt is made.
package recaptcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-attest/core"
	"github.com/goliatone/go-attest/exchange"
	"github.com/goliatone/go-attest/throttle"
)

const ProviderID = "recaptcha-v3"

var (
	ErrSiteKeyRequired    = errors.New("providers/recaptcha: site key is required")
	ErrProducerRequired   = errors.New("providers/recaptcha: attestation producer is required")
	ErrExchangerRequired  = errors.New("providers/recaptcha: token exchanger is required")
	ErrAlreadyInitialized = errors.New("providers/recaptcha: provider is already initialized")
)

type Config struct {
	SiteKey        string
	Producer       core.AttestationProducer
	Exchanger      core.TokenExchanger
	ThrottlePolicy *throttle.Policy
	Now            func() time.Time
}

// Provider holds an immutable site key and the provider-exclusive throttle
// record. The app context back-reference is set once by Initialize.
type Provider struct {
	siteKey   string
	producer  core.AttestationProducer
	exchanger core.TokenExchanger
	policy    *throttle.Policy

	// mu serializes the whole check-exchange-record sequence so two
	// concurrent calls cannot both observe a clear throttle state and both
	// issue exchange calls.
	mu  sync.Mutex
	app core.AppContext
}

func New(cfg Config) (*Provider, error) {
	siteKey := strings.TrimSpace(cfg.SiteKey)
	if siteKey == "" {
		return nil, ErrSiteKeyRequired
	}
	if cfg.Producer == nil {
		return nil, ErrProducerRequired
	}
	if cfg.Exchanger == nil {
		return nil, ErrExchangerRequired
	}
	policy := cfg.ThrottlePolicy
	if policy == nil {
		policy = throttle.NewPolicy(throttle.NewMemoryStateStore())
		if cfg.Now != nil {
			policy.Now = cfg.Now
		}
	}
	return &Provider{
		siteKey:   siteKey,
		producer:  cfg.Producer,
		exchanger: cfg.Exchanger,
		policy:    policy,
	}, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) SiteKey() string {
	if p == nil {
		return ""
	}
	return p.siteKey
}

func (p *Provider) Initialize(app core.AppContext) error {
	if p == nil {
		return fmt.Errorf("providers/recaptcha: provider is nil")
	}
	if app == nil {
		return fmt.Errorf("providers/recaptcha: app context is required")
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
		return core.Token{}, fmt.Errorf("providers/recaptcha: provider is nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.app == nil {
		return core.Token{}, core.NewUseBeforeActivationError()
	}
	key := p.throttleKey()

	if err := p.policy.BeforeExchange(ctx, key); err != nil {
		var throttled throttle.ThrottledError
		if errors.As(err, &throttled) {
			return core.Token{}, throttled.ToAttestError()
		}
		return core.Token{}, err
	}

	artifact, err := p.producer.ProduceAttestation(ctx, p.app)
	if err != nil {
		// The collaborator's native failure signal carries no useful
		// detail; collapse it to the generic attestation error.
		return core.Token{}, core.NewAttestationError()
	}

	token, err := p.exchanger.ExchangeAttestation(ctx, p.app, artifact)
	if err != nil {
		if status, ok := exchange.StatusOf(err); ok {
			state, recordErr := p.policy.OnExchangeFailure(ctx, key, status)
			if recordErr != nil {
				return core.Token{}, recordErr
			}
			return core.Token{}, p.policy.ThrottledFromState(state).ToAttestError()
		}
		return core.Token{}, err
	}
	return token, nil
}

func (p *Provider) Equal(other core.Provider) bool {
	if p == nil {
		return false
	}
	otherProvider, ok := other.(*Provider)
	if !ok || otherProvider == nil {
		return false
	}
	return p.siteKey == otherProvider.siteKey
}

func (p *Provider) throttleKey() throttle.Key {
	appID := ""
	if p.app != nil {
		appID = strings.TrimSpace(p.app.Name())
	}
	return throttle.Key{ProviderID: ProviderID, AppID: appID}
}

var _ core.Provider = (*Provider)(nil)
