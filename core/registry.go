package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderRegistry holds registered attestation providers and tracks the one
// active provider token requests are dispatched to. Once a provider is
// active it can only be replaced by an Equal provider; swapping in a
// different identity mid-flight would silently change what tokens attest to.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	activeID  string
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("core: provider is nil")
	}
	id := strings.TrimSpace(provider.ID())
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, exists := r.providers[id]; exists {
		if existing.Equal(provider) {
			return nil
		}
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	r.providers[id] = provider
	return nil
}

func (r *ProviderRegistry) Get(providerID string) (Provider, bool) {
	id := strings.TrimSpace(providerID)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	provider, ok := r.providers[id]
	r.mu.RUnlock()
	return provider, ok
}

func (r *ProviderRegistry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.providers))
	for id := range r.providers {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	providers := make([]Provider, 0, len(keys))
	for _, id := range keys {
		providers = append(providers, r.providers[id])
	}
	return providers
}

func (r *ProviderRegistry) SetActive(providerID string) error {
	id := strings.TrimSpace(providerID)
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ok := r.providers[id]
	if !ok {
		return fmt.Errorf("core: provider not registered: %s", id)
	}
	if r.activeID == "" || r.activeID == id {
		r.activeID = id
		return nil
	}
	current := r.providers[r.activeID]
	if current != nil && current.Equal(next) {
		r.activeID = id
		return nil
	}
	return fmt.Errorf("core: a different provider is already active: %s", r.activeID)
}

func (r *ProviderRegistry) Active() (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeID == "" {
		return nil, false
	}
	provider, ok := r.providers[r.activeID]
	return provider, ok
}

var _ Registry = (*ProviderRegistry)(nil)
