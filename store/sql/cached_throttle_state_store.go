package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-attest/throttle"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const throttleStateCacheKeyPrefix = "go-attest::throttle_state::v1"

// CachedThrottleStateStore fronts a StateStore with a read-through cache.
// Writes and clears invalidate the cached key so the entry check never sees
// a stale window.
type CachedThrottleStateStore struct {
	base  throttle.StateStore
	cache repositorycache.CacheService
}

func NewCachedThrottleStateStore(
	base throttle.StateStore,
	cacheService repositorycache.CacheService,
) (*CachedThrottleStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base throttle state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: throttle cache service is required")
	}
	return &CachedThrottleStateStore{base: base, cache: cacheService}, nil
}

// ThrottleStateCacheKey returns the deterministic cache key contract for
// throttle state reads: go-attest::throttle_state::v1::<provider>::<app>
// with each segment URL-path escaped after key normalization.
func ThrottleStateCacheKey(key throttle.Key) (string, error) {
	normalized := normalizeThrottleKey(key)
	if err := validateThrottleKey(normalized); err != nil {
		return "", err
	}
	segments := []string{
		url.PathEscape(normalized.ProviderID),
		url.PathEscape(normalized.AppID),
	}
	return strings.Join(append([]string{throttleStateCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedThrottleStateStore) Get(ctx context.Context, key throttle.Key) (throttle.State, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return throttle.State{}, fmt.Errorf("sqlstore: cached throttle state store is not configured")
	}
	normalized := normalizeThrottleKey(key)
	cacheKey, err := ThrottleStateCacheKey(normalized)
	if err != nil {
		return throttle.State{}, err
	}

	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (throttle.State, error) {
		fetched, fetchErr := s.base.Get(ctx, normalized)
		if fetchErr != nil {
			return throttle.State{}, fetchErr
		}
		fetched.Key = normalizeThrottleKey(fetched.Key)
		return fetched, nil
	})
}

func (s *CachedThrottleStateStore) Upsert(ctx context.Context, state throttle.State) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached throttle state store is not configured")
	}
	state.Key = normalizeThrottleKey(state.Key)
	if err := validateThrottleKey(state.Key); err != nil {
		return err
	}

	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.invalidate(ctx, state.Key)
}

func (s *CachedThrottleStateStore) Clear(ctx context.Context, key throttle.Key) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached throttle state store is not configured")
	}
	key = normalizeThrottleKey(key)
	if err := validateThrottleKey(key); err != nil {
		return err
	}

	if err := s.base.Clear(ctx, key); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

func (s *CachedThrottleStateStore) invalidate(ctx context.Context, key throttle.Key) error {
	cacheKey, err := ThrottleStateCacheKey(key)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
