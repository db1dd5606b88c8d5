package auth

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/meza/minecraft-modpack-launcher/internal/constants"
	"github.com/meza/minecraft-modpack-launcher/internal/launch"
	"github.com/zalando/go-keyring"
)

const keyringUser = "authorization"

// KeyringCache keeps the last successful authorization in the OS credential store.
type KeyringCache struct {
	service string
}

func NewKeyringCache() *KeyringCache {
	return &KeyringCache{service: constants.ProfileName}
}

func (cache *KeyringCache) Store(authorization *launch.Authorization) error {
	if authorization == nil {
		return ErrNoAuthorization
	}
	payload, err := json.Marshal(authorization)
	if err != nil {
		return err
	}
	return keyring.Set(cache.service, keyringUser, string(payload))
}

// Load returns nil without an error when nothing has been cached yet.
func (cache *KeyringCache) Load() (*launch.Authorization, error) {
	payload, err := keyring.Get(cache.service, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var authorization launch.Authorization
	if err := json.Unmarshal([]byte(payload), &authorization); err != nil {
		return nil, err
	}
	return &authorization, nil
}

func (cache *KeyringCache) Clear() error {
	err := keyring.Delete(cache.service, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// CachedProvider remembers every successful authorization and replays it when the wrapped
// provider cannot sign in. With no wrapped provider it only replays the cache.
type CachedProvider struct {
	next  IdentityProvider
	cache *KeyringCache
}

func NewCachedProvider(next IdentityProvider, cache *KeyringCache) *CachedProvider {
	return &CachedProvider{next: next, cache: cache}
}

func (provider *CachedProvider) SignIn(ctx context.Context) (Profile, error) {
	err := ErrNoAuthorization
	if provider.next != nil {
		profile, signInErr := provider.next.SignIn(ctx)
		if signInErr == nil {
			return profile, nil
		}
		err = signInErr
	}
	cached, cacheErr := provider.cache.Load()
	if cacheErr != nil || cached == nil {
		return Profile{}, err
	}
	return Profile{DisplayName: cached.Name, ID: cached.UUID}, nil
}

func (provider *CachedProvider) Authorization(ctx context.Context) (*launch.Authorization, error) {
	var err error
	if provider.next != nil {
		authorization, nextErr := provider.next.Authorization(ctx)
		if nextErr == nil && authorization != nil {
			_ = provider.cache.Store(authorization)
			return authorization, nil
		}
		err = nextErr
	}
	cached, cacheErr := provider.cache.Load()
	if cacheErr != nil {
		return nil, errors.Join(err, cacheErr)
	}
	if cached == nil {
		if err == nil {
			err = ErrNoAuthorization
		}
		return nil, err
	}
	return cached, nil
}
