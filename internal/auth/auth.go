// Package auth resolves the identity used for a launch. Interactive sign-in is supplied by an
// external provider; any failure falls back to an offline identity.
package auth

import (
	"context"
	"errors"

	"github.com/meza/minecraft-modpack-launcher/internal/launch"
	"github.com/meza/minecraft-modpack-launcher/internal/logger"
)

type Profile struct {
	DisplayName string
	ID          string
}

type IdentityProvider interface {
	// SignIn runs the interactive sign-in flow.
	SignIn(ctx context.Context) (Profile, error)
	// Authorization returns the credential handed to the launch engine.
	Authorization(ctx context.Context) (*launch.Authorization, error)
}

var ErrNoAuthorization = errors.New("identity provider returned no authorization")

// Resolve never fails: without a provider, or when the provider fails, the offline identity
// named fallbackName is returned.
func Resolve(ctx context.Context, provider IdentityProvider, fallbackName string, log *logger.Logger) *launch.Authorization {
	if provider == nil {
		return launch.OfflineAuthorization(fallbackName)
	}

	profile, err := provider.SignIn(ctx)
	if err != nil {
		log.Operational().Warn("sign-in failed, using offline identity", "err", err)
		return launch.OfflineAuthorization(fallbackName)
	}

	authorization, err := provider.Authorization(ctx)
	if err == nil && authorization == nil {
		err = ErrNoAuthorization
	}
	if err != nil {
		log.Operational().Warn("authorization unavailable, using offline identity", "profile", profile.DisplayName, "err", err)
		return launch.OfflineAuthorization(fallbackName)
	}

	log.Operational().Info("signed in", "profile", profile.DisplayName)
	return authorization
}
