package intake

import (
	"context"

	"github.com/gravitational/trace"

	"github.com/memberlift/memberlift/auth/oauth"
	"github.com/memberlift/memberlift/auth/storage"
	"github.com/memberlift/memberlift/lib/logger"
)

// Provider is the subset of identity-provider capabilities intake needs.
type Provider interface {
	oauth.Exchanger
	oauth.IdentityFetcher
}

// Registrar records the credentials of users who complete the authorization
// flow. One successful call produces exactly one store entry for the user;
// repeated authorizations by the same user replace their previous entry.
type Registrar struct {
	store    storage.Store
	provider Provider
}

func NewRegistrar(store storage.Store, provider Provider) *Registrar {
	return &Registrar{
		store:    store,
		provider: provider,
	}
}

// HandleAuthorization exchanges a single-use authorization code, resolves
// the identity behind the issued token and persists the credentials. The
// exchange is never retried: a failed code requires the user to restart the
// authorization flow.
func (r *Registrar) HandleAuthorization(ctx context.Context, code string) (string, error) {
	log := logger.Get(ctx)

	if code == "" {
		return "", trace.BadParameter("no code provided")
	}

	creds, err := r.provider.Exchange(ctx, code)
	if err != nil {
		return "", trace.Wrap(err, "failed to exchange the authorization code")
	}

	userID, err := r.provider.FetchIdentity(ctx, creds.AccessToken)
	if err != nil {
		return "", trace.Wrap(err, "failed to resolve the identity of the authorized user")
	}

	if err := r.store.Upsert(ctx, userID, *creds); err != nil {
		return "", trace.Wrap(err)
	}

	log.WithField("user_id", userID).Info("Registered user for transfer")
	return userID, nil
}
