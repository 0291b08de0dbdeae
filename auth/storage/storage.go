package storage

import (
	"context"
	"time"
)

// Credentials represents the short-lived OAuth2 credentials of a single user.
type Credentials struct {
	// AccessToken is the Bearer token used to act on behalf of the user.
	AccessToken string `json:"access_token"`
	// RefreshToken is used to acquire a new access token. The provider
	// rotates it on every refresh, so the stored value must always be the
	// one returned by the most recent exchange or refresh.
	RefreshToken string `json:"refresh_token"`
	// ExpiresAt marks the end of validity period for the access token.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the access token is no longer usable at t.
func (c *Credentials) Expired(t time.Time) bool {
	return !c.ExpiresAt.After(t)
}

// Store defines the interface for persisting per-user OAuth2 credentials.
// Upsert must make the record durable before returning: a refreshed token
// that is used but not persisted would be lost on a crash, and the provider
// has already invalidated the previous refresh token by then.
type Store interface {
	// Get returns the credentials of a single user, or trace.NotFound.
	Get(ctx context.Context, userID string) (*Credentials, error)
	// Upsert replaces the user's credentials and persists the store.
	Upsert(ctx context.Context, userID string, creds Credentials) error
	// All returns a snapshot of every record. Mutations made after the
	// snapshot is taken are not reflected in it.
	All(ctx context.Context) (map[string]Credentials, error)
}
