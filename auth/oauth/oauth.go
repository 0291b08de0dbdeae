package oauth

import (
	"context"

	"github.com/memberlift/memberlift/auth/storage"
)

// Exchanger swaps a single-use authorization code for credentials.
type Exchanger interface {
	Exchange(ctx context.Context, authorizationCode string) (*storage.Credentials, error)
}

// Refresher acquires new credentials using a refresh token. The token is
// consumed by the call: the returned credentials carry its replacement.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*storage.Credentials, error)
}

// IdentityFetcher resolves the user identity behind an access token.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, accessToken string) (string, error)
}

// MemberAdder adds the user to the target community, acting as the user via
// their access token while authenticating the operation with the privileged
// instance token held by the implementation.
type MemberAdder interface {
	AddMember(ctx context.Context, accessToken string, userID string, targetID string) error
}

// Provider is the full set of identity-provider capabilities the tool
// depends on.
type Provider interface {
	Exchanger
	Refresher
	IdentityFetcher
	MemberAdder
}
