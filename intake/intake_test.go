package intake

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/memberlift/memberlift/auth/storage"
)

type mockProvider struct {
	exchange      func(string) (*storage.Credentials, error)
	fetchIdentity func(string) (string, error)
}

// Exchange implements oauth.Exchanger
func (p *mockProvider) Exchange(ctx context.Context, code string) (*storage.Credentials, error) {
	return p.exchange(code)
}

// FetchIdentity implements oauth.IdentityFetcher
func (p *mockProvider) FetchIdentity(ctx context.Context, accessToken string) (string, error) {
	return p.fetchIdentity(accessToken)
}

func newStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	return store
}

func TestHandleAuthorization(t *testing.T) {
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour).UTC()

	t.Run("MissingCode", func(t *testing.T) {
		var exchangeCalled bool
		provider := &mockProvider{
			exchange: func(string) (*storage.Credentials, error) {
				exchangeCalled = true
				return nil, nil
			},
		}

		registrar := NewRegistrar(newStore(t), provider)
		_, err := registrar.HandleAuthorization(ctx, "")
		require.True(t, trace.IsBadParameter(err))
		require.False(t, exchangeCalled) // no network call without a code
	})

	t.Run("Registered", func(t *testing.T) {
		provider := &mockProvider{
			exchange: func(code string) (*storage.Credentials, error) {
				require.Equal(t, "valid-code", code)
				return &storage.Credentials{
					AccessToken:  "access-1",
					RefreshToken: "refresh-1",
					ExpiresAt:    expiresAt,
				}, nil
			},
			fetchIdentity: func(accessToken string) (string, error) {
				require.Equal(t, "access-1", accessToken)
				return "1001", nil
			},
		}

		store := newStore(t)
		registrar := NewRegistrar(store, provider)
		userID, err := registrar.HandleAuthorization(ctx, "valid-code")
		require.NoError(t, err)
		require.Equal(t, "1001", userID)

		creds, err := store.Get(ctx, "1001")
		require.NoError(t, err)
		require.Equal(t, "refresh-1", creds.RefreshToken)
	})

	t.Run("RepeatedAuthorizationReplaces", func(t *testing.T) {
		var exchanges int
		provider := &mockProvider{
			exchange: func(string) (*storage.Credentials, error) {
				exchanges++
				return &storage.Credentials{
					AccessToken:  fmt.Sprintf("access-%d", exchanges),
					RefreshToken: fmt.Sprintf("refresh-%d", exchanges),
					ExpiresAt:    expiresAt,
				}, nil
			},
			fetchIdentity: func(string) (string, error) {
				return "1001", nil
			},
		}

		store := newStore(t)
		registrar := NewRegistrar(store, provider)
		_, err := registrar.HandleAuthorization(ctx, "code-a")
		require.NoError(t, err)
		_, err = registrar.HandleAuthorization(ctx, "code-b")
		require.NoError(t, err)

		all, err := store.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1) // one entry per user, holding the latest tokens
		require.Equal(t, "refresh-2", all["1001"].RefreshToken)
	})

	t.Run("ExchangeFailed", func(t *testing.T) {
		provider := &mockProvider{
			exchange: func(string) (*storage.Credentials, error) {
				return nil, trace.BadParameter("invalid_grant: code already used")
			},
		}

		store := newStore(t)
		registrar := NewRegistrar(store, provider)
		_, err := registrar.HandleAuthorization(ctx, "stale-code")
		require.Error(t, err)

		all, err := store.All(ctx)
		require.NoError(t, err)
		require.Empty(t, all) // no state change on failure
	})

	t.Run("IdentityFailed", func(t *testing.T) {
		provider := &mockProvider{
			exchange: func(string) (*storage.Credentials, error) {
				return &storage.Credentials{
					AccessToken:  "access-1",
					RefreshToken: "refresh-1",
					ExpiresAt:    expiresAt,
				}, nil
			},
			fetchIdentity: func(string) (string, error) {
				return "", trace.AccessDenied("token rejected")
			},
		}

		store := newStore(t)
		registrar := NewRegistrar(store, provider)
		_, err := registrar.HandleAuthorization(ctx, "valid-code")
		require.Error(t, err)

		all, err := store.All(ctx)
		require.NoError(t, err)
		require.Empty(t, all)
	})
}
