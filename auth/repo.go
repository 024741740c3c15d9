package auth

import (
	"context"
	"net/url"

	"github.com/jrsteele09/ugate-admin/identity"
	"github.com/jrsteele09/ugate-admin/sessions"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/jrsteele09/ugate-admin/users"
)

// CredentialStore is the credential store view the session context needs
type CredentialStore interface {
	Read(ctx context.Context) (sessions.Record, bool)
	Save(ctx context.Context, pair token.Pair, profile *users.Profile) error
	ReplaceProfile(ctx context.Context, profile *users.Profile) error
	Clear(ctx context.Context) error
}

// IdentityClient performs the unauthenticated identity-provider calls
type IdentityClient interface {
	Login(ctx context.Context, creds identity.Credentials) (*identity.LoginResponse, error)
	Me(ctx context.Context, accessToken string) (*users.Profile, error)
}

// AuthenticatedGetter issues authenticated GETs against the identity provider
type AuthenticatedGetter interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

// Refresher performs a shared token refresh
type Refresher interface {
	Refresh(ctx context.Context) (token.Pair, error)
}

// Deps holds the collaborators of the Service
type Deps struct {
	Store     CredentialStore     // Persisted session record
	Identity  IdentityClient      // Login and token introspection
	API       AuthenticatedGetter // Authenticated calls to the identity provider (/auth/me)
	Refresher Refresher           // Background refresh
}
