package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/myndlens/myndlens-p-sub000/internal/protocol"
)

// ErrUnauthenticated is returned by an [Authenticator] that rejects the
// credentials.
var ErrUnauthenticated = errors.New("gateway: unauthenticated")

// Authenticator resolves the user behind an auth message. Token validation
// lives outside this service; implementations adapt to it.
type Authenticator interface {
	Authenticate(ctx context.Context, a protocol.Auth) (userID string, err error)
}

// AuthenticatorFunc adapts a function to [Authenticator].
type AuthenticatorFunc func(ctx context.Context, a protocol.Auth) (string, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, a protocol.Auth) (string, error) {
	return f(ctx, a)
}

// TrustingAuthenticator accepts any non-empty identity. It uses UserID when
// present and the token otherwise. Suitable for development and for
// deployments where an upstream proxy has already authenticated the client.
type TrustingAuthenticator struct{}

// Authenticate implements [Authenticator].
func (TrustingAuthenticator) Authenticate(_ context.Context, a protocol.Auth) (string, error) {
	if id := strings.TrimSpace(a.UserID); id != "" {
		return id, nil
	}
	if tok := strings.TrimSpace(a.Token); tok != "" {
		return tok, nil
	}
	return "", ErrUnauthenticated
}

var _ Authenticator = TrustingAuthenticator{}
