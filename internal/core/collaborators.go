package core

import "context"

// Authenticator resolves the credential presented by an incoming connection
// to a user id. Any error rejects the connection.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (userID int64, err error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, credential string) (int64, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, credential string) (int64, error) {
	return f(ctx, credential)
}
