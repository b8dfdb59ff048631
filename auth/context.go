package auth

import (
	"context"

	"authgate/user"
)

// AuthType identifies which path authenticated the request.
type AuthType string

const (
	AuthTypeSession   AuthType = "session"
	AuthTypeBasic     AuthType = "basic"
	AuthTypeLoginForm AuthType = "loginform"
	AuthTypeOAuth2    AuthType = "oauth2"
)

type userContextKey struct{}
type authTypeContextKey struct{}

// ContextWithUser attaches the authenticated user to a context.
func ContextWithUser(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext extracts the authenticated user from a context, or nil.
func UserFromContext(ctx context.Context) user.User {
	if u, ok := ctx.Value(userContextKey{}).(user.User); ok {
		return u
	}
	return nil
}

// ContextWithAuthType records which path authenticated the request.
func ContextWithAuthType(ctx context.Context, t AuthType) context.Context {
	return context.WithValue(ctx, authTypeContextKey{}, t)
}

// AuthTypeFromContext extracts the authentication type, or "".
func AuthTypeFromContext(ctx context.Context) AuthType {
	if t, ok := ctx.Value(authTypeContextKey{}).(AuthType); ok {
		return t
	}
	return ""
}
