package user

import (
	"context"
	"errors"

	"authgate/secure"
)

// ErrNotFound reports a principal absent on an update path. Read paths
// represent absence as a nil User with a nil error instead.
var ErrNotFound = errors.New("user not found")

// ErrLocked reports a storage resource that is temporarily locked.
var ErrLocked = errors.New("user storage is locked")

// ErrNotSupported reports a capability the underlying provider lacks.
var ErrNotSupported = errors.New("operation not supported by this user provider")

// Provider is the narrow user lookup contract. Principal comparison is
// case-insensitive: implementations normalize the id to lower case.
type Provider interface {
	// GetUserByPrincipal resolves a principal identity to a user record.
	// An unknown principal yields (nil, nil), not an error.
	GetUserByPrincipal(ctx context.Context, principalID string) (User, error)
}

// PswStore is the optional capability to rotate a user's password hash.
type PswStore interface {
	Provider

	// RotatePassword replaces the stored password hash and returns the
	// updated record. An unknown principal is an error here.
	RotatePassword(ctx context.Context, principalID string, newPsw *secure.String) (User, error)
}

// OAuth2Store is the optional capability to upsert a user from an OAuth2
// profile.
type OAuth2Store interface {
	Provider

	// UpsertAccessToken creates the user if absent, else replaces the
	// access token, atomically. It returns the resulting record.
	UpsertAccessToken(ctx context.Context, principalID string, token *secure.String) (User, error)
}
