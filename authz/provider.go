package authz

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermissionDecode reports a permission bit or name that could not be
// decoded from storage. Providers log it and degrade the permission to
// absent; it never fails a request.
var ErrPermissionDecode = errors.New("permission could not be decoded")

// DecodeError wraps ErrPermissionDecode with the offending raw value.
type DecodeError struct {
	Raw any
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("permission could not be decoded: %v", e.Raw)
}

func (e *DecodeError) Unwrap() error { return ErrPermissionDecode }

// Subject is anything with a principal identity. user.User satisfies it.
type Subject interface {
	PrincipalID() string
}

// Provider yields the permissions attached to a principal. Lookups are keyed
// by the lower-cased principal identity.
type Provider[P comparable] interface {
	// UserPermissions returns the permissions granted to the user directly.
	UserPermissions(ctx context.Context, principalID string) (Set[P], error)

	// GroupPermissions returns the permissions the user inherits from groups.
	GroupPermissions(ctx context.Context, principalID string) (Set[P], error)

	// AllPermissions returns the union of user and group permissions.
	AllPermissions(ctx context.Context, principalID string) (Set[P], error)
}

// UserPermissionsOf looks up direct permissions for a subject.
func UserPermissionsOf[P comparable](ctx context.Context, pv Provider[P], s Subject) (Set[P], error) {
	return pv.UserPermissions(ctx, s.PrincipalID())
}

// GroupPermissionsOf looks up inherited permissions for a subject.
func GroupPermissionsOf[P comparable](ctx context.Context, pv Provider[P], s Subject) (Set[P], error) {
	return pv.GroupPermissions(ctx, s.PrincipalID())
}

// AllPermissionsOf looks up the full permission set for a subject.
func AllPermissionsOf[P comparable](ctx context.Context, pv Provider[P], s Subject) (Set[P], error) {
	return pv.AllPermissions(ctx, s.PrincipalID())
}

// MergeAll is the default AllPermissions composition for providers that only
// store user and group sets separately.
func MergeAll[P comparable](ctx context.Context, pv Provider[P], principalID string) (Set[P], error) {
	userSet, err := pv.UserPermissions(ctx, principalID)
	if err != nil {
		return nil, err
	}
	groupSet, err := pv.GroupPermissions(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if userSet == nil {
		return groupSet, nil
	}
	return userSet.Merge(groupSet), nil
}
