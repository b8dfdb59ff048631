// Package user defines the user record contracts, the provider lookup
// contract and its reference implementations (in-memory, Postgres, cached).
package user

import (
	"strings"

	"authgate/authz"
	"authgate/secure"
)

// User is the minimal observable surface of a user record. Implementations
// are free to carry any additional fields.
type User interface {
	// PrincipalID is the stable lookup key, always lower-cased.
	PrincipalID() string

	// SessionAuthHash returns bytes whose change invalidates existing
	// sessions: the access token if present, else the password hash, else
	// empty.
	SessionAuthHash() []byte
}

// PswUser is a user that may hold a password.
type PswUser interface {
	User
	Password() *secure.String
	SetPassword(psw *secure.String)
}

// OAuth2User is a user that may hold an OAuth2 access token.
type OAuth2User interface {
	User
	AccessToken() *secure.String
	SetAccessToken(token *secure.String)
}

// Account is the library's ready-made user record.
type Account struct {
	ID          int64
	username    string
	password    *secure.String
	accessToken *secure.String
	roles       authz.BitSet[authz.Role]
}

// NewAccount creates an account for username. The principal identity is the
// lower-cased username.
func NewAccount(username string) *Account {
	return &Account{
		username: strings.ToLower(username),
		roles:    authz.Roles(),
	}
}

// WithPassword sets the stored password hash and returns the account.
func (a *Account) WithPassword(psw *secure.String) *Account {
	a.password = psw
	return a
}

// WithRoles sets the granted roles and returns the account.
func (a *Account) WithRoles(rs ...authz.Role) *Account {
	a.roles = authz.Roles(rs...)
	return a
}

// PrincipalID implements User.
func (a *Account) PrincipalID() string { return a.username }

// SessionAuthHash implements User: access token if present, else password
// hash, else empty.
func (a *Account) SessionAuthHash() []byte {
	if a.accessToken != nil && a.accessToken.Len() > 0 {
		return a.accessToken.Bytes()
	}
	if a.password != nil && a.password.Len() > 0 {
		return a.password.Bytes()
	}
	return nil
}

// Password implements PswUser.
func (a *Account) Password() *secure.String {
	return a.password.Clone()
}

// SetPassword implements PswUser. The previous secret is wiped.
func (a *Account) SetPassword(psw *secure.String) {
	if a.password != nil {
		a.password.Destroy()
	}
	a.password = psw
}

// AccessToken implements OAuth2User.
func (a *Account) AccessToken() *secure.String {
	return a.accessToken.Clone()
}

// SetAccessToken implements OAuth2User. The previous secret is wiped.
func (a *Account) SetAccessToken(token *secure.String) {
	if a.accessToken != nil {
		a.accessToken.Destroy()
	}
	a.accessToken = token
}

// Roles returns the granted role set.
func (a *Account) Roles() authz.BitSet[authz.Role] { return a.roles }

// Clone returns a deep copy. Providers hand out clones so request handlers
// never alias provider-owned state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	return &Account{
		ID:          a.ID,
		username:    a.username,
		password:    a.password.Clone(),
		accessToken: a.accessToken.Clone(),
		roles:       a.roles,
	}
}
