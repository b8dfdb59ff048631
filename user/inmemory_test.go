package user

import (
	"context"
	"strings"
	"testing"

	"authgate/authz"
	"authgate/secure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLookupIsCaseInsensitive(t *testing.T) {
	p := NewInMemoryProvider(NewAccount("Vovan").WithPassword(secure.NewFromString("qwerty")))

	for _, id := range []string{"vovan", "VOVAN", "Vovan"} {
		u, err := p.GetUserByPrincipal(context.Background(), id)
		require.NoError(t, err, id)
		require.NotNil(t, u, id)
		assert.Equal(t, "vovan", u.PrincipalID())
		assert.Equal(t, strings.ToLower(id), u.PrincipalID())
	}

	u, err := p.GetUserByPrincipal(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, u, "unknown principal reads as absent, not as an error")
}

func TestInMemoryLookupReturnsSnapshot(t *testing.T) {
	p := NewInMemoryProvider(NewAccount("vovan").WithPassword(secure.NewFromString("qwerty")))

	u1, err := p.GetUserByPrincipal(context.Background(), "vovan")
	require.NoError(t, err)
	u1.(*Account).SetPassword(secure.NewFromString("mutated"))

	u2, err := p.GetUserByPrincipal(context.Background(), "vovan")
	require.NoError(t, err)
	assert.Equal(t, []byte("qwerty"), u2.SessionAuthHash())
}

func TestInMemoryRotatePassword(t *testing.T) {
	p := NewInMemoryProvider(NewAccount("vovan").WithPassword(secure.NewFromString("old")))

	u, err := p.RotatePassword(context.Background(), "VOVAN", secure.NewFromString("new"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), u.SessionAuthHash())

	_, err = p.RotatePassword(context.Background(), "nobody", secure.NewFromString("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryUpsertAccessToken(t *testing.T) {
	p := NewInMemoryProvider()

	u, err := p.UpsertAccessToken(context.Background(), "OAuth.User", secure.NewFromString("t1"))
	require.NoError(t, err)
	assert.Equal(t, "oauth.user", u.PrincipalID())
	assert.Equal(t, []byte("t1"), u.SessionAuthHash())

	u, err = p.UpsertAccessToken(context.Background(), "oauth.user", secure.NewFromString("t2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("t2"), u.SessionAuthHash(), "second upsert replaces the token")
}

func TestInMemoryPermissions(t *testing.T) {
	p := NewInMemoryProvider(NewAccount("vovan").WithRoles(authz.RoleRead))
	p.GrantGroupRoles("vovan", authz.RoleWrite)

	all, err := p.AllPermissions(context.Background(), "Vovan")
	require.NoError(t, err)
	assert.True(t, all.Contains(authz.RoleRead))
	assert.True(t, all.Contains(authz.RoleWrite))
	assert.False(t, all.Contains(authz.RoleAdmin))

	none, err := p.AllPermissions(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, none.IsEmpty())
}
