package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	data, err := s.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, s.Save(ctx, "sid", []byte("payload"), time.Hour))
	data, err = s.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, s.Invalidate(ctx, "sid"))
	data, err = s.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := now
	s := NewMemoryStore().WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	})
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "sid", []byte("x"), time.Minute))

	// Activity within the TTL slides the deadline.
	mu.Lock()
	clock = now.Add(50 * time.Second)
	mu.Unlock()
	data, err := s.Load(ctx, "sid")
	require.NoError(t, err)
	require.NotNil(t, data)

	mu.Lock()
	clock = now.Add(100 * time.Second)
	mu.Unlock()
	data, err = s.Load(ctx, "sid")
	require.NoError(t, err)
	assert.NotNil(t, data, "deadline slid forward on the previous load")

	mu.Lock()
	clock = now.Add(10 * time.Minute)
	mu.Unlock()
	data, err = s.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, data, "idle session past its TTL reads as absent")
}

func TestMemoryStoreSweep(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := now
	s := NewMemoryStore().WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	})
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "a", []byte("x"), time.Minute))
	require.NoError(t, s.Save(ctx, "b", []byte("y"), time.Hour))

	mu.Lock()
	clock = now.Add(2 * time.Minute)
	mu.Unlock()

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreRotateID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "old", []byte("x"), time.Hour))
	newID, err := s.RotateID(ctx, "old")
	require.NoError(t, err)
	assert.NotEqual(t, "old", newID)

	data, err := s.Load(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = s.Load(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	// Rotating an unknown id still yields a usable fresh id.
	fresh, err := s.RotateID(ctx, "unknown")
	require.NoError(t, err)
	assert.NotEmpty(t, fresh)
}

func TestLoginRotatesSessionID(t *testing.T) {
	store := NewMemoryStore()
	sess := newAuthSession(store, time.Hour, NewID(), sessionData{})
	before := sess.ID()

	require.NoError(t, sess.Login(context.Background(), "vovan", []byte("hash")))

	assert.NotEqual(t, before, sess.ID(), "login must rotate the session id")
	assert.True(t, sess.IsAuthenticated())
	assert.Equal(t, "vovan", sess.Principal())
	assert.Equal(t, []byte("hash"), sess.AuthHash())
}

func TestLogoutClearsSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sess := newAuthSession(store, time.Hour, NewID(), sessionData{})

	require.NoError(t, sess.Login(ctx, "vovan", []byte("hash")))
	saved, err := sess.persist(ctx)
	require.NoError(t, err)
	require.True(t, saved)
	loggedInID := sess.ID()

	require.NoError(t, sess.Logout(ctx))
	assert.False(t, sess.IsAuthenticated())
	assert.Empty(t, sess.Principal())
	assert.NotEqual(t, loggedInID, sess.ID())

	data, err := store.Load(ctx, loggedInID)
	require.NoError(t, err)
	assert.Nil(t, data, "logout must drop the stored record")
}

func TestPersistSkipsUntouchedSession(t *testing.T) {
	store := NewMemoryStore()
	sess := newAuthSession(store, time.Hour, NewID(), sessionData{})

	saved, err := sess.persist(context.Background())
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Equal(t, 0, store.Len())
}

func TestSessionValues(t *testing.T) {
	store := NewMemoryStore()
	sess := newAuthSession(store, time.Hour, NewID(), sessionData{})

	assert.Empty(t, sess.Get("oauth_state"))
	sess.Set("oauth_state", "abc")
	assert.Equal(t, "abc", sess.Get("oauth_state"))
	sess.Delete("oauth_state")
	assert.Empty(t, sess.Get("oauth_state"))
}
