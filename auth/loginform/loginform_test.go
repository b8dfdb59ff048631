package loginform

import (
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/auth"
	"authgate/observability/logging"
	"authgate/secure"
	"authgate/session"
	"authgate/user"
)

func newTestBackend() *Backend {
	provider := user.NewInMemoryProvider(
		user.NewAccount("vovan").WithPassword(secure.NewFromString("qwerty")),
	)
	return New(provider, auth.PlainComparator{}, Config{}, logging.NewTestLogger())
}

func newTestSession(store session.Store) *session.AuthSession {
	return session.New(store, time.Hour)
}

func TestAuthenticateLogsIntoSession(t *testing.T) {
	b := newTestBackend()
	store := session.NewMemoryStore()
	sess := newTestSession(store)
	ctx := session.WithSession(t.Context(), sess)
	before := sess.ID()

	u, err := b.Authenticate(ctx, auth.LoginFormCredentials{
		Username: "Vovan",
		Password: secure.NewFromString("qwerty"),
	})
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, "vovan", sess.Principal())
	assert.NotEqual(t, before, sess.ID())
}

func TestAuthenticateMismatchLeavesSessionAnonymous(t *testing.T) {
	b := newTestBackend()
	sess := newTestSession(session.NewMemoryStore())
	ctx := session.WithSession(t.Context(), sess)

	u, err := b.Authenticate(ctx, auth.LoginFormCredentials{
		Username: "vovan",
		Password: secure.NewFromString("wrong"),
	})
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.False(t, sess.IsAuthenticated())
}

func TestProposeChallenge(t *testing.T) {
	b := newTestBackend()

	r := httptest.NewRequest("GET", "/secret", nil)
	r.Header.Set("Accept", "text/html")
	h := b.ProposeChallenge(r)
	require.NotNil(t, h)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, 401, w.Code)
	assert.Equal(t, "/login?next=%2Fsecret", w.Header().Get("Location"))
	body, _ := io.ReadAll(w.Result().Body)
	assert.Contains(t, string(body),
		`<meta http-equiv="refresh" content="0; url=/login?next=%2Fsecret">`)
}

func TestLoginHandlerSuccessRedirects(t *testing.T) {
	b := newTestBackend()
	sess := newTestSession(session.NewMemoryStore())

	form := url.Values{
		"username": {"vovan"},
		"password": {"qwerty"},
		"next":     {"/secret"},
	}
	r := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r = r.WithContext(session.WithSession(r.Context(), sess))

	w := httptest.NewRecorder()
	b.LoginHandler().ServeHTTP(w, r)

	assert.Equal(t, 302, w.Code)
	assert.Equal(t, "/secret", w.Header().Get("Location"))
	assert.Equal(t, "vovan", sess.Principal())
}

func TestLoginHandlerRejectsBadCredentials(t *testing.T) {
	b := newTestBackend()
	sess := newTestSession(session.NewMemoryStore())

	form := url.Values{
		"username": {"vovan"},
		"password": {"wrong"},
	}
	r := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r = r.WithContext(session.WithSession(r.Context(), sess))

	w := httptest.NewRecorder()
	b.LoginHandler().ServeHTTP(w, r)

	assert.Equal(t, 401, w.Code)
	assert.False(t, sess.IsAuthenticated())
}

func TestLoginHandlerSanitizesNext(t *testing.T) {
	b := newTestBackend()
	sess := newTestSession(session.NewMemoryStore())

	form := url.Values{
		"username": {"vovan"},
		"password": {"qwerty"},
		"next":     {"//evil.example.com/"},
	}
	r := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r = r.WithContext(session.WithSession(r.Context(), sess))

	w := httptest.NewRecorder()
	b.LoginHandler().ServeHTTP(w, r)

	assert.Equal(t, 302, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestLogoutHandler(t *testing.T) {
	b := newTestBackend()
	store := session.NewMemoryStore()
	sess := newTestSession(store)
	ctx := session.WithSession(t.Context(), sess)

	_, err := b.Authenticate(ctx, auth.LoginFormCredentials{
		Username: "vovan",
		Password: secure.NewFromString("qwerty"),
	})
	require.NoError(t, err)
	require.True(t, sess.IsAuthenticated())

	r := httptest.NewRequest("GET", "/logout", nil)
	r = r.WithContext(session.WithSession(r.Context(), sess))
	w := httptest.NewRecorder()
	b.LogoutHandler().ServeHTTP(w, r)

	assert.Equal(t, 302, w.Code)
	assert.False(t, sess.IsAuthenticated())
}
