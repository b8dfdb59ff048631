package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/observability/logging"
)

func newTestMiddleware(store Store) func(http.Handler) http.Handler {
	return Middleware(store, Config{}, logging.NewTestLogger())
}

func TestMiddlewareSetsCookieAfterLogin(t *testing.T) {
	store := NewMemoryStore()
	mw := newTestMiddleware(store)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := FromContext(r.Context())
		require.NotNil(t, sess)
		require.NoError(t, sess.Login(r.Context(), "vovan", []byte("hash")))
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/login", nil))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, DefaultCookieName, c.Name)
	assert.NotEmpty(t, c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 1, store.Len())
}

func TestMiddlewareRestoresSessionFromCookie(t *testing.T) {
	store := NewMemoryStore()
	mw := newTestMiddleware(store)

	login := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, FromContext(r.Context()).Login(r.Context(), "vovan", []byte("hash")))
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	login.ServeHTTP(w, httptest.NewRequest("POST", "/login", nil))
	cookie := w.Result().Cookies()[0]

	var principal string
	show := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = FromContext(r.Context()).Principal()
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest("GET", "/secret", nil)
	r.AddCookie(cookie)
	w2 := httptest.NewRecorder()
	show.ServeHTTP(w2, r)

	assert.Equal(t, "vovan", principal)
	// Nothing changed, so no new cookie is issued.
	assert.Empty(t, w2.Result().Cookies())
}

func TestMiddlewareAnonymousRequestStoresNothing(t *testing.T) {
	store := NewMemoryStore()
	mw := newTestMiddleware(store)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Empty(t, w.Result().Cookies())
	assert.Equal(t, 0, store.Len())
}

func TestMiddlewareDiscardsUnknownCookie(t *testing.T) {
	store := NewMemoryStore()
	mw := newTestMiddleware(store)

	var authed bool
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed = FromContext(r.Context()).IsAuthenticated()
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "stale-or-forged"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.False(t, authed)
}

func TestMiddlewarePersistsValueChanges(t *testing.T) {
	store := NewMemoryStore()
	mw := newTestMiddleware(store)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Set("oauth2_state", "ABC")
		w.WriteHeader(http.StatusFound)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/secret", nil))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	var state string
	show := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state = FromContext(r.Context()).Get("oauth2_state")
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest("GET", "/oauth2/callback", nil)
	r.AddCookie(cookies[0])
	show.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "ABC", state)
}
