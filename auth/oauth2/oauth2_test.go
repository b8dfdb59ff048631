package oauth2

import (
	"context"
	"net/http"
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

func testConfig(serverURL string) Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: secure.NewFromString("client-secret"),
		AuthURL:      serverURL + "/authorize",
		TokenURL:     serverURL + "/token",
		UserinfoURL:  serverURL + "/userinfo",
		RedirectURL:  "http://localhost/oauth2/callback",
	}
}

// newAuthServer fakes the authorization server: the token endpoint issues
// tok123 and the userinfo endpoint resolves it to login Vovan.
func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		if r.PostFormValue("code") != "xyz" && r.FormValue("code") != "xyz" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok123","token_type":"bearer"}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		assert.Equal(t, "authgate/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"login":"Vovan"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestConfigValidation(t *testing.T) {
	provider := user.NewInMemoryProvider()
	logger := logging.NewTestLogger()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing client id", func(c *Config) { c.ClientID = "" }},
		{"missing client secret", func(c *Config) { c.ClientSecret = nil }},
		{"missing auth url", func(c *Config) { c.AuthURL = "" }},
		{"missing token url", func(c *Config) { c.TokenURL = "" }},
		{"missing userinfo url", func(c *Config) { c.UserinfoURL = "" }},
		{"missing redirect url", func(c *Config) { c.RedirectURL = "" }},
		{"malformed auth url", func(c *Config) { c.AuthURL = "not a url" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig("http://auth.example.com")
			tc.mutate(&cfg)
			_, err := New(provider, cfg, logger)
			var confErr *auth.ConfigError
			assert.ErrorAs(t, err, &confErr)
		})
	}

	_, err := New(provider, testConfig("http://auth.example.com"), logger)
	assert.NoError(t, err)
}

func TestStateMismatchRejected(t *testing.T) {
	b, err := New(user.NewInMemoryProvider(), testConfig("http://auth.example.com"), logging.NewTestLogger())
	require.NoError(t, err)

	u, err := b.Authenticate(context.Background(), auth.OAuth2Credentials{
		Code:          "xyz",
		ClientState:   "ABC",
		ReturnedState: "ABD",
	})
	require.NoError(t, err)
	assert.Nil(t, u)

	// A callback without any stored state is a mismatch too.
	u, err = b.Authenticate(context.Background(), auth.OAuth2Credentials{
		Code:          "xyz",
		ReturnedState: "ABC",
	})
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestAuthenticateExchangesAndUpserts(t *testing.T) {
	srv := newAuthServer(t)
	provider := user.NewInMemoryProvider()
	b, err := New(provider, testConfig(srv.URL), logging.NewTestLogger())
	require.NoError(t, err)

	sess := session.New(session.NewMemoryStore(), time.Hour)
	ctx := session.WithSession(context.Background(), sess)

	u, err := b.Authenticate(ctx, auth.OAuth2Credentials{
		Code:          "xyz",
		ClientState:   "ABC",
		ReturnedState: "ABC",
	})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "vovan", u.PrincipalID())
	assert.Equal(t, "vovan", sess.Principal())

	stored, err := provider.GetUserByPrincipal(ctx, "vovan")
	require.NoError(t, err)
	require.NotNil(t, stored)
	token := stored.(user.OAuth2User).AccessToken()
	assert.True(t, token.ConstantTimeEqBytes([]byte("tok123")))
}

func TestRejectedExchangeYieldsNoUser(t *testing.T) {
	srv := newAuthServer(t)
	b, err := New(user.NewInMemoryProvider(), testConfig(srv.URL), logging.NewTestLogger())
	require.NoError(t, err)

	u, err := b.Authenticate(context.Background(), auth.OAuth2Credentials{
		Code:          "bad-code",
		ClientState:   "ABC",
		ReturnedState: "ABC",
	})
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestProposeChallengeRedirectsWithState(t *testing.T) {
	b, err := New(user.NewInMemoryProvider(), testConfig("http://auth.example.com"), logging.NewTestLogger())
	require.NoError(t, err)

	sess := session.New(session.NewMemoryStore(), time.Hour)
	r := httptest.NewRequest("GET", "/secret?tab=2", nil)
	r = r.WithContext(session.WithSession(r.Context(), sess))

	h := b.ProposeChallenge(r)
	require.NotNil(t, h)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, 302, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location.String(), "http://auth.example.com/authorize"))
	assert.Equal(t, "code", location.Query().Get("response_type"))
	assert.Equal(t, "client-id", location.Query().Get("client_id"))

	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, state, sess.Get("oauth2_state"))
	assert.Equal(t, "/secret?tab=2", sess.Get("oauth2_next"))
}

func TestProposeChallengeNeedsSession(t *testing.T) {
	b, err := New(user.NewInMemoryProvider(), testConfig("http://auth.example.com"), logging.NewTestLogger())
	require.NoError(t, err)

	assert.Nil(t, b.ProposeChallenge(httptest.NewRequest("GET", "/secret", nil)))
}

func TestCallbackHandlerRedirectsToNext(t *testing.T) {
	srv := newAuthServer(t)
	b, err := New(user.NewInMemoryProvider(), testConfig(srv.URL), logging.NewTestLogger())
	require.NoError(t, err)

	sess := session.New(session.NewMemoryStore(), time.Hour)
	sess.Set("oauth2_state", "ABC")
	sess.Set("oauth2_next", "/secret")

	r := httptest.NewRequest("GET", "/oauth2/callback?code=xyz&state=ABC", nil)
	r = r.WithContext(session.WithSession(r.Context(), sess))
	w := httptest.NewRecorder()
	b.CallbackHandler().ServeHTTP(w, r)

	assert.Equal(t, 302, w.Code)
	assert.Equal(t, "/secret", w.Header().Get("Location"))
	assert.Equal(t, "vovan", sess.Principal())
}

func TestCallbackHandlerRejectsTamperedState(t *testing.T) {
	srv := newAuthServer(t)
	b, err := New(user.NewInMemoryProvider(), testConfig(srv.URL), logging.NewTestLogger())
	require.NoError(t, err)

	sess := session.New(session.NewMemoryStore(), time.Hour)
	sess.Set("oauth2_state", "ABC")

	r := httptest.NewRequest("GET", "/oauth2/callback?code=xyz&state=ABD", nil)
	r = r.WithContext(session.WithSession(r.Context(), sess))
	w := httptest.NewRecorder()
	b.CallbackHandler().ServeHTTP(w, r)

	assert.Equal(t, 401, w.Code)
	assert.False(t, sess.IsAuthenticated())
}
