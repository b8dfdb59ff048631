package composite

import (
	"crypto/subtle"
	"net/http"
	"runtime/debug"

	"authgate/auth"
	"authgate/authz"
	"authgate/observability/logging"
	"authgate/session"
	"authgate/user"
)

// RequireAuthentication authenticates the request before next runs: the
// session is consulted first, then the backends that can authenticate from
// request metadata. An unauthenticated request gets the negotiated
// challenge; backend failures become a 500 with a logged stack.
func (b *Backend[P]) RequireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logging.FromContextOr(ctx, b.logger)

		u, authType, err := b.authenticateRequest(r)
		if err != nil {
			log.Error("Authentication failed", logging.Err(err), "stack", string(debug.Stack()))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if u == nil {
			b.ProposeChallenge(r).ServeHTTP(w, r)
			return
		}

		log.Debug("Request authenticated", "user", u.PrincipalID(), "auth_type", string(authType))
		ctx = auth.ContextWithUser(ctx, u)
		ctx = auth.ContextWithAuthType(ctx, authType)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (b *Backend[P]) authenticateRequest(r *http.Request) (user.User, auth.AuthType, error) {
	ctx := r.Context()
	log := logging.FromContextOr(ctx, b.logger)

	if sess := session.FromContext(ctx); sess != nil && sess.IsAuthenticated() {
		u, err := b.GetUser(ctx, sess.Principal())
		if err != nil {
			return nil, "", err
		}
		if u != nil && subtle.ConstantTimeCompare(u.SessionAuthHash(), sess.AuthHash()) == 1 {
			return u, auth.AuthTypeSession, nil
		}
		// The credential behind the session rotated or the user is gone;
		// the session is no longer trustworthy.
		log.Info("Session invalidated by credential change", "user", sess.Principal())
		if err := sess.Logout(ctx); err != nil {
			return nil, "", err
		}
	}

	for _, sub := range b.subBackends() {
		ra, ok := sub.backend.(auth.RequestAuthenticator)
		if !ok {
			continue
		}
		u, err := ra.AuthenticateRequest(r)
		if err != nil {
			return nil, "", err
		}
		if u != nil {
			b.metrics.RecordAuthentication(string(sub.typ), true)
			return u, sub.typ, nil
		}
	}
	return nil, "", nil
}

// RequirePermissions authorizes an already-authenticated request against
// required: the user's merged user and group permissions must cover it.
// Denials are logged with the user, the resource and the missing
// permissions, and answered with 403.
func (b *Backend[P]) RequirePermissions(required authz.Set[P]) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logging.FromContextOr(ctx, b.logger)

			u := auth.UserFromContext(ctx)
			if u == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			held, err := b.perms.AllPermissions(ctx, u.PrincipalID())
			if err != nil {
				log.Error("Failed to fetch permissions", logging.Err(err), "user", u.PrincipalID())
				b.metrics.RecordAuthorization("error")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			result := authz.VerifyRequired[P](held, required)
			if !result.Authorized() {
				log.Warn("Unauthorized access",
					"user", u.PrincipalID(),
					"resource", r.URL.Path,
					"missing", result.String())
				b.metrics.RecordAuthorization("denied")
				http.Error(w, "Unauthorized", http.StatusForbidden)
				return
			}

			b.metrics.RecordAuthorization("granted")
			next.ServeHTTP(w, r)
		})
	}
}
