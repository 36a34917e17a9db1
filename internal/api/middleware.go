/**
 * @description
 * Session extraction middleware. The portal does not verify tokens itself —
 * that is the session validator's job against the auth provider — so this
 * middleware only lifts the caller's token pair off the request and into the
 * context for handlers to hand to the validator.
 */
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/stormwellnessclub/member-portal/internal/domain"
)

type contextKey string

const sessionContextKey contextKey = "portalSession"

// RefreshTokenHeader carries the refresh token alongside the bearer token.
const RefreshTokenHeader = "X-Refresh-Token"

// SessionExtractor pulls the access/refresh token pair into the request
// context. Requests without an Authorization header pass through with no
// session; the gate resolves those to sign-in rather than rejecting here,
// because the gate's answer is itself the product.
func SessionExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		session := &domain.Session{
			AccessToken:  token,
			RefreshToken: strings.TrimSpace(r.Header.Get(RefreshTokenHeader)),
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext returns the caller's token pair, or nil.
func SessionFromContext(ctx context.Context) *domain.Session {
	session, _ := ctx.Value(sessionContextKey).(*domain.Session)
	return session
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
