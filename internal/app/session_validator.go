/**
 * @description
 * Session validation against the remote auth provider. A single pass
 * classifies a caller's token pair into valid, invalid or needs_repair.
 * JWT-class failures (expired or structurally broken tokens) purge the
 * cached session before any refresh is attempted, so a poisoned token is
 * never replayed; at most one refresh happens per pass and there is no
 * automatic retry loop — retries are user-initiated through session repair.
 */
package app

import (
	"context"
	"log"
	"time"

	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/pkg/authclient"
)

// AuthAPI is the slice of the auth provider the validator consumes.
type AuthAPI interface {
	GetUser(ctx context.Context, accessToken string) (*authclient.User, error)
	RefreshSession(ctx context.Context, refreshToken string) (*authclient.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// SessionCache is the cached-session store the validator purges and updates.
type SessionCache interface {
	Put(ctx context.Context, userID string, session domain.Session) error
	Purge(ctx context.Context, userID string) error
}

// SessionValidator runs validation passes.
type SessionValidator struct {
	auth  AuthAPI
	cache SessionCache
	now   func() time.Time
}

// NewSessionValidator creates a validator.
func NewSessionValidator(auth AuthAPI, cache SessionCache) *SessionValidator {
	return &SessionValidator{auth: auth, cache: cache, now: time.Now}
}

// Validate runs one validation pass over the presented session.
func (v *SessionValidator) Validate(ctx context.Context, session *domain.Session) domain.ValidationResult {
	result := v.validate(ctx, session)
	sessionValidations.WithLabelValues(string(result.State)).Inc()
	return result
}

func (v *SessionValidator) validate(ctx context.Context, session *domain.Session) domain.ValidationResult {
	if session == nil || session.AccessToken == "" {
		return domain.ValidationResult{State: domain.SessionInvalid}
	}

	user, err := v.auth.GetUser(ctx, session.AccessToken)
	if err == nil {
		confirmed := &domain.User{ID: user.ID, Email: user.Email}
		v.cacheSession(ctx, confirmed.ID, *session)
		return domain.ValidationResult{State: domain.SessionValid, User: confirmed, Session: session}
	}

	// Prefer the provider's classification, fall back to local token
	// structure when the provider's error is ambiguous.
	jwtClass := authclient.IsJWTError(err) ||
		authclient.ClassifyAccessToken(session.AccessToken, v.now()) != nil

	if jwtClass {
		return v.recoverFromJWTError(ctx, session)
	}
	return v.recoverFromTransientError(ctx, session)
}

// recoverFromJWTError handles an expired or broken access token: purge the
// cached session first, then attempt a single refresh.
func (v *SessionValidator) recoverFromJWTError(ctx context.Context, session *domain.Session) domain.ValidationResult {
	v.purgeSession(ctx, session)

	refreshed, err := v.auth.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		// Unrecoverable: the refresh token is as dead as the access token.
		v.signOut(ctx, session)
		return domain.ValidationResult{State: domain.SessionInvalid}
	}

	next := sessionFromRefresh(refreshed)
	user, err := v.auth.GetUser(ctx, next.AccessToken)
	if err != nil {
		return domain.ValidationResult{State: domain.SessionInvalid}
	}
	confirmed := &domain.User{ID: user.ID, Email: user.Email}
	v.cacheSession(ctx, confirmed.ID, *next)
	return domain.ValidationResult{State: domain.SessionValid, User: confirmed, Session: next}
}

// recoverFromTransientError handles a non-JWT getUser failure with a single
// standard refresh attempt.
func (v *SessionValidator) recoverFromTransientError(ctx context.Context, session *domain.Session) domain.ValidationResult {
	refreshed, err := v.auth.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		if authclient.IsJWTError(err) {
			return domain.ValidationResult{State: domain.SessionInvalid}
		}
		return domain.ValidationResult{State: domain.SessionNeedsRepair}
	}

	next := sessionFromRefresh(refreshed)
	user, err := v.auth.GetUser(ctx, next.AccessToken)
	if err != nil {
		if authclient.IsJWTError(err) {
			return domain.ValidationResult{State: domain.SessionInvalid}
		}
		return domain.ValidationResult{State: domain.SessionNeedsRepair}
	}
	confirmed := &domain.User{ID: user.ID, Email: user.Email}
	v.cacheSession(ctx, confirmed.ID, *next)
	return domain.ValidationResult{State: domain.SessionValid, User: confirmed, Session: next}
}

// HardReset wipes the cached session and revokes it with the provider. Both
// steps are idempotent; failures are logged and swallowed because the caller
// is being sent to sign-in regardless.
func (v *SessionValidator) HardReset(ctx context.Context, session *domain.Session) {
	if session == nil {
		return
	}
	v.purgeSession(ctx, session)
	v.signOut(ctx, session)
}

func (v *SessionValidator) purgeSession(ctx context.Context, session *domain.Session) {
	userID := subjectOf(session)
	if userID == "" {
		return
	}
	if err := v.cache.Purge(ctx, userID); err != nil {
		log.Printf("Failed to purge cached session for user %s: %v", userID, err)
	}
}

func (v *SessionValidator) cacheSession(ctx context.Context, userID string, session domain.Session) {
	if err := v.cache.Put(ctx, userID, session); err != nil {
		log.Printf("Failed to cache session for user %s: %v", userID, err)
	}
}

func (v *SessionValidator) signOut(ctx context.Context, session *domain.Session) {
	if err := v.auth.SignOut(ctx, session.AccessToken); err != nil {
		log.Printf("Sign out during session recovery failed: %v", err)
	}
}

func sessionFromRefresh(s *authclient.Session) *domain.Session {
	next := &domain.Session{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
	if s.User != nil {
		next.User = &domain.User{ID: s.User.ID, Email: s.User.Email}
	}
	return next
}

// subjectOf extracts the user id from the session without trusting it for
// anything beyond choosing a cache key.
func subjectOf(session *domain.Session) string {
	if session.User != nil && session.User.ID != "" {
		return session.User.ID
	}
	return authclient.SubjectFromToken(session.AccessToken)
}
