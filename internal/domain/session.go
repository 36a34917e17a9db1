/**
 * @description
 * Session models for the portal. The session itself is owned by the remote
 * auth provider; the portal holds only a transient projection (the token pair
 * presented by the caller) and the derived validation state.
 */
package domain

// Session is the token pair presented by a caller, as issued by the remote
// auth provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// User is the authenticated identity confirmed by the auth provider.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SessionState classifies the outcome of a validation pass.
type SessionState string

const (
	// SessionValidating is the zero-ish state while a pass is in flight.
	SessionValidating SessionState = "validating"
	// SessionValid means the provider confirmed the session's user.
	SessionValid SessionState = "valid"
	// SessionInvalid forces re-authentication; the token pair is unusable.
	SessionInvalid SessionState = "invalid"
	// SessionNeedsRepair means the session exists but could not be confirmed
	// or refreshed for a non-auth-fatal reason. User-recoverable.
	SessionNeedsRepair SessionState = "needs_repair"
)

// ValidationResult is the full outcome of one validation pass.
type ValidationResult struct {
	State   SessionState `json:"state"`
	User    *User        `json:"user,omitempty"`
	Session *Session     `json:"-"`
}
