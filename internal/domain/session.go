package domain

import "time"

// Session is the authenticated-session state of a user. The zero value means
// unauthenticated; a session holding a bearer token is authenticated. There is
// no third state: an expired token is discovered through a 401 and the user
// drops back to the zero value.
type Session struct {
	token       string
	expiresHint time.Time
}

// NewSession returns an authenticated session bound to token. expiresHint may
// be the zero time when the remote token carries no readable expiry.
func NewSession(token string, expiresHint time.Time) Session {
	return Session{token: token, expiresHint: expiresHint}
}

// Authenticated reports whether the session holds a bearer token.
func (s Session) Authenticated() bool {
	return s.token != ""
}

// Token returns the bearer token, or the empty string when unauthenticated.
func (s Session) Token() string {
	return s.token
}

// ExpiresHint returns the advisory expiry extracted from the token, if any.
// The hint is never authoritative; only a 401 from the remote proves expiry.
func (s Session) ExpiresHint() (time.Time, bool) {
	return s.expiresHint, !s.expiresHint.IsZero()
}
