package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotRegistered     = errors.New("user is not registered")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNoDisplayName     = errors.New("display name is not set")
	ErrNoPendingApproval = errors.New("no pending approval request")
)

// CryptoError reports a vault failure: malformed ciphertext or a blob
// produced under a different key. Fatal to the affected user's session,
// never to the process.
type CryptoError struct {
	Err error
}

func (e *CryptoError) Error() string { return "credential vault: " + e.Err.Error() }
func (e *CryptoError) Unwrap() error { return e.Err }

// AuthKind classifies an authentication failure.
type AuthKind string

const (
	AuthInvalidCredentials AuthKind = "invalid_credentials"
	AuthUnreachable        AuthKind = "unreachable"
)

// AuthError reports a failed login exchange. The session is left
// unauthenticated; the user can retry by re-entering credentials.
type AuthError struct {
	Kind AuthKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("authentication failed (%s)", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RemoteError is a non-2xx status on a data call. When part of a batch the
// single affected item is skipped.
type RemoteError struct {
	Op     string
	Status int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote returned status %d", e.Op, e.Status)
}

// TransportError is a network or timeout failure on a remote call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
