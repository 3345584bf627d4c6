package fxaclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Server errno values the login states act on.
const (
	ErrnoAccountDoesNotExist  = 102
	ErrnoIncorrectPassword    = 103
	ErrnoUnverifiedAccount    = 104
	ErrnoInvalidToken         = 110
	ErrnoEndpointNotSupported = 116
)

const malformedMessage = "Response malformed"

// RemoteError is a structured failure reported by the account server, or a
// response that could not be understood (Malformed, HTTPStatusCode 0).
type RemoteError struct {
	HTTPStatusCode int    `json:"-"`
	Code           int    `json:"code"`
	Errno          int    `json:"errno"`
	ErrorName      string `json:"error"`
	Message        string `json:"message"`
	Malformed      bool   `json:"-"`

	cause error
}

func (e *RemoteError) Error() string {
	if e.Malformed {
		if e.cause != nil {
			return fmt.Sprintf("%s: %v", malformedMessage, e.cause)
		}
		return malformedMessage
	}
	return fmt.Sprintf("remote error: status %d errno %d: %s", e.HTTPStatusCode, e.Errno, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.cause
}

// IsInvalidAuth reports whether the credentials were rejected or revoked.
func (e *RemoteError) IsInvalidAuth() bool {
	if e.Malformed {
		return false
	}
	switch e.Errno {
	case ErrnoAccountDoesNotExist, ErrnoIncorrectPassword, ErrnoInvalidToken:
		return true
	}
	return e.HTTPStatusCode == http.StatusUnauthorized
}

// IsUnverified reports whether the account still needs email verification.
func (e *RemoteError) IsUnverified() bool {
	return !e.Malformed && e.Errno == ErrnoUnverifiedAccount
}

// IsUpgradeRequired reports whether this client speaks a protocol the server
// no longer supports.
func (e *RemoteError) IsUpgradeRequired() bool {
	if e.Malformed {
		return false
	}
	return e.Errno == ErrnoEndpointNotSupported || e.HTTPStatusCode == http.StatusGone
}

func newMalformedError(cause error) *RemoteError {
	return &RemoteError{
		HTTPStatusCode: 0,
		Message:        malformedMessage,
		Malformed:      true,
		cause:          cause,
	}
}

// AsRemoteError unwraps err into a *RemoteError if it holds one.
func AsRemoteError(err error) (*RemoteError, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote, true
	}
	return nil, false
}
