package push

import "errors"

var (
	// ErrProfileNeedsConfiguration indicates Configure was never called for the profile.
	ErrProfileNeedsConfiguration = errors.New("profile needs configuration")
	// ErrProfileNotRegistered indicates the profile is configured but has no uaid yet.
	ErrProfileNotRegistered = errors.New("profile not registered")
	// ErrMissingField indicates a required argument or server field was empty.
	ErrMissingField = errors.New("missing required field")
)

// goneError is implemented by server errors that can say the resource no
// longer exists.
type goneError interface {
	IsGone() bool
}

// isGone reports whether err says the server has already forgotten the
// resource.
func isGone(err error) bool {
	var g goneError
	return errors.As(err, &g) && g.IsGone()
}
