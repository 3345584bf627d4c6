package autopush

import (
	"fmt"
	"net/http"
)

// Error is a failure reported by the push server.
type Error struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Errno      int    `json:"errno"`
	ErrorName  string `json:"error"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("autopush: status %d errno %d: %s", e.StatusCode, e.Errno, e.Message)
}

// IsGone reports whether the server no longer knows the user agent or
// channel.
func (e *Error) IsGone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}
