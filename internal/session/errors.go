package session

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRefreshFailed reports that the refresh endpoint rejected the
	// refresh credential or could not be reached.
	ErrRefreshFailed = errors.New("session refresh failed")
	// ErrSessionTerminated reports that credentials were cleared and the
	// caller was sent to the login route. Terminal; nothing retries it.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrNotReplayable is returned internally when a request body cannot
	// be rewound for a replay.
	ErrNotReplayable = errors.New("request cannot be replayed")
)

// StatusError is a non-2xx upstream response. The session layer never
// interprets it beyond 401 recovery; callers decide what it means.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if len(e.Body) > 0 {
		body := e.Body
		if len(body) > 200 {
			body = body[:200]
		}
		msg += ": " + string(body)
	}
	return msg
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// IsUnauthorized reports whether err is an upstream 401.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}
