package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/session"
)

// sanitizeInput removes control characters (except tab, newline and
// carriage return) and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// upstreamResponse maps an error from the session pipeline to the response
// the gateway sends. A terminated session redirects to the login route;
// upstream statuses are relayed with their body.
func (s *Server) upstreamResponse(ctx context.Context, op string, err error) *JSONResponseBuilder {
	logger := log.FromContext(ctx)
	var se *session.StatusError

	switch {
	case errors.Is(err, session.ErrSessionTerminated):
		logger.InfoContext(ctx, "Session terminated, redirecting to login", log.FieldOperation, op, log.FieldError, err.Error())
		return SeeOther(s.loginRoute)
	case errors.As(err, &se):
		logger.WarnContext(ctx, "Upstream rejected request", log.FieldOperation, op, log.FieldStatusCode, se.StatusCode)
		if json.Valid(se.Body) && len(se.Body) > 0 {
			return NewJSONResponse().Status(se.StatusCode).Body(json.RawMessage(se.Body))
		}
		msg := strings.TrimSpace(string(se.Body))
		if msg == "" {
			msg = http.StatusText(se.StatusCode)
		}
		return ErrorResponse(se.StatusCode, msg)
	case errors.Is(err, api.ErrNoIDs), errors.Is(err, api.ErrNoBankLink):
		return BadRequestError(err.Error())
	case isValidationError(err):
		return UnprocessableEntityError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.ErrorContext(ctx, "Upstream timed out", log.FieldOperation, op, log.FieldError, err.Error())
		return ErrorResponse(http.StatusGatewayTimeout, "upstream timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; status is only for the access log.
		return ErrorResponse(499, "request canceled")
	default:
		log.NewStructuredLogger(logger).LogError(ctx, "Upstream call failed", err, log.ComponentGateway, op, nil)
		return ErrorResponse(http.StatusBadGateway, "upstream unavailable")
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount, core.ErrEmptyName, core.ErrEmptyCategory,
		core.ErrInvalidType, core.ErrInvalidDate, core.ErrInvalidRecurring,
		core.ErrInvalidSettings,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
