package http

import (
	"context"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/session"
)

var startedAt = time.Now()

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether the credential store answers. Being logged
// out is still ready; an unreachable store is not.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	status, code := "ready", http.StatusOK

	creds, err := s.session.Credentials(ctx)
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		checks["credential_store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["credential_store"] = "ok"
		if creds.LoggedIn() {
			checks["session"] = "logged_in"
		} else {
			checks["session"] = "logged_out"
		}
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleLogin accepts form or JSON credentials.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	username := p.Get("username")
	password := p.GetSecret("password")
	if username == "" || password == "" {
		UnprocessableEntityError("username and password are required").Write(w)
		return
	}

	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	if err := s.session.Login(ctx, username, password); err != nil {
		if session.IsUnauthorized(err) || session.IsStatus(err, http.StatusBadRequest) {
			log.FromContext(ctx).InfoContext(ctx, "Login rejected", log.FieldOperation, log.OpLogin)
			ErrorResponse(http.StatusUnauthorized, "invalid credentials").Write(w)
			return
		}
		s.upstreamResponse(ctx, log.OpLogin, err).Write(w)
		return
	}
	NewJSONResponse().Body(core.AuthStatus{Authenticated: true}).Write(w)
}

// handleLogout always succeeds locally; the backend call is best effort.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	if err := s.session.Logout(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Logout incomplete", log.FieldOperation, log.OpLogout, log.FieldError, err.Error())
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.upstreamContext(r)
	defer cancel()
	NewJSONResponse().Body(s.session.AuthStatus(ctx)).Write(w)
}
