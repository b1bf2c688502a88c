package session

import (
	"net/http"
	"strings"
)

// Auth endpoint paths, relative to the API base URL.
const (
	PathLogin       = "/auth/"
	PathGoogleLogin = "/auth/google/"
	PathSignup      = "/auth/signup/"
	PathRefresh     = "/auth/refresh/"
	PathLogout      = "/auth/logout/"
	PathStatus      = "/auth/status/"
)

// DefaultAuthEndpoints are exempt from refresh and replay: a 401 there
// means the credential itself was rejected.
var DefaultAuthEndpoints = []string{PathLogin, PathGoogleLogin, PathSignup, PathRefresh, PathLogout}

// AuthEndpoints matches request paths against the auth endpoint set.
type AuthEndpoints struct {
	basePath string
	paths    map[string]struct{}
}

// NewAuthEndpoints builds a matcher for paths mounted under basePath.
func NewAuthEndpoints(basePath string, paths []string) AuthEndpoints {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[normalizePath(p)] = struct{}{}
	}
	return AuthEndpoints{basePath: strings.TrimSuffix(basePath, "/"), paths: set}
}

// Match reports whether path (absolute, as sent on the wire) is an auth endpoint.
func (a AuthEndpoints) Match(path string) bool {
	if a.basePath != "" {
		rel, ok := strings.CutPrefix(path, a.basePath)
		if !ok {
			return false
		}
		path = rel
	}
	_, ok := a.paths[normalizePath(path)]
	return ok
}

func normalizePath(p string) string {
	p = "/" + strings.Trim(p, "/")
	return strings.ToLower(p)
}

// isAuthFailure classifies a completed round trip. Only a 401 on a
// non-auth endpoint is recoverable; everything else passes through.
func (a AuthEndpoints) isAuthFailure(r *http.Request, resp *http.Response, err error) bool {
	if err != nil || resp == nil || r == nil || r.URL == nil {
		return false
	}
	return resp.StatusCode == http.StatusUnauthorized && !a.Match(r.URL.Path)
}
