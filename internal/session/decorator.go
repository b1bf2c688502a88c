package session

import (
	"context"
	"net/http"

	"fintrack/internal/credstore"
	"fintrack/internal/log"
)

type attachedKey struct{}

// attachedToken records the bearer token Authorize put on the wire, so
// 401 recovery compares against what was actually sent.
type attachedToken struct {
	value string
}

func withAttachedToken(ctx context.Context) (context.Context, *attachedToken) {
	slot := &attachedToken{}
	return context.WithValue(ctx, attachedKey{}, slot), slot
}

// Authorize attaches the stored access token as a bearer credential. With
// no token stored the request goes out unauthenticated. A store error is
// logged and treated as "no token".
func Authorize(store credstore.Store, logger *log.Logger) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(r *http.Request) (*http.Response, error) {
			token, err := credstore.Lookup(r.Context(), store, credstore.KeyAccessToken)
			if err != nil {
				logger.WarnContext(r.Context(), "Reading access token failed, sending unauthenticated",
					log.FieldError, err, log.FieldPath, r.URL.Path)
			}

			if slot, ok := r.Context().Value(attachedKey{}).(*attachedToken); ok {
				slot.value = token
			}

			r = r.Clone(r.Context())
			if token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			} else {
				r.Header.Del("Authorization")
			}
			return next.Do(r)
		})
	}
}
