package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"devvault.dev/internal/auth"
	"devvault.dev/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var (
	errMissingToken = errors.New("missing bearer token")
	errBadScheme    = errors.New("invalid authorization scheme")
)

// withAuth lets public paths through and requires a valid bearer token
// everywhere else. On failure the wrapped handler is never invoked.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.RecordTokenValidation("missing")
			writeUnauthenticated(w, r)
			return
		}

		claims, err := a.validator.Validate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				obs.RecordTokenValidation("rejected")
				writeUnauthenticated(w, r)
				return
			}
			writeDomainError(w, r, err)
			return
		}
		obs.RecordTokenValidation("ok")

		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errBadScheme
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

func (a *API) isPublicPath(path string) bool {
	for _, g := range a.public {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// callerID returns the authenticated identity. withAuth guarantees it on
// protected routes; a miss is reported as unauthenticated.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.IdentityIDFromContext(r.Context())
	if !ok {
		writeUnauthenticated(w, r)
		return "", false
	}
	return id, true
}
