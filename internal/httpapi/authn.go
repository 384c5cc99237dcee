package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"courtside.org/internal/auth"
	"courtside.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth verifies the bearer token on every non-public request and
// attaches the decoded claims to the context. Verification never touches
// storage; everything downstream middleware needs is in the claims.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		claims, err := a.auth.Verify(r.Context(), token)
		if err != nil {
			code := verifyErrorCode(err)
			obs.TokenVerification(code)
			if errors.Is(err, auth.ErrSigningKeyUnavailable) {
				writeError(w, http.StatusServiceUnavailable, code, "verification unavailable")
				return
			}
			writeError(w, http.StatusUnauthorized, code, "invalid token")
			return
		}
		obs.TokenVerification("ok")

		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verifyErrorCode maps the verification taxonomy to response codes so an
// operator can tell a garbage token from a legitimate-but-old one from a
// stale key set.
func verifyErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, auth.ErrUnknownKey):
		return "unknown_key"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, auth.ErrSigningKeyUnavailable):
		return "signing_unavailable"
	default:
		return "malformed_token"
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
