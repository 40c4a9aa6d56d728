package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"venuelink.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = map[string]bool{
	"/v1/auth/login":    true,
	"/v1/auth/register": true,
	"/v1/auth/refresh":  true,
	"/v1/info":          true,
	"/healthz":          true,
	"/readyz":           true,
	"/metrics":          true,
	"/":                 true,
}

// withAuth verifies the bearer access token on every protected path
// and attaches the resolved principal to the context. The routing
// layer's translation of rejection reasons to HTTP statuses lives
// entirely here.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "missing_token", err.Error())
			return
		}

		principal, err := a.sessions.Authenticate(r.Context(), token)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}

		// Authenticated traffic is also throttled per subject, so a
		// single account cannot evade the limit by rotating source IPs.
		if a.limiter != nil {
			decision := a.limiter.Admit(r.Context(), "subject:"+principal.User.ID)
			if !decision.Allowed {
				writeRateLimited(w, r, decision)
				return
			}
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAccess runs the authorization evaluator for the request's
// principal and writes the 403 itself on denial.
func requireAccess(w http.ResponseWriter, r *http.Request, req auth.AccessRequest) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing_token", "authentication required")
		return auth.Principal{}, false
	}
	if !auth.Authorize(principal, req) {
		writeError(w, r, http.StatusForbidden, "forbidden", "permission denied")
		return auth.Principal{}, false
	}
	return principal, true
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
