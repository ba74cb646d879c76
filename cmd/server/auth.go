package main

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Simplici0/margins/internal/margin"
)

// acknowledgeHeader carries the warning keys the client has already
// dismissed, comma separated.
const acknowledgeHeader = "X-Acknowledge-Warnings"

// authMiddleware requires "Authorization: Bearer <API_TOKEN>" when a token is
// configured.
func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		provided, ok := bearerToken(r)
		if !ok || !tokensEqual(provided, s.apiToken) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="margins"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// tokensEqual compares digests so the comparison time does not depend on
// the token length.
func tokensEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

// acknowledgeWarnings attaches the dismissed warning keys to the request
// context for the duration of the call.
func acknowledgeWarnings(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(acknowledgeHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		var keys []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		next.ServeHTTP(w, r.WithContext(margin.WithAcknowledged(r.Context(), keys...)))
	})
}
