package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CallerHeader carries the principal address a request acts as. Lifecycle
// authorization (admin set, oracle identity) is enforced downstream against
// this address; the header itself is only trusted behind API-key auth.
const CallerHeader = "X-Caller-Address"

type callerKey struct{}

// Auth returns middleware that requires the configured API key, presented
// either as a Bearer token or in the X-API-Key header. An empty apiKey
// disables authentication entirely.
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := tokenFrom(r)
			if !ok {
				writeUnauthorized(w, "missing authentication token")
				return
			}
			// Constant-time comparison to prevent timing attacks.
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				writeUnauthorized(w, "invalid authentication token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Caller returns middleware that parses the caller principal header into the
// request context. Requests without the header pass through unchanged;
// handlers that need a caller reject them individually.
func Caller() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v := strings.TrimSpace(r.Header.Get(CallerHeader)); v != "" {
				if !common.IsHexAddress(v) {
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusBadRequest)
					w.Write([]byte(`{"error":"invalid ` + CallerHeader + ` header"}`))
					return
				}
				ctx := context.WithValue(r.Context(), callerKey{}, common.HexToAddress(v))
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerFrom extracts the caller principal stored by the Caller middleware.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// tokenFrom pulls the credential from Authorization: Bearer or X-API-Key.
func tokenFrom(r *http.Request) (string, bool) {
	if scheme, rest, found := strings.Cut(r.Header.Get("Authorization"), " "); found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(rest), true
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}
	return "", false
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
