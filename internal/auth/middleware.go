package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// FailureRecorder is an optional sink for auth outcome metrics.
type FailureRecorder interface {
	IncAuthFailure(authType string)
	IncAuthSuccess(authType string)
}

// Middleware returns middleware that requires a valid admin key in the
// Authorization header as a bearer token. When no key is configured
// the middleware is a pass-through.
func Middleware(v *Verifier, metrics FailureRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				if metrics != nil {
					metrics.IncAuthFailure("admin_key")
				}
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}
			if !v.Verify(token) {
				if metrics != nil {
					metrics.IncAuthFailure("admin_key")
				}
				writeUnauthorized(w, "invalid admin key")
				return
			}

			if metrics != nil {
				metrics.IncAuthSuccess("admin_key")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "unauthorized",
			Message: message,
		},
	})
}
