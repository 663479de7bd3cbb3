package auth

import (
	"encoding/json"
	"net/http"

	"github.com/sakif/sipp/internal/apperror"
)

// Require is a middleware that enforces the gate for one operation.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new http.Handler that
// wraps it:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... before ...
//	        next.ServeHTTP(w, r)
//	    })
//	}
//
// Chi mounts it per route (r.With(auth.Require(gate, auth.OpDelete))), so
// the check happens before the handler runs and before any storage lookup.
// A denied request gets 401 with the same JSON error body the handlers use.
func Require(gate *Gate, op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := gate.Authorize(op, r.Header.Get(HeaderName)); err != nil {
				writeUnauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := "valid API key required"
	if appErr, ok := err.(*apperror.AppError); ok {
		msg = appErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `ApiKey header="`+HeaderName+`"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
