package api

import (
	"crypto/subtle"
	"net/http"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/transport"
)

// requireAPIKey rejects requests whose X-API-KEY header does not match key.
// An empty key disables the check.
func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(transport.APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				respondWithError(w, app_errors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
