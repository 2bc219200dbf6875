package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/bundle-quote/internal/common"
)

// APIKeyHeader is the header carrying the gateway key.
const APIKeyHeader = "X-Api-Gateway-Key"

// APIKey gates requests behind a shared gateway key. An empty Key disables the check.
type APIKey struct {
	Key    string
	Header string
}

// Middleware rejects requests whose key header does not match with HTTP 401.
func (a APIKey) Middleware(next http.Handler) http.Handler {
	expected := strings.TrimSpace(a.Key)
	if expected == "" {
		return next
	}
	header := strings.TrimSpace(a.Header)
	if header == "" {
		header = APIKeyHeader
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := strings.TrimSpace(r.Header.Get(header))
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid api key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
