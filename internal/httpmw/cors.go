package httpmw

import (
	"net/http"
	"strings"
)

// CORSOptions configures the CORS middleware. The API is read-only, so only
// GET/OPTIONS and the API key header are ever allowed.
type CORSOptions struct {
	// AllowedOrigins lists origins granted access. "*" allows any origin.
	// Empty disables CORS entirely (no headers emitted).
	AllowedOrigins []string
}

// CORS returns middleware that answers preflight requests and stamps
// Access-Control headers on responses for allowed origins.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
			continue
		}
		if o != "" {
			allowed[o] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || (!allowAll && !allowed[origin]) {
				// not a CORS request, or origin not granted: pass through
				// with no Access-Control headers
				if r.Method == http.MethodOptions && origin != "" {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "X-Api-Key, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
