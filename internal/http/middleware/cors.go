package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedHeaders = "Authorization, Content-Type"
	corsAllowedMethods = "GET, POST, OPTIONS"
)

// originPolicy matches request origins against the configured allowlist.
// Entries are exact origins, "*", or a single-label wildcard such as
// "https://*.clinica.example".
type originPolicy struct {
	exact    map[string]struct{}
	patterns []string
	any      bool
}

func newOriginPolicy(allowedOrigins []string) originPolicy {
	p := originPolicy{exact: map[string]struct{}{}}
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case origin == "*":
			p.any = true
		case strings.Contains(origin, "://*."):
			p.patterns = append(p.patterns, origin)
		default:
			p.exact[origin] = struct{}{}
		}
	}
	return p
}

// match reports whether origin is allowed and whether it was named
// explicitly. Only named origins get credentialed responses.
func (p originPolicy) match(origin string) (allowed, named bool) {
	if _, ok := p.exact[origin]; ok {
		return true, true
	}
	for _, pattern := range p.patterns {
		scheme, rest, _ := strings.Cut(pattern, "*")
		if !strings.HasPrefix(origin, scheme) || !strings.HasSuffix(origin, rest) {
			continue
		}
		label := strings.TrimSuffix(strings.TrimPrefix(origin, scheme), rest)
		if label != "" && !strings.ContainsAny(label, "./:") {
			return true, true
		}
	}
	return p.any, false
}

// CORS answers cross-origin requests from the allowlist. The chat
// authenticates with a session cookie, so credentials are only allowed for
// origins matched by name or wildcard pattern, never through "*".
// Preflights from unknown origins are rejected with 403.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			preflight := r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != ""
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			allowed, named := policy.match(origin)
			if !allowed {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
			w.Header().Set("Access-Control-Max-Age", "600")
			if named {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
