// Package middleware provides HTTP middleware for the local API.
package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// DefaultHeaders are the request headers the local API reads.
var DefaultHeaders = []string{"Accept", "Authorization", "Content-Type"}

// CORSPolicy describes which cross-origin requests are answered.
type CORSPolicy struct {
	// Origins lists allowed origins. "*" echoes any origin but never with credentials.
	Origins []string
	// Methods advertised on preflight, usually RouteMethods of the served router.
	Methods []string
	// Headers a UI may send. Empty means DefaultHeaders.
	Headers []string
	MaxAge  time.Duration
}

// RouteMethods returns the sorted methods registered anywhere under routes.
func RouteMethods(routes chi.Routes) ([]string, error) {
	set := make(map[string]struct{})
	walk := func(method, _ string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		set[method] = struct{}{}
		return nil
	}
	if err := chi.Walk(routes, walk); err != nil {
		return nil, fmt.Errorf("walk routes: %w", err)
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	slices.Sort(out)
	return out, nil
}

// match reports whether origin is allowed and whether it was listed explicitly.
func (p CORSPolicy) match(origin string) (allowed, explicit bool) {
	for _, o := range p.Origins {
		if o == origin {
			return true, true
		}
		if o == "*" {
			allowed = true
		}
	}
	return allowed, false
}

// CORS returns middleware enforcing p. Requests without an Origin pass through
// untouched; a preflight from a disallowed origin or for an unserved method is
// refused with 403.
func CORS(p CORSPolicy) func(http.Handler) http.Handler {
	headers := p.Headers
	if len(headers) == 0 {
		headers = DefaultHeaders
	}
	allowHeaders := strings.Join(headers, ", ")
	allowMethods := strings.Join(append(slices.Clone(p.Methods), http.MethodOptions), ", ")
	maxAge := ""
	if p.MaxAge > 0 {
		maxAge = strconv.Itoa(int(p.MaxAge / time.Second))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			requested := r.Header.Get("Access-Control-Request-Method")
			preflight := r.Method == http.MethodOptions && requested != ""
			allowed, explicit := p.match(origin)

			if !allowed {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			if explicit {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			if !slices.Contains(p.Methods, requested) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", allowMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
			if maxAge != "" {
				w.Header().Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
