// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds the configuration for CORS middleware.
type CORSConfig struct {
	AllowedOrigins   []string // Explicit origin allowlist; empty disables CORS handling
	AllowedMethods   []string // Defaults to the methods the API serves
	AllowedHeaders   []string // Defaults to Content-Type, Authorization, X-Request-ID
	AllowCredentials bool
	MaxAge           int // Preflight cache duration in seconds
}

// corsPolicy is a compiled CORSConfig: origin set plus pre-joined header values.
type corsPolicy struct {
	origins     map[string]struct{}
	methods     string
	headers     string
	credentials bool
	maxAge      string
}

// CORS returns middleware enforcing a strict origin allowlist. Wildcards are
// not supported: the dashboard is served from known origins and anything else
// gets a 403. Same-origin requests (no Origin header) pass through untouched.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := compile(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if len(policy.origins) == 0 || origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := policy.origins[origin]; !ok {
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			if policy.credentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Access-Control-Allow-Methods", policy.methods)
			w.Header().Set("Access-Control-Allow-Headers", policy.headers)

			if r.Method == http.MethodOptions {
				if policy.maxAge != "" {
					w.Header().Set("Access-Control-Max-Age", policy.maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func compile(cfg CORSConfig) corsPolicy {
	policy := corsPolicy{
		origins:     make(map[string]struct{}),
		credentials: cfg.AllowCredentials,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			policy.origins[origin] = struct{}{}
		}
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	policy.methods = strings.Join(methods, ", ")

	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "Authorization", RequestIDHeader}
	}
	policy.headers = strings.Join(headers, ", ")

	if cfg.MaxAge > 0 {
		policy.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return policy
}
