package httpapi

import (
	"net/http"
	"slices"
)

// cors answers preflight requests and grants the configured origins access to
// the API. "*" allows any origin.
type cors struct {
	origins  []string
	allowAll bool
}

func newCORS(origins []string) *cors {
	return &cors{origins: origins, allowAll: slices.Contains(origins, "*")}
}

func (c *cors) allowed(origin string) bool {
	return origin != "" && (c.allowAll || slices.Contains(c.origins, origin))
}

func (c *cors) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Add("Vary", "Origin")
		if c.allowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+requestIDHeader)
			h.Set("Access-Control-Expose-Headers", requestIDHeader)
			h.Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
