// Package cors configures cross-origin access to the HTTP API.
package cors

import (
	"net/http"

	"github.com/rs/cors"
)

// Middleware wraps next with CORS handling that admits the given origins and
// request headers. Browser-based upload tooling posting artifacts
// cross-origin is the motivating client.
func Middleware(allowOrigins []string, allowHeaders []string, next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowOrigins,
		AllowedHeaders: allowHeaders,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	})
	return c.Handler(next)
}
