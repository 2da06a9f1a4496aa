package delivery

import (
	"net/http"

	"github.com/Vovarama1992/scribe/internal/ports"
)

var publicPaths = map[string]bool{
	"/api/login": true,
	"/health":    true,
	"/metrics":   true,
}

// AuthMiddleware checks the X-Auth header, or the token query parameter
// for websocket clients that cannot set headers.
func AuthMiddleware(auth ports.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Enabled() || publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get("X-Auth")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}

			ok, _ := auth.ValidateToken(r.Context(), token)
			if !ok {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
