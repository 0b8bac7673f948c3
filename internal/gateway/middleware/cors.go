package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

var connectHeaders = []string{
	"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "X-Request-ID",
	"Connect-Protocol-Version", "Connect-Timeout-Ms", "Grpc-Timeout", "X-Grpc-Web", "X-User-Agent",
	"Connect-Content-Encoding", "Connect-Accept-Encoding",
}

var exposedHeaders = []string{
	"X-Request-ID", "Grpc-Status", "Grpc-Message", "Grpc-Encoding", "Grpc-Accept-Encoding",
	"Connect-Content-Encoding", "Connect-Accept-Encoding",
}

// CORS allows the listed origins, or every origin when the list is empty.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   connectHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: len(allowedOrigins) > 0,
		MaxAge:           300,
	}
	if len(allowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.Handler(opts)
}

// OriginAllowed applies the CORS origin policy to requests the CORS handler
// cannot block, such as websocket upgrades. Requests without an Origin header
// come from non-browser clients and are allowed. A single "*" inside an entry
// matches any run of characters, as go-chi/cors does.
func OriginAllowed(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := strings.ToLower(r.Header.Get("Origin"))
		if origin == "" || len(allowedOrigins) == 0 {
			return true
		}
		for _, allowed := range allowedOrigins {
			allowed = strings.ToLower(strings.TrimSpace(allowed))
			if allowed == "*" || allowed == origin {
				return true
			}
			if prefix, suffix, ok := strings.Cut(allowed, "*"); ok &&
				len(origin) >= len(prefix)+len(suffix) &&
				strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				return true
			}
		}
		return false
	}
}
