package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware attaches verified claims to the request context. Requests without
// a valid token pass through unauthenticated; handlers decide what that means.
type Middleware struct {
	config Config
	logger *slog.Logger
}

// NewMiddleware constructs Middleware with validation config.
func NewMiddleware(cfg Config, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return Middleware{config: cfg, logger: logger}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.parseRequest(r)
		if err != nil {
			if err != ErrMissingToken {
				m.logger.DebugContext(r.Context(), "bearer token rejected", "path", r.URL.Path, "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, ErrInvalidToken
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return Parse(token, m.config)
}
