package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey struct{}

// AgentFromContext returns the authenticated agent attached by
// Middleware, or nil if the request never passed through it.
func AgentFromContext(ctx context.Context) *Agent {
	agent, _ := ctx.Value(contextKey{}).(*Agent)
	return agent
}

// WithAgent attaches an agent to the context. Exported for handler
// tests that bypass the middleware.
func WithAgent(ctx context.Context, agent *Agent) context.Context {
	return context.WithValue(ctx, contextKey{}, agent)
}

// Middleware guards a downstream handler: requests without a valid,
// authorized bearer token are rejected with 401 and the handler is
// never invoked. On success the agent identity is attached to the
// request context.
func Middleware(authn *Authenticator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				logger.Debug().Str("remote", r.RemoteAddr).Msg("request without bearer credential")
				writeUnauthorized(w)
				return
			}

			agent, err := authn.Authenticate(token)
			if err != nil {
				logger.Info().Err(err).Str("remote", r.RemoteAddr).Msg("authentication failed")
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAgent(r.Context(), agent)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	// Fixed body: authentication failures never leak detail.
	w.Write([]byte(`{"error":"unauthorized"}`))
}
