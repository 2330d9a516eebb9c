package auth

import (
	"net/http"
	"strings"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/response"
)

// Authenticate rejects requests without a valid bearer token and stores the
// actor in the request context.
func Authenticate(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				token = ""
			}

			actor, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				response.Error(w, errors.New(errors.ErrCodeUnauthorized, err.Error()))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole allows only actors holding one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				response.Error(w, errors.New(errors.ErrCodeUnauthorized, ErrMissingToken.Error()))
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, errors.New(errors.ErrCodeForbidden, "insufficient role"))
		})
	}
}
