// internal/handlers/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ammerola/stockledger/internal/pkg/auth"
	"github.com/ammerola/stockledger/internal/pkg/logger"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Principal, error)
}

type principalKey struct{}

type actorSlotKey struct{}

// actorSlot lets Auth report the actor back to Logger, which wraps it.
type actorSlot struct {
	id  uuid.UUID
	set bool
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, p)
	ctx = context.WithValue(ctx, logger.ContextKeyActorID, p.UserID)
	return context.WithValue(ctx, logger.ContextKeyRole, string(p.Role))
}

// PrincipalFromContext returns the caller authenticated by Auth.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*auth.Principal)
	return p, ok && p != nil
}

// Auth rejects requests without a valid bearer token.
func Auth(verifier TokenVerifier, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrMissingToken) {
					msg = "missing bearer token"
				}
				l.WarnContext(r.Context(), "rejected bearer token", slog.String("error", err.Error()))
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", msg)
				return
			}

			if slot, ok := r.Context().Value(actorSlotKey{}).(*actorSlot); ok {
				slot.id = principal.UserID
				slot.set = true
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin allows only principals with the admin role. It must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		if !p.IsAdmin() {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
