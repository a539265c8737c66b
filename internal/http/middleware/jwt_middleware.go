package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/meridianhq/visitdesk/internal/http/response"
	"github.com/meridianhq/visitdesk/pkg/auth"
	"github.com/meridianhq/visitdesk/pkg/logger"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// RequireJWT guards the staff API. Kiosk routes are mounted outside it.
func RequireJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "invalid authorization header")
				return
			}
			raw := strings.TrimPrefix(authz, "Bearer ")
			claims, err := auth.Parse(raw, secret)
			if err != nil {
				response.Unauthorized(w, "invalid authorization token")
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			ctx = context.WithValue(ctx, logger.ActorKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Claims(r *http.Request) *auth.Claims {
	v := r.Context().Value(CtxClaims)
	if v == nil {
		return nil
	}
	return v.(*auth.Claims)
}

// Actor names the authenticated staff user for audit rows, or "staff" when
// claims are missing (only possible on unguarded routes).
func Actor(r *http.Request) string {
	if c := Claims(r); c != nil {
		return c.Email
	}
	return "staff"
}
