package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranik/storefront/internal/auth"
)

type contextKey int

const (
	contextKeyOperatorID contextKey = iota
)

// TokenVerifier validates operator bearer tokens
type TokenVerifier interface {
	VerifyToken(tokenString string) (*auth.TokenPayload, error)
}

// Auth verifies the bearer token and puts the operator id into the context
func Auth(ts TokenVerifier) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			payload, err := ts.VerifyToken(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyOperatorID, payload.OperatorID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorID extracts the verified operator id from context
func OperatorID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyOperatorID).(string)
	return id, ok
}
