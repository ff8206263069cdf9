package myMiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"mensajeria/internal/participant"
)

type contextKey string

const CallerKey contextKey = "caller"

// TokenValidator keeps this package independent of how tokens are checked.
type TokenValidator interface {
	ValidateToken(tokenString string) (*participant.Participant, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = parts[1]
			}
		}

		// Browsers cannot set headers on websocket upgrades.
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			unauthorized(w, "falta el token de autenticación")
			return
		}

		caller, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			unauthorized(w, "token inválido")
			return
		}

		ctx := WithCaller(r.Context(), caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithCaller(ctx context.Context, p *participant.Participant) context.Context {
	return context.WithValue(ctx, CallerKey, p)
}

// Caller returns the identity the auth middleware resolved for this request.
func Caller(ctx context.Context) (*participant.Participant, bool) {
	p, ok := ctx.Value(CallerKey).(*participant.Participant)
	return p, ok && p != nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized", "mensaje": msg})
}
