package auth

import (
	"context"
	"net/http"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"

	"go.uber.org/zap"
)

// TokenValidator — интерфейс проверки токенов консоли
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Ключи контекста (отдельный тип, чтобы избежать коллизий)
type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyRole   ctxKey = "user_role"
)

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ctxKeyRole, claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID достает ID авторизованного оператора из контекста.
// Пустая строка — запрос пришел мимо middleware (не должно случаться).
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return id
	}
	return ""
}

// Role достает роль оператора из контекста.
func Role(ctx context.Context) string {
	if role, ok := ctx.Value(ctxKeyRole).(string); ok {
		return role
	}
	return ""
}
