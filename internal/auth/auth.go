package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type tokenKey struct{}

// VerifyToken извлекает Authorization заголовок входящего запроса.
// Проверку токена выполняет сам File Service, консоль лишь пробрасывает его.
func VerifyToken(r *http.Request) (string, error) {
	authToken := strings.TrimSpace(r.Header.Get("Authorization"))
	if authToken == "" {
		return "", fmt.Errorf("no authorization header")
	}
	return authToken, nil
}

// WithToken кладёт заголовок авторизации в контекст
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext возвращает заголовок авторизации или пустую строку
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Middleware пробрасывает Authorization в контекст запроса.
// Если required и заголовка нет, отвечает 401.
func Middleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := VerifyToken(r)
			if err != nil {
				if required {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
		})
	}
}
