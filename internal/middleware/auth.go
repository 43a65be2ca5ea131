// Package middleware содержит HTTP middleware для сервиса парктрек.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/parktrack/parktrack-system/internal/model"
)

type contextKey string

const (
	userIDKey   contextKey = "userID"
	userRoleKey contextKey = "userRole"
)

const (
	authCookieName = "auth_token"
	authCookieTTL  = 365 * 24 * time.Hour
)

// AuthMiddleware выполняет проверку аутентификации пользователя по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie авторизации и добавляет идентификатор и роль
// пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		userID, role, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, userRoleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole пропускает только пользователей с указанной ролью.
// Используется после Middleware.
func (a *AuthMiddleware) RequireRole(role model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := GetUserRoleFromContext(r.Context())
			if !ok || got != role {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetAuthCookie устанавливает cookie авторизации для указанного пользователя.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, userID int64, role model.UserRole) {
	value := a.signPayload(payloadString(userID, role))

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func payloadString(userID int64, role model.UserRole) string {
	return strconv.FormatInt(userID, 10) + ":" + string(role)
}

func (a *AuthMiddleware) signPayload(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	signature := mac.Sum(nil)
	return payload + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (int64, model.UserRole, bool) {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return 0, "", false
	}

	payload := parts[0]
	signature := parts[1]

	expected := a.signPayload(payload)
	expectedParts := strings.Split(expected, ".")
	if len(expectedParts) != 2 {
		return 0, "", false
	}

	if !hmac.Equal([]byte(signature), []byte(expectedParts[1])) {
		return 0, "", false
	}

	payloadParts := strings.SplitN(payload, ":", 2)
	if len(payloadParts) != 2 {
		return 0, "", false
	}

	id, err := strconv.ParseInt(payloadParts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}

	return id, model.UserRole(payloadParts[1]), true
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// GetUserRoleFromContext извлекает роль пользователя из контекста запроса.
func GetUserRoleFromContext(ctx context.Context) (model.UserRole, bool) {
	role, ok := ctx.Value(userRoleKey).(model.UserRole)
	return role, ok
}
