package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

// Authenticator проверяет bearer-токен и возвращает актуального пользователя.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*model.User, error)
}

// BearerToken достаёт токен из Authorization: Bearer <token>, иначе из query token (нужно для WebSocket).
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// BearerAuth пропускает запрос только с действующим токеном; пользователь кладётся в контекст.
func BearerAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				unauthorized(w, "unauthorized")
				return
			}
			u, err := a.Authenticate(r.Context(), raw)
			if err != nil {
				if apperr.KindOf(err) == apperr.Internal {
					logger.Errorf("bearer auth token=%s: %v", MaskToken(raw), err)
				}
				unauthorized(w, apperr.Message(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
