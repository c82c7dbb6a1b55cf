package middleware

import (
	"context"

	"github.com/tavernlink/internal/model"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	UserKey   contextKey = "user"
)

// GetUserID возвращает user_id из контекста (устанавливается BearerAuth).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetUser возвращает пользователя, загруженного BearerAuth на момент запроса.
func GetUser(ctx context.Context) *model.User {
	u, _ := ctx.Value(UserKey).(*model.User)
	return u
}

// WithUser кладёт пользователя в контекст; используется BearerAuth и тестами.
func WithUser(ctx context.Context, u *model.User) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, u.ID)
	return context.WithValue(ctx, UserKey, u)
}
