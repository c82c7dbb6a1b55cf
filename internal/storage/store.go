package storage

import (
	"context"
	"time"
)

// AttemptStore — счётчики попыток входа/регистрации/сброса пароля и метки отзыва токенов.
// Реализации: redis.Client, memory.Client (для -dev и -memory без Redis).
type AttemptStore interface {
	// CheckRateLimit учитывает попытку по ключу (например "login:alice|10.0.0.1"); false — лимит исчерпан.
	CheckRateLimit(ctx context.Context, key string) (allowed bool, err error)
	// RevokeUser помечает все токены пользователя, выданные до at, как недействительные.
	RevokeUser(ctx context.Context, userID string, at time.Time) error
	// RevokedAt возвращает метку отзыва; нулевое время — отзыва не было.
	RevokedAt(ctx context.Context, userID string) (time.Time, error)
	Close() error
}

// Лимит попыток: AttemptLimit за AttemptWindow на ключ. RevocationTTL не меньше срока жизни токена.
const (
	AttemptWindow = 10 * time.Minute
	AttemptLimit  = 10
	RevocationTTL = 30 * 24 * time.Hour
)
