package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/storage"
)

const DefaultTokenTTL = 7 * 24 * time.Hour

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Tokens выдаёт и проверяет bearer-токены (HS256). Отзыв хранится в AttemptStore.
type Tokens struct {
	secret  []byte
	ttl     time.Duration
	revoked storage.AttemptStore
	now     func() time.Time
}

func NewTokens(secret string, ttl time.Duration, revoked storage.AttemptStore) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, revoked: revoked, now: time.Now}
}

func (t *Tokens) Issue(userID string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth.Issue: %w", err)
	}
	return signed, exp, nil
}

// Validate возвращает user_id. Любая ошибка — Unauthorized; токены, выданные раньше метки отзыва, отклоняются.
func (t *Tokens) Validate(ctx context.Context, raw string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithIssuedAt())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperr.New(apperr.Unauthorized, "token expired")
		}
		return "", apperr.New(apperr.Unauthorized, "invalid token")
	}
	if !token.Valid || claims.UserID == "" || claims.IssuedAt == nil {
		return "", apperr.New(apperr.Unauthorized, "invalid token")
	}
	if t.revoked != nil {
		at, err := t.revoked.RevokedAt(ctx, claims.UserID)
		if err != nil {
			return "", apperr.Wrap(apperr.Internal, "revocation lookup failed", err)
		}
		// Точность iat — секунды: токен, выданный в ту же секунду, что и отзыв, остаётся действительным.
		if !at.IsZero() && claims.IssuedAt.Unix() < at.Unix() {
			return "", apperr.New(apperr.Unauthorized, "token revoked")
		}
	}
	return claims.UserID, nil
}

// Revoke делает недействительными все ранее выданные токены пользователя.
func (t *Tokens) Revoke(ctx context.Context, userID string) error {
	if t.revoked == nil {
		return nil
	}
	return t.revoked.RevokeUser(ctx, userID, t.now())
}
