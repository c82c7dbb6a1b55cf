package auth

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tavernlink/internal/apperr"
)

// bcrypt обрезает ввод после 72 байт.
const (
	minPasswordLen = 6
	maxPasswordLen = 72
)

func validatePassword(pw string) error {
	if len(pw) < minPasswordLen || len(pw) > maxPasswordLen {
		return apperr.Newf(apperr.Invalid, "password must be %d-%d characters", minPasswordLen, maxPasswordLen)
	}
	return nil
}

// HashPassword проверяет длину и хеширует bcrypt.
func HashPassword(pw string) (string, error) {
	if err := validatePassword(pw); err != nil {
		return "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "hash password", err)
	}
	return string(h), nil
}

func CheckPassword(hash, pw string) bool {
	return hash != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NewRecoveryKey — ключ вида XXXX-XXXX-XXXX-XXXX (hex, верхний регистр). Показывается один раз.
func NewRecoveryKey() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := strings.ToUpper(hex.EncodeToString(b))
	return s[0:4] + "-" + s[4:8] + "-" + s[8:12] + "-" + s[12:16], nil
}

// normalizeRecoveryKey убирает пробелы и дефисы, приводит к верхнему регистру: ключ вводят вручную.
func normalizeRecoveryKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(k) {
		if r == '-' || r == ' ' || r == '\t' || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
