// Package envelope шифрует содержимое сообщений общим секретом инсталляции.
// Конверт: hex(nonce) + ":" + hex(ciphertext||tag), AES-256-GCM, ключ из PBKDF2-SHA256.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Salt и Iterations общие с браузерным клиентом — менять только вместе.
	Salt       = "tavernlink_salt_v1"
	Iterations = 100000
	KeySize    = 32
	NonceSize  = 12
	separator  = ":"
)

// Placeholder подставляется вместо сообщения, которое не удалось расшифровать.
const Placeholder = "🛡️ [Encrypted Message - Cannot Decrypt]"

type Key [KeySize]byte

// DeriveKey растягивает секрет инсталляции в 256-битный ключ. Детерминирована и дорога по CPU.
func DeriveKey(secret string) Key {
	var k Key
	copy(k[:], pbkdf2.Key([]byte(secret), []byte(Salt), Iterations, KeySize, sha256.New))
	return k
}

// Encrypt шифрует plaintext со свежим случайным nonce.
func Encrypt(plaintext string, key Key) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("envelope nonce: %w", err)
	}
	ct := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + separator + hex.EncodeToString(ct), nil
}

// Decrypt никогда не возвращает ошибку: битый или подделанный конверт превращается в Placeholder,
// чтобы одно испорченное сообщение не ломало отображение истории.
func Decrypt(env string, key Key) string {
	nonce, ct, ok := parse(env)
	if !ok {
		return Placeholder
	}
	gcm, err := newGCM(key)
	if err != nil {
		return Placeholder
	}
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return Placeholder
	}
	return string(pt)
}

// LooksLikeEnvelope проверяет только формат (без ключа): два hex-поля, nonce нужной длины, есть тег.
func LooksLikeEnvelope(s string) bool {
	_, _, ok := parse(s)
	return ok
}

// NewSecret генерирует секрет инсталляции (64 случайных байта в hex).
func NewSecret() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("envelope secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func parse(env string) (nonce, ct []byte, ok bool) {
	nonceHex, ctHex, found := strings.Cut(env, separator)
	if !found || nonceHex == "" || ctHex == "" {
		return nil, nil, false
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != NonceSize {
		return nil, nil, false
	}
	ct, err = hex.DecodeString(ctHex)
	if err != nil || len(ct) < 16 {
		return nil, nil, false
	}
	return nonce, ct, true
}

func newGCM(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("envelope cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
