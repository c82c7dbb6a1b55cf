// Package auth — учётные записи: регистрация, вход, сброс пароля по ключу восстановления
// и bearer-токены для Request API и push-канала.
package auth

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/storage"
	"github.com/tavernlink/internal/store"
)

var (
	errBadCredentials = apperr.New(apperr.Unauthorized, "invalid username or password")
	errBadRecovery    = apperr.New(apperr.Unauthorized, "invalid username or recovery key")
	errTooMany        = apperr.New(apperr.TooManyRequests, "too many attempts, try again later")
)

type Service struct {
	store    *store.Store
	attempts storage.AttemptStore
	tokens   *Tokens
}

func NewService(st *store.Store, attempts storage.AttemptStore, tokens *Tokens) *Service {
	return &Service{store: st, attempts: attempts, tokens: tokens}
}

func (s *Service) Tokens() *Tokens { return s.tokens }

type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ResetPasswordRequest struct {
	Username    string `json:"username"`
	RecoveryKey string `json:"recovery_key"`
	NewPassword string `json:"new_password"`
}

// Session — ответ на register/login/reset. RecoveryKey заполняется только при регистрации.
type Session struct {
	Token       string           `json:"token"`
	ExpiresAt   time.Time        `json:"expires_at"`
	User        model.UserPublic `json:"user"`
	RecoveryKey string           `json:"recovery_key,omitempty"`
}

func (s *Service) limit(ctx context.Context, op, username, ip string) error {
	key := op + ":" + strings.ToLower(strings.TrimSpace(username)) + "|" + ip
	ok, err := s.attempts.CheckRateLimit(ctx, key)
	if err != nil {
		// Недоступность хранилища попыток не блокирует вход.
		logger.Errorf("auth: rate limit check %s: %v", op, err)
		return nil
	}
	if !ok {
		return errTooMany
	}
	return nil
}

func (s *Service) session(u *model.User, recoveryKey string) (*Session, error) {
	token, exp, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u.ToPublic(), RecoveryKey: recoveryKey}, nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest, ip string) (*Session, error) {
	if err := s.limit(ctx, "register", req.Username, ip); err != nil {
		return nil, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	key, err := NewRecoveryKey()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "recovery key", err)
	}
	keyHash, err := bcrypt.GenerateFromPassword([]byte(normalizeRecoveryKey(key)), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "hash recovery key", err)
	}
	u, err := s.store.CreateUser(ctx, &model.User{
		Username:        req.Username,
		DisplayName:     req.DisplayName,
		PasswordHash:    hash,
		RecoveryKeyHash: string(keyHash),
		Role:            model.RoleUser,
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("auth: registered user id=%s username=%s", u.ID, u.Username)
	return s.session(u, key)
}

func (s *Service) Login(ctx context.Context, req LoginRequest, ip string) (*Session, error) {
	if err := s.limit(ctx, "login", req.Username, ip); err != nil {
		return nil, err
	}
	u, err := s.store.GetUserByUsername(ctx, req.Username)
	if apperr.Is(err, apperr.NotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, req.Password) {
		return nil, errBadCredentials
	}
	return s.session(u, "")
}

// ResetPassword меняет пароль по ключу восстановления и отзывает все выданные ранее токены.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest, ip string) (*Session, error) {
	if err := s.limit(ctx, "reset", req.Username, ip); err != nil {
		return nil, err
	}
	u, err := s.store.GetUserByUsername(ctx, req.Username)
	if apperr.Is(err, apperr.NotFound) {
		return nil, errBadRecovery
	}
	if err != nil {
		return nil, err
	}
	if u.RecoveryKeyHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(u.RecoveryKeyHash), []byte(normalizeRecoveryKey(req.RecoveryKey))) != nil {
		return nil, errBadRecovery
	}
	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetPasswordHash(ctx, u.ID, hash); err != nil {
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, u.ID); err != nil {
		logger.Errorf("auth: revoke tokens user=%s: %v", u.ID, err)
	}
	s.store.EndSessions(u.ID)
	logger.Infof("auth: password reset user=%s", u.ID)
	return s.session(u, "")
}

// ChangePassword — смена пароля самим пользователем; старые токены отзываются.
func (s *Service) ChangePassword(ctx context.Context, userID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.SetPasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, userID); err != nil {
		return err
	}
	s.store.EndSessions(userID)
	return nil
}

// Authenticate проверяет токен и существование пользователя (удалённый пользователь — Unauthorized).
func (s *Service) Authenticate(ctx context.Context, raw string) (*model.User, error) {
	id, err := s.tokens.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, id)
	if apperr.Is(err, apperr.NotFound) {
		return nil, apperr.New(apperr.Unauthorized, "user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
