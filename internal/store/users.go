package store

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/event"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]{3,32}$`)

const maxDisplayName = 64

// UserChanges — изменения профиля на уровне хранилища (пароль уже захеширован). nil = не менять.
type UserChanges struct {
	DisplayName  *string
	Avatar       *string
	PasswordHash *string
	Role         *model.Role
	IsNarrator   *bool
}

func (c UserChanges) touchesRole() bool {
	return c.Role != nil || c.IsNarrator != nil
}

// CreateUser регистрирует пользователя. Имя уникально без учёта регистра; дубликат — Conflict.
func (s *Store) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	defer logger.DeferLogDuration("store.CreateUser", time.Now())()
	u.Username = strings.TrimSpace(u.Username)
	if !usernameRe.MatchString(u.Username) {
		return nil, apperr.New(apperr.Invalid, "username must be 3-32 letters, digits, '_', '-' or '.'")
	}
	if u.DisplayName = strings.TrimSpace(u.DisplayName); u.DisplayName == "" {
		u.DisplayName = u.Username
	}
	if len(u.DisplayName) > maxDisplayName {
		return nil, apperr.New(apperr.Invalid, "display name too long")
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	if !u.Role.Valid() {
		return nil, apperr.New(apperr.Invalid, "unknown role")
	}
	u.ID = uuid.New().String()
	u.CreatedAt = s.now()

	unlock := s.locks.Lock(userKey(strings.ToLower(u.Username)))
	defer unlock()
	if err := s.b.Users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.dir.PutUser(access.ActorOf(u))
	pub := u.ToPublic()
	s.pub.Publish(event.UserUpdated{ID: u.ID, User: &pub})
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.b.Users.GetByID(ctx, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.b.Users.GetByUsername(ctx, strings.TrimSpace(username))
}

// ListUsers — полный ростер: пользователи видны всем без учёта членства.
func (s *Store) ListUsers(ctx context.Context) ([]model.UserPublic, error) {
	users, err := s.b.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.UserPublic, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToPublic())
	}
	return out, nil
}

// UpdateUser применяет изменения от имени actorID. Профиль меняет сам пользователь (или админ),
// роль и флаг рассказчика — admin/power_user по правилам Capability.CanAssignRole.
func (s *Store) UpdateUser(ctx context.Context, actorID, targetID string, ch UserChanges) (*model.User, error) {
	defer logger.DeferLogDuration("store.UpdateUser", time.Now())()
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	capab := access.For(a)

	if ch.touchesRole() {
		unlockRoles := s.locks.Lock(rolesKey)
		defer unlockRoles()
	}
	unlock := s.locks.Lock(userKey(targetID))
	defer unlock()

	u, err := s.b.Users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if (ch.DisplayName != nil || ch.Avatar != nil || ch.PasswordHash != nil) && !capab.CanEditProfile(targetID) {
		return nil, apperr.New(apperr.Forbidden, "cannot edit another user's profile")
	}
	if ch.touchesRole() {
		next := u.Role
		if ch.Role != nil {
			next = *ch.Role
		}
		if !next.Valid() {
			return nil, apperr.New(apperr.Invalid, "unknown role")
		}
		if !capab.CanAssignRole(u.Role, next) {
			return nil, apperr.New(apperr.Forbidden, "insufficient role")
		}
		if u.Role == model.RoleAdmin && next != model.RoleAdmin {
			if err := s.ensureAnotherAdmin(ctx); err != nil {
				return nil, err
			}
		}
		u.Role = next
		if ch.IsNarrator != nil {
			u.IsNarrator = *ch.IsNarrator
		}
	}
	if ch.DisplayName != nil {
		name := strings.TrimSpace(*ch.DisplayName)
		if name == "" || len(name) > maxDisplayName {
			return nil, apperr.New(apperr.Invalid, "display name must be 1-64 characters")
		}
		u.DisplayName = name
	}
	if ch.Avatar != nil {
		u.Avatar = *ch.Avatar
	}
	if ch.PasswordHash != nil {
		u.PasswordHash = *ch.PasswordHash
	}
	if err := s.b.Users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.dir.PutUser(access.ActorOf(u))
	pub := u.ToPublic()
	s.pub.Publish(event.UserUpdated{ID: u.ID, User: &pub})
	return u, nil
}

// SetPasswordHash — сброс пароля по ключу восстановления (вызывающий уже проверил ключ).
func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string) error {
	unlock := s.locks.Lock(userKey(userID))
	defer unlock()
	u, err := s.b.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return s.b.Users.Update(ctx, u)
}

// EndSessions закрывает push-подключения пользователя: вызывается после отзыва его токенов.
func (s *Store) EndSessions(userID string) {
	s.pub.Publish(event.SessionsRevoked{UserID: userID})
}

// DeleteUser удаляет учётную запись: последнего админа и владельцев сообществ удалить нельзя (Conflict).
// Файлы вложений пользователя удаляются до записи; сообщения и членства уходят каскадом.
func (s *Store) DeleteUser(ctx context.Context, actorID, targetID string) error {
	defer logger.DeferLogDuration("store.DeleteUser", time.Now())()
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	if !access.For(a).CanDeleteUser(targetID) {
		return apperr.New(apperr.Forbidden, "cannot delete another user")
	}

	unlockRoles := s.locks.Lock(rolesKey)
	defer unlockRoles()
	unlock := s.locks.Lock(userKey(targetID))
	defer unlock()

	u, err := s.b.Users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if u.Role == model.RoleAdmin {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return err
		}
	}
	owned, err := s.b.Communities.CountCreatedBy(ctx, targetID)
	if err != nil {
		return err
	}
	if owned > 0 {
		return apperr.Newf(apperr.Conflict, "user still owns %d communities", owned)
	}
	urls, err := s.b.Messages.AttachmentsByAuthor(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.purge(urls); err != nil {
		return err
	}
	if err := s.b.Users.Delete(ctx, targetID); err != nil {
		return err
	}
	s.dir.RemoveUser(targetID)
	s.pub.Publish(event.UserDeleted{ID: targetID})
	logger.Infof("user deleted: id=%s by=%s attachments=%d", targetID, actorID, len(urls))
	return nil
}

func (s *Store) ensureAnotherAdmin(ctx context.Context) error {
	n, err := s.b.Users.CountByRole(ctx, model.RoleAdmin)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperr.New(apperr.Conflict, "cannot remove the last admin")
	}
	return nil
}
