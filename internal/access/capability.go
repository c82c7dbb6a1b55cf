package access

import "github.com/tavernlink/internal/model"

// Capability вычисляется один раз на операцию из роли актора и заменяет разбросанные
// сравнения строк ролей. Варианты: admin, power_user, member.
type Capability interface {
	// CanManage — создавать каналы, приглашать и исключать участников, удалять сообщество.
	CanManage(c *model.Community) bool
	// CanModerate — удалять сообщение.
	CanModerate(m *model.Message) bool
	// CanEditProfile — менять имя, аватар и пароль пользователя targetID.
	CanEditProfile(targetID string) bool
	// CanAssignRole — менять роль и флаг рассказчика пользователю с ролью current на next.
	CanAssignRole(current, next model.Role) bool
	// CanDeleteUser — удалить учётную запись targetID.
	CanDeleteUser(targetID string) bool
	CanDeleteGif(g *model.Gif) bool
	// CanNarrate — публиковать сгенерированный текст от имени рассказчика.
	CanNarrate() bool
	// CanAdminister — настройки инсталляции (лимит загрузки, провайдер генерации).
	CanAdminister() bool
}

// For возвращает вариант возможностей для актора.
func For(a Actor) Capability {
	switch a.Role {
	case model.RoleAdmin:
		return adminCapability{id: a.ID}
	case model.RolePowerUser:
		return powerUserCapability{id: a.ID}
	default:
		return memberCapability{id: a.ID, narrator: a.IsNarrator}
	}
}

type adminCapability struct{ id string }

func (adminCapability) CanManage(c *model.Community) bool { return c != nil }
func (adminCapability) CanModerate(m *model.Message) bool { return m != nil }
func (adminCapability) CanEditProfile(string) bool { return true }
func (adminCapability) CanAssignRole(current, next model.Role) bool { return next.Valid() }
func (adminCapability) CanDeleteUser(string) bool { return true }
func (adminCapability) CanDeleteGif(g *model.Gif) bool { return g != nil }
func (adminCapability) CanNarrate() bool { return true }
func (adminCapability) CanAdminister() bool { return true }

type powerUserCapability struct{ id string }

func (p powerUserCapability) CanManage(c *model.Community) bool { return c != nil }
func (p powerUserCapability) CanModerate(m *model.Message) bool { return m != nil }
func (p powerUserCapability) CanEditProfile(targetID string) bool { return targetID == p.id }

// Power user раздаёт роли user/power_user, но не трогает админов и не назначает их.
func (p powerUserCapability) CanAssignRole(current, next model.Role) bool {
	return current != model.RoleAdmin && (next == model.RoleUser || next == model.RolePowerUser)
}
func (p powerUserCapability) CanDeleteUser(targetID string) bool { return targetID == p.id }
func (p powerUserCapability) CanDeleteGif(g *model.Gif) bool { return g != nil }
func (p powerUserCapability) CanNarrate() bool { return true }
func (p powerUserCapability) CanAdminister() bool { return false }

type memberCapability struct {
	id       string
	narrator bool
}

func (m memberCapability) CanManage(c *model.Community) bool {
	return c != nil && c.CreatorID == m.id
}
func (m memberCapability) CanModerate(msg *model.Message) bool {
	return msg != nil && msg.AuthorID == m.id
}
func (m memberCapability) CanEditProfile(targetID string) bool { return targetID == m.id }
func (m memberCapability) CanAssignRole(model.Role, model.Role) bool { return false }
func (m memberCapability) CanDeleteUser(targetID string) bool { return targetID == m.id }
func (m memberCapability) CanDeleteGif(g *model.Gif) bool { return g != nil && g.AddedBy == m.id }
func (m memberCapability) CanNarrate() bool { return m.narrator }
func (m memberCapability) CanAdminister() bool { return false }
