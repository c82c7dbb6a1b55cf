// Package access отвечает на два вопроса: что пользователь может видеть (видимость сообществ,
// каналов и сообщений) и что ему разрешено менять (возможности по роли).
package access

import "github.com/tavernlink/internal/model"

// Actor — кто выполняет операцию или получает событие.
type Actor struct {
	ID         string
	Role       model.Role
	IsNarrator bool
}

// ActorOf строит Actor из записи пользователя.
func ActorOf(u *model.User) Actor {
	return Actor{ID: u.ID, Role: u.Role, IsNarrator: u.IsNarrator}
}

// CanObserveCommunity: админ видит все сообщества, остальные — только те, где состоят.
func CanObserveCommunity(a Actor, c *model.Community) bool {
	if c == nil || a.ID == "" {
		return false
	}
	return observeCommunity(a.Role, c.HasMember(a.ID))
}

// CanObserveChannel: личный канал видят только участники (без исключения для админа),
// обычный канал — все, кто видит его сообщество.
func CanObserveChannel(a Actor, ch *model.Channel, c *model.Community) bool {
	if ch == nil || a.ID == "" {
		return false
	}
	if ch.IsDirect() {
		return ch.HasParticipant(a.ID)
	}
	return CanObserveCommunity(a, c)
}

// CanObserveMessage сводится к видимости канала сообщения.
func CanObserveMessage(a Actor, m *model.Message, ch *model.Channel, c *model.Community) bool {
	if m == nil || ch == nil || m.ChannelID != ch.ID {
		return false
	}
	return CanObserveChannel(a, ch, c)
}

func observeCommunity(role model.Role, member bool) bool {
	return role == model.RoleAdmin || member
}
