// Package event описывает закрытый набор доменных событий, которые хранилище передаёт хабу.
// Каждый вариант знает свою область доставки; потребители разбирают их исчерпывающим type switch.
package event

import (
	"sync"

	"github.com/tavernlink/internal/model"
)

type Kind string

const (
	KindMessageCreated    Kind = "message_created"
	KindMessageDeleted    Kind = "message_deleted"
	KindUserUpdated       Kind = "user_updated"
	KindUserDeleted       Kind = "user_deleted"
	KindGifAdded          Kind = "gif_added"
	KindGifDeleted        Kind = "gif_deleted"
	KindMembershipAdded   Kind = "added_to_server"
	KindMembershipRemoved Kind = "removed_from_server"
	KindSessionsRevoked   Kind = "sessions_revoked"
)

// Scope — кому доставляется событие.
type Scope int

const (
	// ScopeChannel — подключениям в комнате канала, прошедшим проверку видимости.
	ScopeChannel Scope = iota
	// ScopeGlobal — всем аутентифицированным подключениям.
	ScopeGlobal
	// ScopeTargeted — только подключениям одного пользователя.
	ScopeTargeted
)

// Event — запечатанный интерфейс: реализации только в этом пакете.
type Event interface {
	Kind() Kind
	Scope() Scope
	sealed()
}

type MessageCreated struct {
	Message model.Message
}

type MessageDeleted struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// UserUpdated — частичное обновление: User задан при изменении профиля, Presence — при изменении presence.
type UserUpdated struct {
	ID       string            `json:"id"`
	User     *model.UserPublic `json:"user,omitempty"`
	Presence *model.Presence   `json:"presence,omitempty"`
}

type UserDeleted struct {
	ID string `json:"id"`
}

type GifAdded struct {
	Gif model.Gif
}

type GifDeleted struct {
	ID string `json:"id"`
}

type MembershipAdded struct {
	CommunityID string `json:"server_id"`
	UserID      string `json:"-"`
}

type MembershipRemoved struct {
	CommunityID string `json:"server_id"`
	UserID      string `json:"-"`
}

// SessionsRevoked — токены пользователя отозваны (смена пароля): открытые подключения закрываются.
type SessionsRevoked struct {
	UserID string `json:"-"`
}

func (MessageCreated) Kind() Kind    { return KindMessageCreated }
func (MessageDeleted) Kind() Kind    { return KindMessageDeleted }
func (UserUpdated) Kind() Kind       { return KindUserUpdated }
func (UserDeleted) Kind() Kind       { return KindUserDeleted }
func (GifAdded) Kind() Kind          { return KindGifAdded }
func (GifDeleted) Kind() Kind        { return KindGifDeleted }
func (MembershipAdded) Kind() Kind   { return KindMembershipAdded }
func (MembershipRemoved) Kind() Kind { return KindMembershipRemoved }
func (SessionsRevoked) Kind() Kind   { return KindSessionsRevoked }

func (MessageCreated) Scope() Scope    { return ScopeChannel }
func (MessageDeleted) Scope() Scope    { return ScopeChannel }
func (UserUpdated) Scope() Scope       { return ScopeGlobal }
func (UserDeleted) Scope() Scope       { return ScopeGlobal }
func (GifAdded) Scope() Scope          { return ScopeGlobal }
func (GifDeleted) Scope() Scope        { return ScopeGlobal }
func (MembershipAdded) Scope() Scope   { return ScopeTargeted }
func (MembershipRemoved) Scope() Scope { return ScopeTargeted }
func (SessionsRevoked) Scope() Scope   { return ScopeTargeted }

func (MessageCreated) sealed()    {}
func (MessageDeleted) sealed()    {}
func (UserUpdated) sealed()       {}
func (UserDeleted) sealed()       {}
func (GifAdded) sealed()          {}
func (GifDeleted) sealed()        {}
func (MembershipAdded) sealed()   {}
func (MembershipRemoved) sealed() {}
func (SessionsRevoked) sealed()   {}

// Publisher принимает закоммиченные события. Реализация не должна блокироваться на медленных
// получателях и не может откатить уже записанное состояние.
type Publisher interface {
	Publish(ev Event)
}

// Discard — Publisher, который ничего не делает (миграции, сидирование без хаба).
type Discard struct{}

func (Discard) Publish(Event) {}

// Recorder запоминает события; используется в тестах.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events возвращает копию записанных событий.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind возвращает записанные события одного вида.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind() == k {
			out = append(out, ev)
		}
	}
	return out
}
