package ws

import (
	"github.com/tavernlink/internal/event"
	"github.com/tavernlink/internal/model"
)

type EventType string

// Исходящие события совпадают с видами доменных событий; остальные — служебные ответы хаба.
const (
	EventMessageCreated    = EventType(event.KindMessageCreated)
	EventMessageDeleted    = EventType(event.KindMessageDeleted)
	EventUserUpdated       = EventType(event.KindUserUpdated)
	EventUserDeleted       = EventType(event.KindUserDeleted)
	EventGifAdded          = EventType(event.KindGifAdded)
	EventGifDeleted        = EventType(event.KindGifDeleted)
	EventAddedToServer     = EventType(event.KindMembershipAdded)
	EventRemovedFromServer = EventType(event.KindMembershipRemoved)

	EventChannelHistory EventType = "channel_history"
	EventChannelLeft    EventType = "channel_left"
	EventError          EventType = "error"

	EventJoinChannel    EventType = "join_channel"
	EventLeaveChannel   EventType = "leave_channel"
	EventPresenceUpdate EventType = "presence_update"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type      EventType `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	// SinceID — последнее сообщение, которое клиент уже видел; replay начинается после него.
	SinceID  string               `json:"since_id,omitempty"`
	Presence *model.PresencePatch `json:"presence,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// closeAfter не сериализуется: writePump закрывает соединение после отправки предыдущих сообщений.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`

	closeAfter bool
}

// HistoryPayload — replay при входе в канал, одним сообщением перед живыми событиями.
// Truncated: replay после since_id неполный, пропущенное клиент берёт из GET /api/channels/{id}/messages.
type HistoryPayload struct {
	ChannelID string          `json:"channel_id"`
	Messages  []model.Message `json:"messages"`
	Truncated bool            `json:"truncated"`
}

type ChannelPayload struct {
	ChannelID string `json:"channel_id"`
}

type ErrorPayload struct {
	Request EventType `json:"request,omitempty"`
	Message string    `json:"message"`
}
