package model

import (
	"sort"
	"strings"
	"time"
)

// DirectCommunityID — сообщество-заглушка для личных каналов (они не принадлежат ни одному серверу).
const DirectCommunityID = "home"

type Community struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ImageURL  string    `json:"img_url"`
	CreatorID string    `json:"creator_id"`
	MemberIDs []string  `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember проверяет членство по денормализованному списку.
func (c *Community) HasMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type ChannelKind string

const (
	ChannelText           ChannelKind = "text"
	ChannelVoice          ChannelKind = "voice"
	ChannelFileRepository ChannelKind = "file-repository"
	ChannelDirect         ChannelKind = "direct-message"
)

func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelText, ChannelVoice, ChannelFileRepository, ChannelDirect:
		return true
	}
	return false
}

type Channel struct {
	ID             string      `json:"id"`
	CommunityID    string      `json:"server_id"`
	Name           string      `json:"name"`
	Kind           ChannelKind `json:"type"`
	ParticipantIDs []string    `json:"participant_ids,omitempty"`
	DirectKey      string      `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
}

// IsDirect — личный канал, видимость определяется списком участников.
func (c *Channel) IsDirect() bool {
	return c.Kind == ChannelDirect
}

// HasParticipant проверяет, входит ли пользователь в список участников личного канала.
func (c *Channel) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DirectKey возвращает ключ неупорядоченной пары участников (a,b) == (b,a).
func DirectKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}
