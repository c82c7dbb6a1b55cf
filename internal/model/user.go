package model

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RolePowerUser Role = "power_user"
	RoleUser      Role = "user"
)

// Valid сообщает, входит ли роль в допустимый набор.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePowerUser, RoleUser:
		return true
	}
	return false
}

// NarratorID — зарезервированный автор системных (сгенерированных) сообщений. Пользователя с таким id нет.
const NarratorID = "system-narrator"

type User struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"display_name"`
	PasswordHash    string    `json:"-"`
	RecoveryKeyHash string    `json:"-"`
	Avatar          string    `json:"avatar"`
	Role            Role      `json:"role"`
	IsNarrator      bool      `json:"is_narrator"`
	CreatedAt       time.Time `json:"created_at"`
}

// UserPublic — представление пользователя для ростера и событий (без хешей).
type UserPublic struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar"`
	Role        Role      `json:"role"`
	IsNarrator  bool      `json:"is_narrator"`
	Presence    *Presence `json:"presence,omitempty"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		Role:        u.Role,
		IsNarrator:  u.IsNarrator,
	}
}

// UserPatch — изменяемые поля профиля. nil = не менять.
type UserPatch struct {
	DisplayName *string `json:"display_name,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
	Password    *string `json:"password,omitempty"`
	Role        *Role   `json:"role,omitempty"`
	IsNarrator  *bool   `json:"is_narrator,omitempty"`
}

// Presence — эфемерное состояние пользователя, не сохраняется в БД.
// Online выставляет трекер по числу подключений, клиент его не меняет.
type Presence struct {
	Online           bool   `json:"online"`
	CurrentChannelID string `json:"current_channel_id,omitempty"`
	Muted            bool   `json:"muted"`
	VideoOn          bool   `json:"video_on"`
	ScreenSharing    bool   `json:"screen_sharing"`
}

// PresencePatch — частичное обновление presence от клиента.
type PresencePatch struct {
	CurrentChannelID *string `json:"current_channel_id,omitempty"`
	Muted            *bool   `json:"muted,omitempty"`
	VideoOn          *bool   `json:"video_on,omitempty"`
	ScreenSharing    *bool   `json:"screen_sharing,omitempty"`
}

// Apply накладывает патч поверх p (last-writer-wins по каждому полю).
func (p Presence) Apply(patch PresencePatch) Presence {
	if patch.CurrentChannelID != nil {
		p.CurrentChannelID = *patch.CurrentChannelID
	}
	if patch.Muted != nil {
		p.Muted = *patch.Muted
	}
	if patch.VideoOn != nil {
		p.VideoOn = *patch.VideoOn
	}
	if patch.ScreenSharing != nil {
		p.ScreenSharing = *patch.ScreenSharing
	}
	return p
}
