package model

import "time"

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageImage  MessageKind = "image"
	MessageFile   MessageKind = "file"
	MessageSystem MessageKind = "system"
)

// HasAttachment — сообщение ссылается на blob, который надо удалить вместе с ним.
func (k MessageKind) HasAttachment() bool {
	return k == MessageImage || k == MessageFile
}

type Message struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	AuthorID  string      `json:"user_id"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"type"`
	FileName  string      `json:"file_name,omitempty"`
	FileSize  string      `json:"file_size,omitempty"`
	IsDeleted bool        `json:"is_deleted"`
	Seq       int64       `json:"seq"`
	CreatedAt time.Time   `json:"timestamp"`
}

// Attachment — метаданные загруженного файла для сообщения image/file.
type Attachment struct {
	URL      string
	FileName string
	Size     int64
	Kind     MessageKind
}

type Gif struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	AddedBy string `json:"added_by"`
}
