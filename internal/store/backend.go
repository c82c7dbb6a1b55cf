package store

import (
	"context"

	"github.com/tavernlink/internal/model"
)

// Репозитории — атомарные операции над одной записью. Реализации: repository (Postgres)
// и storage/memory. Все возвращают apperr: NotFound, если id не найден, Conflict при нарушении уникальности.

type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	// Update перезаписывает изменяемые поля (display_name, avatar, хеши, role, is_narrator).
	Update(ctx context.Context, u *model.User) error
	// Delete удаляет пользователя вместе с членствами и написанными им сообщениями.
	Delete(ctx context.Context, id string) error
	CountByRole(ctx context.Context, role model.Role) (int, error)
}

type CommunityRepository interface {
	// Create вставляет сообщество и членство создателя одной транзакцией.
	Create(ctx context.Context, c *model.Community) error
	// GetByID возвращает сообщество с заполненным MemberIDs.
	GetByID(ctx context.Context, id string) (*model.Community, error)
	List(ctx context.Context) ([]model.Community, error)
	// Delete удаляет сообщество, его каналы, сообщения и членства.
	Delete(ctx context.Context, id string) error
	// AddMember/RemoveMember сообщают, изменилось ли что-то.
	AddMember(ctx context.Context, communityID, userID string) (bool, error)
	RemoveMember(ctx context.Context, communityID, userID string) (bool, error)
	CountCreatedBy(ctx context.Context, userID string) (int, error)
}

type ChannelRepository interface {
	// Create для личного канала возвращает Conflict, если канал с тем же DirectKey уже есть.
	Create(ctx context.Context, ch *model.Channel) error
	GetByID(ctx context.Context, id string) (*model.Channel, error)
	FindDirect(ctx context.Context, key string) (*model.Channel, error)
	ListByCommunity(ctx context.Context, communityID string) ([]model.Channel, error)
	ListDirectFor(ctx context.Context, userID string) ([]model.Channel, error)
	List(ctx context.Context) ([]model.Channel, error)
	// Delete удаляет канал вместе с сообщениями.
	Delete(ctx context.Context, id string) error
}

type MessageRepository interface {
	// Create присваивает Seq (монотонный порядок коммита).
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// ListRecent — последние limit сообщений канала в порядке создания.
	ListRecent(ctx context.Context, channelID string, limit int) ([]model.Message, error)
	// ListAfter — сообщения канала после afterID (не включая), не больше limit, в порядке создания.
	// Если afterID не из этого канала — NotFound.
	ListAfter(ctx context.Context, channelID, afterID string, limit int) ([]model.Message, error)
	// Tombstone стирает content и ставит is_deleted; false — сообщение уже было удалено.
	Tombstone(ctx context.Context, id string) (bool, error)
	// AttachmentsByAuthor/AttachmentsByChannel — URL вложений живых сообщений image/file.
	AttachmentsByAuthor(ctx context.Context, authorID string) ([]string, error)
	AttachmentsByChannel(ctx context.Context, channelID string) ([]string, error)
}

type GifRepository interface {
	// Create возвращает Conflict, если URL уже зарегистрирован.
	Create(ctx context.Context, g *model.Gif) error
	GetByID(ctx context.Context, id string) (*model.Gif, error)
	GetByURL(ctx context.Context, url string) (*model.Gif, error)
	List(ctx context.Context) ([]model.Gif, error)
	Delete(ctx context.Context, id string) error
}

// SettingsRepository — таблица ключ/значение system_settings.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Backend — набор репозиториев одного бэкенда.
type Backend struct {
	Users       UserRepository
	Communities CommunityRepository
	Channels    ChannelRepository
	Messages    MessageRepository
	Gifs        GifRepository
	Settings    SettingsRepository
}

// BlobPurger удаляет файл вложения по URL. Отсутствующий файл — не ошибка.
type BlobPurger interface {
	Remove(url string) error
}

type noBlobs struct{}

func (noBlobs) Remove(string) error { return nil }
