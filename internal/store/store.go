// Package store — единственный владелец долговременного состояния: пользователи, сообщества,
// каналы, членства, сообщения и gif. Каждая мутация сериализуется по записи, коммитится в бэкенд,
// обновляет access.Directory и только после этого публикует событие.
package store

import (
	"context"
	"time"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/event"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

// DefaultHistoryLimit — сколько последних сообщений отдаётся при чтении истории и при replay.
const DefaultHistoryLimit = 200

// MaxContentLength ограничивает размер текстового сообщения (конверт в hex примерно вдвое длиннее текста).
const MaxContentLength = 64 << 10

type Options struct {
	HistoryLimit int
	// StrictEnvelopes требует, чтобы текстовые сообщения были конвертами envelope.
	StrictEnvelopes bool
	Blobs           BlobPurger
	Now             func() time.Time
}

type Store struct {
	b      Backend
	dir    *access.Directory
	pub    event.Publisher
	blobs  BlobPurger
	locks  *keyedMutex
	limit  int
	strict bool
	now    func() time.Time
}

func New(b Backend, dir *access.Directory, pub event.Publisher, opts Options) *Store {
	if pub == nil {
		pub = event.Discard{}
	}
	s := &Store{
		b:      b,
		dir:    dir,
		pub:    pub,
		blobs:  opts.Blobs,
		locks:  newKeyedMutex(),
		limit:  opts.HistoryLimit,
		strict: opts.StrictEnvelopes,
		now:    opts.Now,
	}
	if s.blobs == nil {
		s.blobs = noBlobs{}
	}
	if s.limit <= 0 {
		s.limit = DefaultHistoryLimit
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Directory возвращает снимок видимости, который поддерживает хранилище.
func (s *Store) Directory() *access.Directory {
	return s.dir
}

func (s *Store) HistoryLimit() int {
	return s.limit
}

// LoadDirectory заполняет Directory из бэкенда. Вызывается один раз при старте, до приёма подключений.
func (s *Store) LoadDirectory(ctx context.Context) error {
	defer logger.DeferLogDuration("store.LoadDirectory", time.Now())()
	users, err := s.b.Users.List(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		s.dir.PutUser(access.ActorOf(&users[i]))
	}
	communities, err := s.b.Communities.List(ctx)
	if err != nil {
		return err
	}
	for i := range communities {
		s.dir.PutCommunity(&communities[i])
	}
	channels, err := s.b.Channels.List(ctx)
	if err != nil {
		return err
	}
	for i := range channels {
		s.dir.PutChannel(&channels[i])
	}
	logger.Infof("directory loaded: users=%d communities=%d channels=%d", len(users), len(communities), len(channels))
	return nil
}

// actor загружает актуальную роль пользователя из бэкенда. Удалённый пользователь — Unauthorized.
func (s *Store) actor(ctx context.Context, id string) (access.Actor, error) {
	u, err := s.b.Users.GetByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return access.Actor{}, apperr.New(apperr.Unauthorized, "unknown user")
		}
		return access.Actor{}, err
	}
	return access.ActorOf(u), nil
}

// channelFor загружает канал и его сообщество (nil для личных каналов) и проверяет видимость.
// Невидимый канал — Forbidden, несуществующий — NotFound.
func (s *Store) channelFor(ctx context.Context, a access.Actor, channelID string) (*model.Channel, *model.Community, error) {
	ch, err := s.b.Channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, nil, err
	}
	var c *model.Community
	if !ch.IsDirect() {
		c, err = s.b.Communities.GetByID(ctx, ch.CommunityID)
		if err != nil {
			return nil, nil, err
		}
	}
	if !access.CanObserveChannel(a, ch, c) {
		return nil, nil, apperr.New(apperr.Forbidden, "channel is not visible")
	}
	return ch, c, nil
}

// purge удаляет файлы вложений. Ошибка прерывает операцию до изменения записей.
func (s *Store) purge(urls []string) error {
	for _, u := range urls {
		if err := s.blobs.Remove(u); err != nil {
			return apperr.Wrap(apperr.Internal, "purge attachment", err)
		}
	}
	return nil
}
