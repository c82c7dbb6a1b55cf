package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

// CreateChannel создаёт канал в сообществе. Личные каналы создаются только через OpenDirectChannel.
func (s *Store) CreateChannel(ctx context.Context, actorID, communityID, name string, kind model.ChannelKind) (*model.Channel, error) {
	defer logger.DeferLogDuration("store.CreateChannel", time.Now())()
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = model.ChannelText
	}
	if !kind.Valid() || kind == model.ChannelDirect {
		return nil, apperr.New(apperr.Invalid, "unknown channel type")
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(communityKey(communityID))
	defer unlock()

	c, err := s.b.Communities.GetByID(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if !access.CanObserveCommunity(a, c) || !access.For(a).CanManage(c) {
		return nil, apperr.New(apperr.Forbidden, "cannot manage this community")
	}
	ch := &model.Channel{
		ID:          uuid.New().String(),
		CommunityID: communityID,
		Name:        name,
		Kind:        kind,
		CreatedAt:   s.now(),
	}
	if err := s.b.Channels.Create(ctx, ch); err != nil {
		return nil, err
	}
	s.dir.PutChannel(ch)
	return ch, nil
}

// OpenDirectChannel находит или создаёт личный канал пары (actor, other). Результат одинаков
// при любом порядке участников. Проигравший гонку создания получает Conflict от бэкенда
// и перечитывает канал победителя.
func (s *Store) OpenDirectChannel(ctx context.Context, actorID, otherID string) (*model.Channel, error) {
	defer logger.DeferLogDuration("store.OpenDirectChannel", time.Now())()
	if actorID == otherID {
		return nil, apperr.New(apperr.Invalid, "cannot open a direct channel with yourself")
	}
	if _, err := s.actor(ctx, actorID); err != nil {
		return nil, err
	}
	other, err := s.b.Users.GetByID(ctx, otherID)
	if err != nil {
		return nil, err
	}
	key := model.DirectKey(actorID, otherID)
	unlock := s.locks.Lock(directKey(key))
	defer unlock()

	ch, err := s.b.Channels.FindDirect(ctx, key)
	if err == nil {
		return ch, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}
	ch = &model.Channel{
		ID:             uuid.New().String(),
		CommunityID:    model.DirectCommunityID,
		Name:           other.DisplayName,
		Kind:           model.ChannelDirect,
		ParticipantIDs: []string{actorID, otherID},
		DirectKey:      key,
		CreatedAt:      s.now(),
	}
	if err := s.b.Channels.Create(ctx, ch); err != nil {
		if apperr.Is(err, apperr.Conflict) {
			logger.Debugf("direct channel race for %s, re-reading", key)
			return s.b.Channels.FindDirect(ctx, key)
		}
		return nil, err
	}
	s.dir.PutChannel(ch)
	return ch, nil
}

// ListChannels — каналы сообщества; не участнику — Forbidden.
func (s *Store) ListChannels(ctx context.Context, actorID, communityID string) ([]model.Channel, error) {
	if _, err := s.GetCommunity(ctx, actorID, communityID); err != nil {
		return nil, err
	}
	return s.b.Channels.ListByCommunity(ctx, communityID)
}

// VisibleChannels — каналы всех видимых сообществ плюс личные каналы актора.
func (s *Store) VisibleChannels(ctx context.Context, actorID string) ([]model.Channel, error) {
	communities, err := s.VisibleCommunities(ctx, actorID)
	if err != nil {
		return nil, err
	}
	var out []model.Channel
	for _, c := range communities {
		chs, err := s.b.Channels.ListByCommunity(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, chs...)
	}
	direct, err := s.b.Channels.ListDirectFor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return append(out, direct...), nil
}

// DeleteChannel удаляет канал сообщества вместе с историей и файлами вложений.
func (s *Store) DeleteChannel(ctx context.Context, actorID, channelID string) error {
	defer logger.DeferLogDuration("store.DeleteChannel", time.Now())()
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	ch, err := s.b.Channels.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.IsDirect() {
		return apperr.New(apperr.Invalid, "direct channels cannot be deleted")
	}
	unlockCommunity := s.locks.Lock(communityKey(ch.CommunityID))
	defer unlockCommunity()
	unlock := s.locks.Lock(channelKey(channelID))
	defer unlock()

	c, err := s.b.Communities.GetByID(ctx, ch.CommunityID)
	if err != nil {
		return err
	}
	if !access.CanObserveCommunity(a, c) || !access.For(a).CanManage(c) {
		return apperr.New(apperr.Forbidden, "cannot manage this community")
	}
	urls, err := s.b.Messages.AttachmentsByChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if err := s.purge(urls); err != nil {
		return err
	}
	if err := s.b.Channels.Delete(ctx, channelID); err != nil {
		return err
	}
	s.dir.RemoveChannel(channelID)
	return nil
}
