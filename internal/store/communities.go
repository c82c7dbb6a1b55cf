package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/event"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

// DefaultChannelName — текстовый канал, который создаётся вместе с сообществом.
const DefaultChannelName = "general"

const maxName = 64

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxName {
		return "", apperr.New(apperr.Invalid, "name must be 1-64 characters")
	}
	return name, nil
}

// CreateCommunity создаёт сообщество; создатель становится участником, появляется канал "general".
func (s *Store) CreateCommunity(ctx context.Context, actorID, name, imageURL string) (*model.Community, *model.Channel, error) {
	defer logger.DeferLogDuration("store.CreateCommunity", time.Now())()
	if _, err := s.actor(ctx, actorID); err != nil {
		return nil, nil, err
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, nil, err
	}
	c := &model.Community{
		ID:        uuid.New().String(),
		Name:      name,
		ImageURL:  imageURL,
		CreatorID: actorID,
		MemberIDs: []string{actorID},
		CreatedAt: s.now(),
	}
	unlock := s.locks.Lock(communityKey(c.ID))
	defer unlock()
	if err := s.b.Communities.Create(ctx, c); err != nil {
		return nil, nil, err
	}
	s.dir.PutCommunity(c)

	ch := &model.Channel{
		ID:          uuid.New().String(),
		CommunityID: c.ID,
		Name:        DefaultChannelName,
		Kind:        model.ChannelText,
		CreatedAt:   s.now(),
	}
	if err := s.b.Channels.Create(ctx, ch); err != nil {
		return nil, nil, err
	}
	s.dir.PutChannel(ch)
	s.pub.Publish(event.MembershipAdded{CommunityID: c.ID, UserID: actorID})
	return c, ch, nil
}

func (s *Store) GetCommunity(ctx context.Context, actorID, communityID string) (*model.Community, error) {
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	c, err := s.b.Communities.GetByID(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if !access.CanObserveCommunity(a, c) {
		return nil, apperr.New(apperr.Forbidden, "not a member")
	}
	return c, nil
}

// VisibleCommunities — сообщества, которые видит актор (админ — все).
func (s *Store) VisibleCommunities(ctx context.Context, actorID string) ([]model.Community, error) {
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	all, err := s.b.Communities.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Community, 0, len(all))
	for i := range all {
		if access.CanObserveCommunity(a, &all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// DeleteCommunity удаляет сообщество со всеми каналами и сообщениями. Каждый участник
// получает removed_from_server.
func (s *Store) DeleteCommunity(ctx context.Context, actorID, communityID string) error {
	defer logger.DeferLogDuration("store.DeleteCommunity", time.Now())()
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(communityKey(communityID))
	defer unlock()

	c, err := s.b.Communities.GetByID(ctx, communityID)
	if err != nil {
		return err
	}
	if !access.CanObserveCommunity(a, c) || !access.For(a).CanManage(c) {
		return apperr.New(apperr.Forbidden, "cannot delete this community")
	}
	channels, err := s.b.Channels.ListByCommunity(ctx, communityID)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		urls, err := s.b.Messages.AttachmentsByChannel(ctx, ch.ID)
		if err != nil {
			return err
		}
		if err := s.purge(urls); err != nil {
			return err
		}
	}
	if err := s.b.Communities.Delete(ctx, communityID); err != nil {
		return err
	}
	s.dir.RemoveCommunity(communityID)
	for _, uid := range c.MemberIDs {
		s.pub.Publish(event.MembershipRemoved{CommunityID: communityID, UserID: uid})
	}
	logger.Infof("community deleted: id=%s by=%s channels=%d", communityID, actorID, len(channels))
	return nil
}

// Invite добавляет пользователя в сообщество. Повторное приглашение — без изменений и без события.
func (s *Store) Invite(ctx context.Context, actorID, communityID, userID string) (*model.Community, error) {
	defer logger.DeferLogDuration("store.Invite", time.Now())()
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.b.Users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(communityKey(communityID))
	defer unlock()

	c, err := s.b.Communities.GetByID(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if !access.CanObserveCommunity(a, c) || !access.For(a).CanManage(c) {
		return nil, apperr.New(apperr.Forbidden, "cannot invite to this community")
	}
	added, err := s.b.Communities.AddMember(ctx, communityID, userID)
	if err != nil {
		return nil, err
	}
	if !added {
		return c, nil
	}
	c.MemberIDs = append(c.MemberIDs, userID)
	s.dir.AddMember(communityID, userID)
	s.pub.Publish(event.MembershipAdded{CommunityID: communityID, UserID: userID})
	return c, nil
}

// Kick исключает участника. Создателя исключить нельзя; после коммита пользователь сразу
// перестаёт видеть каналы сообщества.
func (s *Store) Kick(ctx context.Context, actorID, communityID, userID string) error {
	defer logger.DeferLogDuration("store.Kick", time.Now())()
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(communityKey(communityID))
	defer unlock()

	c, err := s.b.Communities.GetByID(ctx, communityID)
	if err != nil {
		return err
	}
	if !access.CanObserveCommunity(a, c) || !access.For(a).CanManage(c) {
		return apperr.New(apperr.Forbidden, "cannot manage this community")
	}
	return s.removeMemberLocked(ctx, c, userID)
}

// Leave — участник сам выходит из сообщества. Создатель выйти не может.
func (s *Store) Leave(ctx context.Context, actorID, communityID string) error {
	if _, err := s.actor(ctx, actorID); err != nil {
		return err
	}
	unlock := s.locks.Lock(communityKey(communityID))
	defer unlock()

	c, err := s.b.Communities.GetByID(ctx, communityID)
	if err != nil {
		return err
	}
	if !c.HasMember(actorID) {
		return apperr.New(apperr.NotFound, "not a member")
	}
	return s.removeMemberLocked(ctx, c, actorID)
}

func (s *Store) removeMemberLocked(ctx context.Context, c *model.Community, userID string) error {
	if userID == c.CreatorID {
		return apperr.New(apperr.Conflict, "the creator cannot be removed")
	}
	removed, err := s.b.Communities.RemoveMember(ctx, c.ID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.New(apperr.NotFound, "not a member")
	}
	s.dir.RemoveMember(c.ID, userID)
	s.pub.Publish(event.MembershipRemoved{CommunityID: c.ID, UserID: userID})
	return nil
}
