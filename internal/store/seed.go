package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

// SeedCommunityName и каналы по умолчанию для новой инсталляции.
const SeedCommunityName = "Adventurers Guild"

var seedChannels = []struct {
	name string
	kind model.ChannelKind
}{
	{"general-chat", model.ChannelText},
	{"scroll-library", model.ChannelFileRepository},
	{"main-table", model.ChannelVoice},
}

// Seed на пустой базе создаёт администратора и стартовое сообщество. admin.PasswordHash
// и RecoveryKeyHash уже посчитаны вызывающим. Если пользователи есть — ничего не делает.
func (s *Store) Seed(ctx context.Context, admin *model.User) error {
	users, err := s.b.Users.List(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	admin.Role = model.RoleAdmin
	if _, err := s.CreateUser(ctx, admin); err != nil {
		if apperr.Is(err, apperr.Conflict) {
			return nil
		}
		return err
	}
	c := &model.Community{
		ID:        uuid.New().String(),
		Name:      SeedCommunityName,
		CreatorID: admin.ID,
		MemberIDs: []string{admin.ID},
		CreatedAt: s.now(),
	}
	if err := s.b.Communities.Create(ctx, c); err != nil {
		return err
	}
	s.dir.PutCommunity(c)
	for _, sc := range seedChannels {
		ch := &model.Channel{
			ID:          uuid.New().String(),
			CommunityID: c.ID,
			Name:        sc.name,
			Kind:        sc.kind,
			CreatedAt:   s.now(),
		}
		if err := s.b.Channels.Create(ctx, ch); err != nil {
			return err
		}
		s.dir.PutChannel(ch)
	}
	logger.Infof("seeded admin %q and community %q", admin.Username, SeedCommunityName)
	return nil
}
