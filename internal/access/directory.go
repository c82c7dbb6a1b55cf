package access

import (
	"sync"

	"github.com/tavernlink/internal/model"
)

// Directory — денормализованный снимок данных, нужных для проверки видимости при доставке:
// роли пользователей, участники сообществ, принадлежность и участники каналов.
// Хранилище обновляет его после каждого коммита; хаб читает без обращения к БД.
type Directory struct {
	mu          sync.RWMutex
	users       map[string]Actor
	communities map[string]*communityEntry
	channels    map[string]*channelEntry
}

type communityEntry struct {
	creatorID string
	members   map[string]struct{}
	channels  map[string]struct{}
}

type channelEntry struct {
	communityID  string
	direct       bool
	participants []string
}

func NewDirectory() *Directory {
	return &Directory{
		users:       make(map[string]Actor),
		communities: make(map[string]*communityEntry),
		channels:    make(map[string]*channelEntry),
	}
}

func (d *Directory) PutUser(a Actor) {
	d.mu.Lock()
	d.users[a.ID] = a
	d.mu.Unlock()
}

// RemoveUser убирает пользователя и все его членства.
func (d *Directory) RemoveUser(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, id)
	for _, c := range d.communities {
		delete(c.members, id)
	}
}

// Actor возвращает актуальную роль пользователя; ok=false для удалённых и неизвестных.
func (d *Directory) Actor(id string) (Actor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.users[id]
	return a, ok
}

func (d *Directory) PutCommunity(c *model.Community) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.communities[c.ID]
	if !ok {
		e = &communityEntry{channels: make(map[string]struct{})}
		d.communities[c.ID] = e
	}
	e.creatorID = c.CreatorID
	e.members = make(map[string]struct{}, len(c.MemberIDs))
	for _, id := range c.MemberIDs {
		e.members[id] = struct{}{}
	}
}

// RemoveCommunity удаляет сообщество вместе с его каналами.
func (d *Directory) RemoveCommunity(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.communities[id]; ok {
		for chID := range e.channels {
			delete(d.channels, chID)
		}
	}
	delete(d.communities, id)
}

func (d *Directory) AddMember(communityID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.communities[communityID]; ok {
		e.members[userID] = struct{}{}
	}
}

func (d *Directory) RemoveMember(communityID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.communities[communityID]; ok {
		delete(e.members, userID)
	}
}

func (d *Directory) PutChannel(ch *model.Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[ch.ID] = &channelEntry{
		communityID:  ch.CommunityID,
		direct:       ch.IsDirect(),
		participants: append([]string(nil), ch.ParticipantIDs...),
	}
	if e, ok := d.communities[ch.CommunityID]; ok && !ch.IsDirect() {
		e.channels[ch.ID] = struct{}{}
	}
}

func (d *Directory) RemoveChannel(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[id]; ok {
		if e, ok := d.communities[ch.communityID]; ok {
			delete(e.channels, id)
		}
	}
	delete(d.channels, id)
}

// CanObserveCommunity — то же правило, что и свободная функция, по данным снимка.
func (d *Directory) CanObserveCommunity(userID, communityID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.observeCommunityLocked(userID, communityID)
}

// CanObserveChannel проверяет видимость канала для пользователя по текущему снимку.
func (d *Directory) CanObserveChannel(userID, channelID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[channelID]
	if !ok {
		return false
	}
	if _, ok := d.users[userID]; !ok {
		return false
	}
	if ch.direct {
		for _, p := range ch.participants {
			if p == userID {
				return true
			}
		}
		return false
	}
	return d.observeCommunityLocked(userID, ch.communityID)
}

// CommunityOf возвращает сообщество канала.
func (d *Directory) CommunityOf(channelID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[channelID]
	if !ok {
		return "", false
	}
	return ch.communityID, true
}

// ChannelsOf возвращает каналы сообщества (без личных).
func (d *Directory) ChannelsOf(communityID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.communities[communityID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.channels))
	for id := range e.channels {
		out = append(out, id)
	}
	return out
}

func (d *Directory) observeCommunityLocked(userID, communityID string) bool {
	a, ok := d.users[userID]
	if !ok {
		return false
	}
	e, ok := d.communities[communityID]
	if !ok {
		return false
	}
	_, member := e.members[userID]
	return observeCommunity(a.Role, member)
}
