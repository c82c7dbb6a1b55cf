package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/store"
)

// Backend — реализация репозиториев в памяти (флаг -memory и тесты). Одна блокировка на весь
// бэкенд: каждая операция атомарна, как одиночный SQL-оператор.
type Backend struct {
	mu sync.RWMutex

	users       map[string]*model.User
	usernames   map[string]string
	communities map[string]*model.Community
	commOrder   []string
	channels    map[string]*model.Channel
	chanOrder   []string
	directKeys  map[string]string
	messages    map[string]*model.Message
	byChannel   map[string][]string
	gifs        map[string]*model.Gif
	gifURLs     map[string]string
	gifOrder    []string
	settings    map[string]string
	seq         int64
}

func NewBackend() *Backend {
	return &Backend{
		users:       make(map[string]*model.User),
		usernames:   make(map[string]string),
		communities: make(map[string]*model.Community),
		channels:    make(map[string]*model.Channel),
		directKeys:  make(map[string]string),
		messages:    make(map[string]*model.Message),
		byChannel:   make(map[string][]string),
		gifs:        make(map[string]*model.Gif),
		gifURLs:     make(map[string]string),
		settings:    make(map[string]string),
	}
}

// Repositories возвращает набор репозиториев поверх одного Backend.
func (b *Backend) Repositories() store.Backend {
	return store.Backend{
		Users:       userRepo{b},
		Communities: communityRepo{b},
		Channels:    channelRepo{b},
		Messages:    messageRepo{b},
		Gifs:        gifRepo{b},
		Settings:    settingsRepo{b},
	}
}

func notFound(what string) error {
	return apperr.New(apperr.NotFound, what+" not found")
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneCommunity(c *model.Community) model.Community {
	out := *c
	out.MemberIDs = append([]string(nil), c.MemberIDs...)
	return out
}

func cloneChannel(ch *model.Channel) model.Channel {
	out := *ch
	out.ParticipantIDs = append([]string(nil), ch.ParticipantIDs...)
	return out
}

// --- users

type userRepo struct{ b *Backend }

func (r userRepo) Create(ctx context.Context, u *model.User) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	key := strings.ToLower(u.Username)
	if _, ok := r.b.usernames[key]; ok {
		return apperr.New(apperr.Conflict, "username already taken")
	}
	cp := *u
	r.b.users[u.ID] = &cp
	r.b.usernames[key] = u.ID
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	u, ok := r.b.users[id]
	if !ok {
		return nil, notFound("user")
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	id, ok := r.b.usernames[strings.ToLower(username)]
	if !ok {
		return nil, notFound("user")
	}
	cp := *r.b.users[id]
	return &cp, nil
}

func (r userRepo) List(ctx context.Context) ([]model.User, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	out := make([]model.User, 0, len(r.b.users))
	for _, u := range r.b.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r userRepo) Update(ctx context.Context, u *model.User) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	cur, ok := r.b.users[u.ID]
	if !ok {
		return notFound("user")
	}
	cur.DisplayName = u.DisplayName
	cur.Avatar = u.Avatar
	cur.PasswordHash = u.PasswordHash
	cur.RecoveryKeyHash = u.RecoveryKeyHash
	cur.Role = u.Role
	cur.IsNarrator = u.IsNarrator
	return nil
}

func (r userRepo) Delete(ctx context.Context, id string) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	u, ok := r.b.users[id]
	if !ok {
		return notFound("user")
	}
	delete(r.b.usernames, strings.ToLower(u.Username))
	delete(r.b.users, id)
	for _, c := range r.b.communities {
		c.MemberIDs = without(c.MemberIDs, id)
	}
	for mid, m := range r.b.messages {
		if m.AuthorID == id {
			r.b.byChannel[m.ChannelID] = without(r.b.byChannel[m.ChannelID], mid)
			delete(r.b.messages, mid)
		}
	}
	return nil
}

func (r userRepo) CountByRole(ctx context.Context, role model.Role) (int, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	n := 0
	for _, u := range r.b.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

// --- communities

type communityRepo struct{ b *Backend }

func (r communityRepo) Create(ctx context.Context, c *model.Community) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if _, ok := r.b.communities[c.ID]; ok {
		return apperr.New(apperr.Conflict, "community already exists")
	}
	cp := cloneCommunity(c)
	if !cp.HasMember(c.CreatorID) {
		cp.MemberIDs = append(cp.MemberIDs, c.CreatorID)
	}
	r.b.communities[c.ID] = &cp
	r.b.commOrder = append(r.b.commOrder, c.ID)
	return nil
}

func (r communityRepo) GetByID(ctx context.Context, id string) (*model.Community, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	c, ok := r.b.communities[id]
	if !ok {
		return nil, notFound("community")
	}
	cp := cloneCommunity(c)
	return &cp, nil
}

func (r communityRepo) List(ctx context.Context) ([]model.Community, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	out := make([]model.Community, 0, len(r.b.commOrder))
	for _, id := range r.b.commOrder {
		out = append(out, cloneCommunity(r.b.communities[id]))
	}
	return out, nil
}

func (r communityRepo) Delete(ctx context.Context, id string) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if _, ok := r.b.communities[id]; !ok {
		return notFound("community")
	}
	for _, chID := range append([]string(nil), r.b.chanOrder...) {
		if r.b.channels[chID].CommunityID == id {
			r.b.deleteChannelLocked(chID)
		}
	}
	delete(r.b.communities, id)
	r.b.commOrder = without(r.b.commOrder, id)
	return nil
}

func (r communityRepo) AddMember(ctx context.Context, communityID, userID string) (bool, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	c, ok := r.b.communities[communityID]
	if !ok {
		return false, notFound("community")
	}
	if _, ok := r.b.users[userID]; !ok {
		return false, notFound("user")
	}
	if c.HasMember(userID) {
		return false, nil
	}
	c.MemberIDs = append(c.MemberIDs, userID)
	return true, nil
}

func (r communityRepo) RemoveMember(ctx context.Context, communityID, userID string) (bool, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	c, ok := r.b.communities[communityID]
	if !ok {
		return false, notFound("community")
	}
	if !c.HasMember(userID) {
		return false, nil
	}
	c.MemberIDs = without(c.MemberIDs, userID)
	return true, nil
}

func (r communityRepo) CountCreatedBy(ctx context.Context, userID string) (int, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	n := 0
	for _, c := range r.b.communities {
		if c.CreatorID == userID {
			n++
		}
	}
	return n, nil
}

// --- channels

type channelRepo struct{ b *Backend }

func (r channelRepo) Create(ctx context.Context, ch *model.Channel) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if ch.IsDirect() {
		if _, ok := r.b.directKeys[ch.DirectKey]; ok {
			return apperr.New(apperr.Conflict, "direct channel already exists")
		}
	} else if _, ok := r.b.communities[ch.CommunityID]; !ok {
		return notFound("community")
	}
	cp := cloneChannel(ch)
	r.b.channels[ch.ID] = &cp
	r.b.chanOrder = append(r.b.chanOrder, ch.ID)
	if ch.IsDirect() {
		r.b.directKeys[ch.DirectKey] = ch.ID
	}
	return nil
}

func (r channelRepo) GetByID(ctx context.Context, id string) (*model.Channel, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	ch, ok := r.b.channels[id]
	if !ok {
		return nil, notFound("channel")
	}
	cp := cloneChannel(ch)
	return &cp, nil
}

func (r channelRepo) FindDirect(ctx context.Context, key string) (*model.Channel, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	id, ok := r.b.directKeys[key]
	if !ok {
		return nil, notFound("channel")
	}
	cp := cloneChannel(r.b.channels[id])
	return &cp, nil
}

func (r channelRepo) filter(keep func(*model.Channel) bool) []model.Channel {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	var out []model.Channel
	for _, id := range r.b.chanOrder {
		if ch := r.b.channels[id]; keep(ch) {
			out = append(out, cloneChannel(ch))
		}
	}
	return out
}

func (r channelRepo) ListByCommunity(ctx context.Context, communityID string) ([]model.Channel, error) {
	return r.filter(func(ch *model.Channel) bool { return !ch.IsDirect() && ch.CommunityID == communityID }), nil
}

func (r channelRepo) ListDirectFor(ctx context.Context, userID string) ([]model.Channel, error) {
	return r.filter(func(ch *model.Channel) bool { return ch.IsDirect() && ch.HasParticipant(userID) }), nil
}

func (r channelRepo) List(ctx context.Context) ([]model.Channel, error) {
	return r.filter(func(*model.Channel) bool { return true }), nil
}

func (r channelRepo) Delete(ctx context.Context, id string) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if _, ok := r.b.channels[id]; !ok {
		return notFound("channel")
	}
	r.b.deleteChannelLocked(id)
	return nil
}

func (b *Backend) deleteChannelLocked(id string) {
	ch := b.channels[id]
	for _, mid := range b.byChannel[id] {
		delete(b.messages, mid)
	}
	delete(b.byChannel, id)
	if ch.IsDirect() {
		delete(b.directKeys, ch.DirectKey)
	}
	delete(b.channels, id)
	b.chanOrder = without(b.chanOrder, id)
}

// --- messages

type messageRepo struct{ b *Backend }

func (r messageRepo) Create(ctx context.Context, m *model.Message) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if _, ok := r.b.channels[m.ChannelID]; !ok {
		return notFound("channel")
	}
	r.b.seq++
	m.Seq = r.b.seq
	cp := *m
	r.b.messages[m.ID] = &cp
	r.b.byChannel[m.ChannelID] = append(r.b.byChannel[m.ChannelID], m.ID)
	return nil
}

func (r messageRepo) GetByID(ctx context.Context, id string) (*model.Message, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	m, ok := r.b.messages[id]
	if !ok {
		return nil, notFound("message")
	}
	cp := *m
	return &cp, nil
}

func (r messageRepo) ListRecent(ctx context.Context, channelID string, limit int) ([]model.Message, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	ids := r.b.byChannel[channelID]
	if len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	return r.b.collectLocked(ids), nil
}

func (r messageRepo) ListAfter(ctx context.Context, channelID, afterID string, limit int) ([]model.Message, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	ids := r.b.byChannel[channelID]
	for i, id := range ids {
		if id == afterID {
			rest := ids[i+1:]
			if len(rest) > limit {
				rest = rest[len(rest)-limit:]
			}
			return r.b.collectLocked(rest), nil
		}
	}
	return nil, notFound("message")
}

func (b *Backend) collectLocked(ids []string) []model.Message {
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, *b.messages[id])
	}
	return out
}

func (r messageRepo) Tombstone(ctx context.Context, id string) (bool, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	m, ok := r.b.messages[id]
	if !ok {
		return false, notFound("message")
	}
	if m.IsDeleted {
		return false, nil
	}
	m.IsDeleted = true
	m.Content = ""
	return true, nil
}

func (r messageRepo) attachments(keep func(*model.Message) bool) []string {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	var out []string
	for _, m := range r.b.messages {
		if !m.IsDeleted && m.Kind.HasAttachment() && keep(m) {
			out = append(out, m.Content)
		}
	}
	sort.Strings(out)
	return out
}

func (r messageRepo) AttachmentsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	return r.attachments(func(m *model.Message) bool { return m.AuthorID == authorID }), nil
}

func (r messageRepo) AttachmentsByChannel(ctx context.Context, channelID string) ([]string, error) {
	return r.attachments(func(m *model.Message) bool { return m.ChannelID == channelID }), nil
}

// --- gifs

type gifRepo struct{ b *Backend }

func (r gifRepo) Create(ctx context.Context, g *model.Gif) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if _, ok := r.b.gifURLs[g.URL]; ok {
		return apperr.New(apperr.Conflict, "gif already registered")
	}
	cp := *g
	r.b.gifs[g.ID] = &cp
	r.b.gifURLs[g.URL] = g.ID
	r.b.gifOrder = append(r.b.gifOrder, g.ID)
	return nil
}

func (r gifRepo) GetByID(ctx context.Context, id string) (*model.Gif, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	g, ok := r.b.gifs[id]
	if !ok {
		return nil, notFound("gif")
	}
	cp := *g
	return &cp, nil
}

func (r gifRepo) GetByURL(ctx context.Context, url string) (*model.Gif, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	id, ok := r.b.gifURLs[url]
	if !ok {
		return nil, notFound("gif")
	}
	cp := *r.b.gifs[id]
	return &cp, nil
}

func (r gifRepo) List(ctx context.Context) ([]model.Gif, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	out := make([]model.Gif, 0, len(r.b.gifOrder))
	for _, id := range r.b.gifOrder {
		out = append(out, *r.b.gifs[id])
	}
	return out, nil
}

func (r gifRepo) Delete(ctx context.Context, id string) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	g, ok := r.b.gifs[id]
	if !ok {
		return notFound("gif")
	}
	delete(r.b.gifURLs, g.URL)
	delete(r.b.gifs, id)
	r.b.gifOrder = without(r.b.gifOrder, id)
	return nil
}

// --- settings

type settingsRepo struct{ b *Backend }

func (r settingsRepo) Get(ctx context.Context, key string) (string, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	v, ok := r.b.settings[key]
	if !ok {
		return "", notFound("setting")
	}
	return v, nil
}

func (r settingsRepo) Set(ctx context.Context, key, value string) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	r.b.settings[key] = value
	return nil
}
