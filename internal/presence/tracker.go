// Package presence хранит эфемерное состояние подключённых пользователей: онлайн, текущий канал,
// микрофон, видео, демонстрация экрана. В БД не пишется; после переподключения состояние сбрасывается.
package presence

import (
	"sync"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/event"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

type entry struct {
	conns int
	p     model.Presence
}

// Tracker создаётся при старте процесса и передаётся хабу и обработчикам.
type Tracker struct {
	mu    sync.Mutex
	users map[string]*entry
	dir   *access.Directory
	pub   event.Publisher
}

func NewTracker(dir *access.Directory, pub event.Publisher) *Tracker {
	if pub == nil {
		pub = event.Discard{}
	}
	return &Tracker{users: make(map[string]*entry), dir: dir, pub: pub}
}

// SetPublisher нужен при сборке: хаб создаётся после трекера.
func (t *Tracker) SetPublisher(pub event.Publisher) {
	t.mu.Lock()
	t.pub = pub
	t.mu.Unlock()
}

func (t *Tracker) publish(userID string, p model.Presence) {
	t.pub.Publish(event.UserUpdated{ID: userID, Presence: &p})
}

// Connected учитывает новое подключение. Первое подключение сбрасывает состояние и объявляет пользователя онлайн.
func (t *Tracker) Connected(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok {
		e = &entry{}
		t.users[userID] = e
	}
	e.conns++
	if e.conns == 1 {
		e.p = model.Presence{Online: true}
		t.publish(userID, e.p)
	}
}

// Disconnected — при закрытии последнего подключения запись удаляется и рассылается оффлайн.
func (t *Tracker) Disconnected(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok {
		return
	}
	if e.conns--; e.conns > 0 {
		return
	}
	delete(t.users, userID)
	t.publish(userID, model.Presence{})
}

// Update накладывает патч (last-writer-wins) и рассылает результат всем.
// Текущим каналом можно сделать только видимый пользователю канал.
func (t *Tracker) Update(userID string, patch model.PresencePatch) (model.Presence, error) {
	if patch.CurrentChannelID != nil && *patch.CurrentChannelID != "" &&
		!t.dir.CanObserveChannel(userID, *patch.CurrentChannelID) {
		return model.Presence{}, apperr.New(apperr.Forbidden, "channel is not visible")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok {
		return model.Presence{}, apperr.New(apperr.Invalid, "user is not connected")
	}
	e.p = e.p.Apply(patch)
	t.publish(userID, e.p)
	return e.p, nil
}

// Revalidate сбрасывает текущий канал, если пользователь потерял к нему доступ (кик, удаление канала).
func (t *Tracker) Revalidate(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok || e.p.CurrentChannelID == "" {
		return
	}
	if t.dir.CanObserveChannel(userID, e.p.CurrentChannelID) {
		return
	}
	logger.Debugf("presence: user=%s lost channel=%s", userID, e.p.CurrentChannelID)
	e.p.CurrentChannelID = ""
	t.publish(userID, e.p)
}

// RevalidateAll — то же для всех подключённых (после удаления канала или сообщества).
func (t *Tracker) RevalidateAll() {
	t.mu.Lock()
	ids := make([]string, 0, len(t.users))
	for id := range t.users {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	for _, id := range ids {
		t.Revalidate(id)
	}
}

func (t *Tracker) Get(userID string) (model.Presence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok {
		return model.Presence{}, false
	}
	return e.p, true
}

// Snapshot — копия состояния подключённых пользователей для bootstrap.
func (t *Tracker) Snapshot() map[string]model.Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]model.Presence, len(t.users))
	for id, e := range t.users {
		out[id] = e.p
	}
	return out
}
