package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/event"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/metrics"
	"github.com/tavernlink/internal/model"
)

// Subscriber выдаёт историю канала и вызывает attach под блокировкой канала,
// так что ни одно живое событие канала не проскочит между replay и входом в комнату.
type Subscriber interface {
	Subscribe(ctx context.Context, userID, channelID, sinceID string, attach func(history []model.Message, truncated bool)) error
}

// PresenceTracker — эфемерное состояние пользователей (presence.Tracker).
type PresenceTracker interface {
	Connected(userID string)
	Disconnected(userID string)
	Update(userID string, patch model.PresencePatch) (model.Presence, error)
}

type Config struct {
	MaxConns       int
	SendBuffer     int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	InboundRate    float64
	InboundBurst   int
}

func (c *Config) defaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = 10000
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.InboundRate <= 0 {
		c.InboundRate = 10
	}
	if c.InboundBurst <= 0 {
		c.InboundBurst = 20
	}
}

// connSet — подключения одного пользователя или одной комнаты. dead выставляется при удалении
// пустого набора из индекса: добавление в мёртвый набор повторяется с новым.
type connSet struct {
	mu    sync.RWMutex
	conns map[*Client]struct{}
	dead  bool
}

func newConnSet() *connSet {
	return &connSet{conns: make(map[*Client]struct{})}
}

func (s *connSet) snapshot() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Hub — реализация event.Publisher: рассылает закоммиченные события подключениям.
// Индексы (пользователь → подключения, канал → комната) живут в sync.Map, у каждой записи своя блокировка;
// при рассылке общая блокировка не берётся.
type Hub struct {
	cfg      Config
	dir      *access.Directory
	subs     Subscriber
	presence PresenceTracker
	metrics  *metrics.Metrics

	users sync.Map // userID -> *connSet
	rooms sync.Map // channelID -> *connSet
	total atomic.Int64

	register   chan *Client
	unregister chan *Client
	// stopping закрывается в начале shutdown: Unregister больше не ждёт Run.
	stopping chan struct{}
	done     chan struct{}
}

func NewHub(cfg Config, dir *access.Directory, subs Subscriber, presence PresenceTracker, m *metrics.Metrics) *Hub {
	cfg.defaults()
	return &Hub{
		cfg:        cfg,
		dir:        dir,
		subs:       subs,
		presence:   presence,
		metrics:    m,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		stopping:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

var _ event.Publisher = (*Hub)(nil)

// SetSubscriber замыкает цикл сборки: хранилище публикует в хаб, хаб подписывает через хранилище.
// Вызывается до Run.
func (h *Hub) SetSubscriber(s Subscriber) {
	h.subs = s
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			if h.attach(client) {
				client.start()
			}
		case client := <-h.unregister:
			h.detach(client)
		}
	}
}

// shutdown закрывает все подключения и сбрасывает индексы; ничего не сохраняется.
func (h *Hub) shutdown() {
	close(h.stopping)
	// Ещё не принятые подключения: пампы не запускались, достаточно закрыть.
	for pending := true; pending; {
		select {
		case c := <-h.register:
			c.Close()
		default:
			pending = false
		}
	}
	var all []*Client
	h.users.Range(func(key, value any) bool {
		all = append(all, value.(*connSet).snapshot()...)
		h.users.Delete(key)
		return true
	})
	h.rooms.Range(func(key, _ any) bool {
		h.rooms.Delete(key)
		return true
	})
	h.total.Store(0)

	// Close connections outside any lock (network I/O).
	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
	logger.Infof("ws hub stopped, closed %d connections", len(all))
}

// attach индексирует подключение. false — превышен лимит, подключение закрыто.
func (h *Hub) attach(c *Client) bool {
	if h.total.Load() >= int64(h.cfg.MaxConns) {
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.cfg.MaxConns, c.userID)
		c.Close()
		return false
	}
	addTo(&h.users, c.userID, c, nil)
	h.total.Add(1)
	h.metrics.ConnOpened()
	if h.presence != nil {
		h.presence.Connected(c.userID)
	}
	return true
}

func (h *Hub) detach(c *Client) {
	if !removeFrom(&h.users, c.userID, c, nil) {
		c.Close()
		return
	}
	h.total.Add(-1)
	c.Close()
	h.leaveRoom(c)
	h.metrics.ConnClosed()
	if h.presence != nil {
		h.presence.Disconnected(c.userID)
	}
}

// addTo добавляет c в набор по ключу; onCreate вызывается, если набор создан заново.
func addTo(index *sync.Map, key string, c *Client, onCreate func()) {
	for {
		v, loaded := index.LoadOrStore(key, newConnSet())
		set := v.(*connSet)
		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			continue
		}
		set.conns[c] = struct{}{}
		set.mu.Unlock()
		if !loaded && onCreate != nil {
			onCreate()
		}
		return
	}
}

// removeFrom удаляет c; опустевший набор помечается мёртвым и убирается из индекса.
func removeFrom(index *sync.Map, key string, c *Client, onEmpty func()) bool {
	v, ok := index.Load(key)
	if !ok {
		return false
	}
	set := v.(*connSet)
	set.mu.Lock()
	defer set.mu.Unlock()
	if _, exists := set.conns[c]; !exists {
		return false
	}
	delete(set.conns, c)
	if len(set.conns) == 0 && !set.dead {
		set.dead = true
		index.Delete(key)
		if onEmpty != nil {
			onEmpty()
		}
	}
	return true
}

func (h *Hub) joinRoom(c *Client, channelID string) {
	h.leaveRoom(c)
	addTo(&h.rooms, channelID, c, h.metrics.RoomOpened)
	c.setRoom(channelID)
	// detach мог пройти между addTo и setRoom
	select {
	case <-c.done:
		h.leaveRoom(c)
	default:
	}
}

func (h *Hub) leaveRoom(c *Client) {
	h.leaveRoomIf(c, c.Room())
}

// leaveRoomIf выводит c из комнаты, только если он всё ещё в expected. Сравнение и сброс атомарны,
// поэтому параллельный переход в другой канал не теряется.
func (h *Hub) leaveRoomIf(c *Client, expected string) bool {
	if expected == "" || !c.clearRoomIf(expected) {
		return false
	}
	removeFrom(&h.rooms, expected, c, h.metrics.RoomClosed)
	return true
}

// Publish рассылает событие. Вызывается хранилищем после коммита; не блокируется на получателях.
func (h *Hub) Publish(ev event.Event) {
	h.metrics.Published(string(ev.Kind()))
	switch e := ev.(type) {
	case event.MessageCreated:
		h.toRoom(e.Message.ChannelID, OutgoingMessage{Type: EventMessageCreated, Payload: e.Message})
	case event.MessageDeleted:
		h.toRoom(e.ChannelID, OutgoingMessage{Type: EventMessageDeleted, Payload: e})
	case event.UserUpdated:
		h.toAll(OutgoingMessage{Type: EventUserUpdated, Payload: e})
	case event.UserDeleted:
		h.toAll(OutgoingMessage{Type: EventUserDeleted, Payload: e})
		h.closeUser(e.ID)
	case event.GifAdded:
		h.toAll(OutgoingMessage{Type: EventGifAdded, Payload: e.Gif})
	case event.GifDeleted:
		h.toAll(OutgoingMessage{Type: EventGifDeleted, Payload: e})
	case event.MembershipAdded:
		h.toUser(e.UserID, OutgoingMessage{Type: EventAddedToServer, Payload: e})
	case event.MembershipRemoved:
		h.evict(e.UserID)
		h.toUser(e.UserID, OutgoingMessage{Type: EventRemovedFromServer, Payload: e})
	case event.SessionsRevoked:
		h.closeUser(e.UserID)
	default:
		logger.Errorf("ws: unhandled event %T", ev)
	}
}

// toRoom — подключениям комнаты, которым канал всё ещё виден.
func (h *Hub) toRoom(channelID string, msg OutgoingMessage) {
	v, ok := h.rooms.Load(channelID)
	if !ok {
		return
	}
	for _, c := range v.(*connSet).snapshot() {
		if !h.dir.CanObserveChannel(c.userID, channelID) {
			continue
		}
		h.sendToClient(c, msg)
	}
}

func (h *Hub) toAll(msg OutgoingMessage) {
	h.users.Range(func(_, value any) bool {
		for _, c := range value.(*connSet).snapshot() {
			h.sendToClient(c, msg)
		}
		return true
	})
}

func (h *Hub) toUser(userID string, msg OutgoingMessage) {
	for _, c := range h.userConns(userID) {
		h.sendToClient(c, msg)
	}
}

func (h *Hub) userConns(userID string) []*Client {
	v, ok := h.users.Load(userID)
	if !ok {
		return nil
	}
	return v.(*connSet).snapshot()
}

// evict выводит подключения пользователя из комнат, которые ему больше не видны.
func (h *Hub) evict(userID string) {
	for _, c := range h.userConns(userID) {
		room := c.Room()
		if room == "" || h.dir.CanObserveChannel(userID, room) {
			continue
		}
		if h.leaveRoomIf(c, room) {
			h.sendToClient(c, OutgoingMessage{Type: EventChannelLeft, Payload: ChannelPayload{ChannelID: room}})
		}
	}
}

// closeUser закрывает подключения пользователя (удалён или токены отозваны) после уже поставленных в очередь сообщений.
func (h *Hub) closeUser(userID string) {
	for _, c := range h.userConns(userID) {
		h.sendToClient(c, OutgoingMessage{closeAfter: true})
	}
}

// sendToClient не блокируется: переполненная очередь закрывает медленного клиента.
func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
		if msg.Type != "" {
			h.metrics.Delivered(string(msg.Type))
		}
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		h.metrics.SlowClient()
		c.Close()
	}
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventJoinChannel:
		h.handleJoin(ctx, c, msg)
	case EventLeaveChannel:
		room := c.Room()
		h.leaveRoom(c)
		h.sendToClient(c, OutgoingMessage{Type: EventChannelLeft, Payload: ChannelPayload{ChannelID: room}})
	case EventPresenceUpdate:
		h.handlePresence(c, msg)
	default:
		h.sendToClient(c, errorMessage(msg.Type, "unknown event type"))
	}
}

// handleJoin: повторный вход в тот же канал допустим и повторяет replay.
func (h *Hub) handleJoin(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleJoin", time.Now())()
	if msg.ChannelID == "" {
		h.sendToClient(c, errorMessage(msg.Type, "channel_id required"))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := h.subs.Subscribe(ctx, c.userID, msg.ChannelID, msg.SinceID, func(history []model.Message, truncated bool) {
		if history == nil {
			history = []model.Message{}
		}
		h.leaveRoom(c)
		h.sendToClient(c, OutgoingMessage{
			Type:    EventChannelHistory,
			Payload: HistoryPayload{ChannelID: msg.ChannelID, Messages: history, Truncated: truncated},
		})
		h.joinRoom(c, msg.ChannelID)
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			logger.Errorf("ws join channel=%s user=%s: %v", msg.ChannelID, c.userID, err)
		}
		h.sendToClient(c, errorMessage(msg.Type, apperr.Message(err)))
	}
}

func (h *Hub) handlePresence(c *Client, msg IncomingMessage) {
	if msg.Presence == nil || h.presence == nil {
		h.sendToClient(c, errorMessage(msg.Type, "presence required"))
		return
	}
	if _, err := h.presence.Update(c.userID, *msg.Presence); err != nil {
		h.sendToClient(c, errorMessage(msg.Type, apperr.Message(err)))
	}
}

// Connections — число открытых подключений.
func (h *Hub) Connections() int {
	return int(h.total.Load())
}

// RoomMembers — число подключений в комнате канала.
func (h *Hub) RoomMembers(channelID string) int {
	v, ok := h.rooms.Load(channelID)
	if !ok {
		return 0
	}
	return len(v.(*connSet).snapshot())
}

func (h *Hub) Register(c *Client) {
	select {
	case <-h.stopping:
		c.Close()
		return
	default:
	}
	select {
	case h.register <- c:
	case <-h.stopping:
		c.Close()
	case <-h.done:
		c.Close()
	}
}

// Unregister не блокируется после начала shutdown: индексы там сбрасываются целиком.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopping:
	case <-h.done:
	}
}
