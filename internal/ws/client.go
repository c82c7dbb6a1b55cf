package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tavernlink/internal/logger"
)

// State — стадия жизненного цикла подключения.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateRoomJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateRoomJoined:
		return "room_joined"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// bufPool pools bytes.Buffer for JSON encoding in the hot-path (writePump).
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client represents a single WebSocket connection of an authenticated user.
// Lifecycle: NewClient -> Hub.Register -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan OutgoingMessage
	userID  string
	limiter *rate.Limiter

	state atomic.Int32
	// room — канал, в который подключение сейчас вошло ("" — ни в какой).
	roomMu sync.Mutex
	room   string

	// done is used as a non-blocking guard in sendToClient.
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// NewClient создаётся обработчиком после успешной проверки токена; conn может быть nil в тестах хаба.
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan OutgoingMessage, hub.cfg.SendBuffer),
		userID:  userID,
		limiter: rate.NewLimiter(rate.Limit(hub.cfg.InboundRate), hub.cfg.InboundBurst),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.state.Store(int32(StateAuthenticated))
	return c
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) State() State { return State(c.state.Load()) }

// Room возвращает текущий канал подключения.
func (c *Client) Room() string {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	return c.room
}

func (c *Client) setRoom(channelID string) {
	c.roomMu.Lock()
	c.room = channelID
	c.roomMu.Unlock()
	c.markRoom(channelID)
}

// clearRoomIf сбрасывает комнату, если она равна expected.
func (c *Client) clearRoomIf(expected string) bool {
	c.roomMu.Lock()
	if c.room != expected {
		c.roomMu.Unlock()
		return false
	}
	c.room = ""
	c.roomMu.Unlock()
	c.markRoom("")
	return true
}

func (c *Client) markRoom(channelID string) {
	if c.State() == StateDisconnected {
		return
	}
	if channelID == "" {
		c.state.Store(int32(StateAuthenticated))
	} else {
		c.state.Store(int32(StateRoomJoined))
	}
}

// start launches readPump and writePump goroutines with controlled lifecycle.
func (c *Client) start() {
	c.wg.Add(2)
	go c.writePump(c.ctx)
	go c.readPump(c.ctx)
}

// Wait blocks until both pump goroutines have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close signals the client to stop. Safe to call multiple times from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		c.state.Store(int32(StateDisconnected))
		c.cancel()
		close(c.done)
		// Force both pumps to unblock (ReadMessage / WriteMessage will error).
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump reads messages from the WebSocket connection.
// Exits on read error (triggered by conn.Close from Close() or writePump exit).
func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout)); err != nil {
		logger.Errorf("ws set read deadline user=%s: %v", c.userID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read error user=%s: %v", c.userID, err)
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Errorf("ws unmarshal error user=%s: %v", c.userID, err)
			c.hub.sendToClient(c, errorMessage("", "malformed message"))
			continue
		}
		if !c.limiter.Allow() {
			c.hub.sendToClient(c, errorMessage(msg.Type, "rate limited"))
			continue
		}

		c.hub.HandleMessage(ctx, c, msg)
	}
}

// writePump writes messages to the WebSocket connection.
// Exits on ctx cancellation, write error, close request or connection close.
func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(cfg.WriteTimeout))
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.userID, err)
				return
			}
			if msg.closeAfter {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "account deleted"))
				c.Close()
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			enc := json.NewEncoder(buf)
			if err := enc.Encode(msg); err != nil {
				bufPool.Put(buf)
				logger.Errorf("ws marshal error user=%s: %v", c.userID, err)
				continue
			}
			data := buf.Bytes()
			// json.Encoder appends '\n'; trim it for WebSocket text messages.
			if len(data) > 0 && data[len(data)-1] == '\n' {
				data = data[:len(data)-1]
			}
			writeErr := c.conn.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.userID, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorMessage(req EventType, msg string) OutgoingMessage {
	return OutgoingMessage{Type: EventError, Payload: ErrorPayload{Request: req, Message: msg}}
}
