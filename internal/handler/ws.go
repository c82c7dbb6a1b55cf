package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/middleware"
	"github.com/tavernlink/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	auth           middleware.Authenticator
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins — как в CORS ("*" — любой).
func NewWSHandler(hub *ws.Hub, a middleware.Authenticator, allowedOrigins []string) *WSHandler {
	h := &WSHandler{hub: hub, auth: a, allowedOrigins: allowedOrigins}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ServeWS: токен в query token (браузер не умеет заголовки для WebSocket) или в Authorization.
// Недействительный токен — upgrade и сразу close 1008, чтобы клиент отличал отказ от обрыва сети.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	raw := middleware.BearerToken(r)
	var (
		userID  string
		authErr error
	)
	if raw == "" {
		authErr = apperr.New(apperr.Unauthorized, "unauthorized")
	} else if u, err := h.auth.Authenticate(r.Context(), raw); err != nil {
		authErr = err
	} else {
		userID = u.ID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}
	if authErr != nil {
		logger.Debugf("ws rejected token=%s: %v", middleware.MaskToken(raw), authErr)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, apperr.Message(authErr))
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}
	h.hub.Register(ws.NewClient(h.hub, conn, userID))
}
