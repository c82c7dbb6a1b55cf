package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tavernlink/internal/middleware"
	"github.com/tavernlink/internal/store"
)

type MessageHandler struct {
	store *store.Store
}

func NewMessageHandler(st *store.Store) *MessageHandler {
	return &MessageHandler{store: st}
}

type sendMessageRequest struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// History — последние сообщения канала (не больше лимита истории), старые первыми.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.store.History(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

// Send сохраняет текстовое сообщение; content — зашифрованный клиентом конверт.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.store.SendMessage(r.Context(), middleware.GetUserID(r.Context()), req.ChannelID, req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Delete — идемпотентный tombstone: повторное удаление возвращает 200 без нового события.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.DeleteMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
