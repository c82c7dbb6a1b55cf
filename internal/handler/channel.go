package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tavernlink/internal/middleware"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/presence"
	"github.com/tavernlink/internal/store"
)

type ChannelHandler struct {
	store   *store.Store
	tracker *presence.Tracker
}

func NewChannelHandler(st *store.Store, tracker *presence.Tracker) *ChannelHandler {
	return &ChannelHandler{store: st, tracker: tracker}
}

type createChannelRequest struct {
	ServerID string            `json:"server_id"`
	Name     string            `json:"name"`
	Kind     model.ChannelKind `json:"type"`
}

type directChannelRequest struct {
	UserID string `json:"user_id"`
}

func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = model.ChannelText
	}
	ch, err := h.store.CreateChannel(r.Context(), middleware.GetUserID(r.Context()), req.ServerID, req.Name, req.Kind)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

// Direct возвращает личный канал с пользователем, создавая его при первом обращении.
func (h *ChannelHandler) Direct(w http.ResponseWriter, r *http.Request) {
	var req directChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ch, err := h.store.OpenDirectChannel(r.Context(), middleware.GetUserID(r.Context()), req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteChannel(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	h.tracker.RevalidateAll()
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
