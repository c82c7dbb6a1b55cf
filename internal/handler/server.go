package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tavernlink/internal/middleware"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/presence"
	"github.com/tavernlink/internal/store"
)

// ServerHandler — сообщества (на клиенте и в API они называются серверами) и членство.
type ServerHandler struct {
	store   *store.Store
	tracker *presence.Tracker
}

func NewServerHandler(st *store.Store, tracker *presence.Tracker) *ServerHandler {
	return &ServerHandler{store: st, tracker: tracker}
}

type createServerRequest struct {
	Name     string `json:"name"`
	ImageURL string `json:"img_url"`
}

type createServerResponse struct {
	Server  *model.Community `json:"server"`
	Channel *model.Channel   `json:"channel"`
}

type inviteRequest struct {
	UserID string `json:"user_id"`
}

// Create создаёт сообщество с каналом по умолчанию; создатель — первый участник.
func (h *ServerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, ch, err := h.store.CreateCommunity(r.Context(), middleware.GetUserID(r.Context()), req.Name, req.ImageURL)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createServerResponse{Server: c, Channel: ch})
}

func (h *ServerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCommunity(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	h.tracker.RevalidateAll()
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *ServerHandler) Channels(w http.ResponseWriter, r *http.Request) {
	chs, err := h.store.ListChannels(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(chs))
}

func (h *ServerHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	c, err := h.store.Invite(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Kick исключает участника; его presence в каналах сообщества сбрасывается.
func (h *ServerHandler) Kick(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := h.store.Kick(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), userID); err != nil {
		writeAppError(w, r, err)
		return
	}
	h.tracker.Revalidate(userID)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *ServerHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.store.Leave(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	h.tracker.Revalidate(userID)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
