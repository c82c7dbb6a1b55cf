package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/auth"
	"github.com/tavernlink/internal/middleware"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/presence"
	"github.com/tavernlink/internal/settings"
	"github.com/tavernlink/internal/store"
)

type UserHandler struct {
	store    *store.Store
	auth     *auth.Service
	tracker  *presence.Tracker
	settings *settings.Cache
}

func NewUserHandler(st *store.Store, a *auth.Service, tracker *presence.Tracker, s *settings.Cache) *UserHandler {
	return &UserHandler{store: st, auth: a, tracker: tracker, settings: s}
}

// roster — все пользователи с текущим presence (у офлайн-пользователей presence пустой).
func (h *UserHandler) roster(r *http.Request) ([]model.UserPublic, error) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		return nil, err
	}
	snap := h.tracker.Snapshot()
	for i := range users {
		if p, ok := snap[users[i].ID]; ok {
			p := p
			users[i].Presence = &p
		}
	}
	return users, nil
}

// Init — снимок состояния для только что подключившегося клиента.
func (h *UserHandler) Init(w http.ResponseWriter, r *http.Request) {
	u := middleware.GetUser(r.Context())
	ctx := r.Context()
	servers, err := h.store.VisibleCommunities(ctx, u.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	channels, err := h.store.VisibleChannels(ctx, u.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	users, err := h.roster(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	gifs, err := h.store.ListGifs(ctx)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	self := u.ToPublic()
	if p, ok := h.tracker.Get(u.ID); ok {
		self.Presence = &p
	}
	writeJSON(w, http.StatusOK, model.Bootstrap{
		User:          self,
		Servers:       nonNil(servers),
		Channels:      nonNil(channels),
		Users:         nonNil(users),
		Gifs:          nonNil(gifs),
		GlobalKey:     h.settings.EncryptionSecret(),
		UploadLimitMB: h.settings.UploadLimitMB(),
	})
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.roster(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

type updateUserResponse struct {
	User      model.UserPublic `json:"user"`
	Token     string           `json:"token,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

// Update меняет профиль, роль или пароль. Пароль меняет только сам пользователь: все его токены
// отзываются, в ответе — новый.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetUser(r.Context())
	targetID := chi.URLParam(r, "id")
	var patch model.UserPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.Password != nil && targetID != actor.ID {
		writeError(w, http.StatusForbidden, "cannot change another user's password")
		return
	}

	ch := store.UserChanges{
		DisplayName: patch.DisplayName,
		Avatar:      patch.Avatar,
		Role:        patch.Role,
		IsNarrator:  patch.IsNarrator,
	}
	u, err := h.store.UpdateUser(r.Context(), actor.ID, targetID, ch)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	resp := updateUserResponse{User: u.ToPublic()}
	if patch.Password != nil {
		if err := h.auth.ChangePassword(r.Context(), actor.ID, *patch.Password); err != nil {
			writeAppError(w, r, err)
			return
		}
		token, exp, err := h.auth.Tokens().Issue(actor.ID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		resp.Token, resp.ExpiresAt = token, &exp
	}
	writeJSON(w, http.StatusOK, resp)
}

// Delete удаляет учётную запись. Подключения пользователя закрываются хабом по событию user_deleted.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetUser(r.Context())
	targetID := chi.URLParam(r, "id")
	if err := h.store.DeleteUser(r.Context(), actor.ID, targetID); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := h.auth.Tokens().Revoke(r.Context(), targetID); err != nil && !apperr.Is(err, apperr.NotFound) {
		// Токены удалённого пользователя и так не пройдут Authenticate.
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// nonNil — пустой список сериализуется как [], а не null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
