package handler

import (
	"net/http"

	"github.com/tavernlink/internal/auth"
	"github.com/tavernlink/internal/middleware"
)

type AuthHandler struct {
	auth *auth.Service
}

func NewAuthHandler(a *auth.Service) *AuthHandler {
	return &AuthHandler{auth: a}
}

// Register создаёт аккаунт. Ключ восстановления показывается один раз, в этом ответе.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.auth.Register(r.Context(), req, middleware.ClientIP(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.auth.Login(r.Context(), req, middleware.ClientIP(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ResetPassword меняет пароль по имени и ключу восстановления; прежние токены отзываются.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.auth.ResetPassword(r.Context(), req, middleware.ClientIP(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
