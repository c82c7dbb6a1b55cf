package handler

import (
	"net/http"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/middleware"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/settings"
)

// AdminHandler — настройки инсталляции: лимит загрузки и конфигурация генератора текста.
type AdminHandler struct {
	settings *settings.Cache
}

func NewAdminHandler(s *settings.Cache) *AdminHandler {
	return &AdminHandler{settings: s}
}

type adminSettings struct {
	UploadLimitMB int `json:"upload_limit_mb"`
}

func isAdmin(r *http.Request) bool {
	u := middleware.GetUser(r.Context())
	return u != nil && access.For(access.ActorOf(u)).CanAdminister()
}

// RequireAdmin пропускает только администраторов. Ставится после BearerAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r) {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, adminSettings{UploadLimitMB: h.settings.UploadLimitMB()})
}

// PutSettings меняет лимит загрузки; действует со следующего запроса /api/upload.
func (h *AdminHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req adminSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.settings.SetUploadLimitMB(r.Context(), req.UploadLimitMB); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminSettings{UploadLimitMB: h.settings.UploadLimitMB()})
}

// GetAIConfig отдаёт конфигурацию без ключа API: клиентам нужны кнопки и промпты.
func (h *AdminHandler) GetAIConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.AIConfig().Redacted())
}

func (h *AdminHandler) PutAIConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.AIConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	if err := h.settings.SetAIConfig(r.Context(), cfg); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.settings.AIConfig().Redacted())
}
