package handler

import (
	"net/http"
	"sort"

	"github.com/tavernlink/internal/fileserver"
	"github.com/tavernlink/internal/settings"
	"github.com/tavernlink/internal/store"
)

// ConfigHandler отдаёт клиенту публичные ограничения сервера (без авторизации).
type ConfigHandler struct {
	settings     *settings.Cache
	historyLimit int
}

func NewConfigHandler(s *settings.Cache, historyLimit int) *ConfigHandler {
	return &ConfigHandler{settings: s, historyLimit: historyLimit}
}

type clientConfig struct {
	HistoryLimit     int      `json:"history_limit"`
	UploadLimitMB    int      `json:"upload_limit_mb"`
	MaxContentLength int      `json:"max_content_length"`
	UploadExtensions []string `json:"upload_extensions"`
}

// Get читает лимит загрузки из кеша настроек на каждый запрос.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	exts := make([]string, 0, len(fileserver.AllowedExt))
	for ext := range fileserver.AllowedExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	writeJSON(w, http.StatusOK, clientConfig{
		HistoryLimit:     h.historyLimit,
		UploadLimitMB:    h.settings.UploadLimitMB(),
		MaxContentLength: store.MaxContentLength,
		UploadExtensions: exts,
	})
}
