package handler

import (
	"net/http"
	"strings"

	"github.com/tavernlink/internal/envelope"
	"github.com/tavernlink/internal/middleware"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/narrator"
	"github.com/tavernlink/internal/settings"
	"github.com/tavernlink/internal/store"
)

type AIHandler struct {
	store    *store.Store
	settings *settings.Cache
	narrator *narrator.Client
}

func NewAIHandler(st *store.Store, s *settings.Cache, n *narrator.Client) *AIHandler {
	return &AIHandler{store: st, settings: s, narrator: n}
}

type generateRequest struct {
	narrator.Request
	// ChannelID — если задан, текст публикуется в канал от имени рассказчика.
	ChannelID string `json:"channel_id,omitempty"`
}

type generateResponse struct {
	Text    string         `json:"text"`
	Message *model.Message `json:"message,omitempty"`
}

// Generate запрашивает текст у настроенного поставщика. Недоступность поставщика — 500 с общим сообщением.
func (h *AIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := middleware.GetUserID(r.Context())
	channelID := strings.TrimSpace(req.ChannelID)
	if channelID != "" {
		// Права на канал проверяем до обращения к поставщику.
		if _, err := h.store.CheckPost(r.Context(), userID, channelID); err != nil {
			writeAppError(w, r, err)
			return
		}
	}
	text, err := h.narrator.Generate(r.Context(), h.settings.AIConfig(), req.Request)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	resp := generateResponse{Text: text}
	if channelID != "" {
		content, err := envelope.Encrypt(text, h.settings.Key())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		m, err := h.store.CreateNarration(r.Context(), userID, channelID, content)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		resp.Message = m
	}
	writeJSON(w, http.StatusOK, resp)
}
