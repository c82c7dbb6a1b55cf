package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/fileserver"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/metrics"
	"github.com/tavernlink/internal/middleware"
	"github.com/tavernlink/internal/settings"
	"github.com/tavernlink/internal/store"
)

// multipartOverhead — запас на заголовки частей и поля формы сверх лимита файла.
const multipartOverhead = 64 << 10

type FileHandler struct {
	store    *store.Store
	files    *fileserver.Service
	settings *settings.Cache
	metrics  *metrics.Metrics
}

func NewFileHandler(st *store.Store, files *fileserver.Service, s *settings.Cache, m *metrics.Metrics) *FileHandler {
	return &FileHandler{store: st, files: files, settings: s, metrics: m}
}

// Upload потоково принимает multipart/form-data: поле channel_id (или ?channel_id=) должно идти до поля file.
// Лимит читается из настроек на каждый запрос и проверяется по фактически принятым байтам;
// при отказе не остаётся ни файла, ни сообщения.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	limit := h.settings.UploadLimitBytes()
	if r.ContentLength > limit+multipartOverhead {
		h.metrics.UploadRejected()
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}

	channelID := r.URL.Query().Get("channel_id")
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "file is required")
			return
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.metrics.UploadRejected()
				writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		switch part.FormName() {
		case "channel_id", "channelId":
			v, err := io.ReadAll(io.LimitReader(part, 256))
			part.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid multipart body")
				return
			}
			channelID = strings.TrimSpace(string(v))
		case "file":
			h.saveFile(w, r, userID, channelID, part.FileName(), part, limit)
			part.Close()
			return
		default:
			part.Close()
		}
	}
}

func (h *FileHandler) saveFile(w http.ResponseWriter, r *http.Request, userID, channelID, name string, body io.Reader, limit int64) {
	if channelID == "" {
		writeError(w, http.StatusBadRequest, "channel_id must precede the file")
		return
	}
	// Права проверяются до приёма байтов: файл, который нельзя прикрепить, не сохраняется.
	if _, err := h.store.CheckPost(r.Context(), userID, channelID); err != nil {
		writeAppError(w, r, err)
		return
	}
	blob, err := h.files.Save(r.Context(), name, body, limit)
	if err != nil {
		if apperr.Is(err, apperr.PayloadTooLarge) {
			h.metrics.UploadRejected()
		}
		writeAppError(w, r, err)
		return
	}
	m, err := h.store.CreateAttachmentMessage(r.Context(), userID, channelID, blob.Attachment())
	if err != nil {
		if rmErr := h.files.Remove(blob.URL); rmErr != nil {
			logger.Errorf("upload cleanup %s: %v", blob.Name, rmErr)
		}
		writeAppError(w, r, err)
		return
	}
	logger.Infof("upload: user=%s channel=%s file=%s size=%d", userID, channelID, blob.Name, blob.Size)
	writeJSON(w, http.StatusCreated, m)
}

// Serve отдаёт файл. Ссылки на файлы — capability URL (случайное имя), bearer-токен не нужен:
// <img> в браузере его не передаёт.
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "name"))
	if _, ok := fileserver.AllowedExt[strings.ToLower(filepath.Ext(name))]; !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	h.files.Serve(w, r, name)
}
