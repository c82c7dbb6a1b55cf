package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
)

// maxJSONBody — предел тела JSON-запроса (файлы идут через /api/upload).
const maxJSONBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeAppError переводит ошибку в HTTP-статус по её виду. Internal логируется, клиенту — общее сообщение.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, kind.HTTPStatus(), apperr.Message(err))
}

// decodeJSON читает тело запроса в dst; ошибка уже записана в ответ, если вернулось false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "empty body")
		default:
			writeError(w, http.StatusBadRequest, "invalid body")
		}
		return false
	}
	return true
}
