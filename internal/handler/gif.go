package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tavernlink/internal/middleware"
	"github.com/tavernlink/internal/store"
)

type GifHandler struct {
	store *store.Store
}

func NewGifHandler(st *store.Store) *GifHandler {
	return &GifHandler{store: st}
}

type addGifRequest struct {
	URL string `json:"url"`
}

func (h *GifHandler) List(w http.ResponseWriter, r *http.Request) {
	gifs, err := h.store.ListGifs(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(gifs))
}

// Add регистрирует ярлык; уже известный URL возвращает существующую запись с 200.
func (h *GifHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addGifRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, created, err := h.store.AddGif(r.Context(), middleware.GetUserID(r.Context()), req.URL)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, g)
}

func (h *GifHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteGif(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
