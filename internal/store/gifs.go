package store

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/event"
	"github.com/tavernlink/internal/model"
)

// AddGif регистрирует ярлык. Уже известный URL возвращает существующую запись без события.
func (s *Store) AddGif(ctx context.Context, actorID, rawURL string) (*model.Gif, bool, error) {
	if _, err := s.actor(ctx, actorID); err != nil {
		return nil, false, err
	}
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https" && !strings.HasPrefix(rawURL, "/")) {
		return nil, false, apperr.New(apperr.Invalid, "gif url must be http(s) or a local path")
	}
	unlock := s.locks.Lock(gifKey(rawURL))
	defer unlock()

	if g, err := s.b.Gifs.GetByURL(ctx, rawURL); err == nil {
		return g, false, nil
	} else if !apperr.Is(err, apperr.NotFound) {
		return nil, false, err
	}
	g := &model.Gif{ID: uuid.New().String(), URL: rawURL, AddedBy: actorID}
	if err := s.b.Gifs.Create(ctx, g); err != nil {
		if apperr.Is(err, apperr.Conflict) {
			existing, err := s.b.Gifs.GetByURL(ctx, rawURL)
			return existing, false, err
		}
		return nil, false, err
	}
	s.pub.Publish(event.GifAdded{Gif: *g})
	return g, true, nil
}

func (s *Store) DeleteGif(ctx context.Context, actorID, gifID string) error {
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	g, err := s.b.Gifs.GetByID(ctx, gifID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(gifKey(g.URL))
	defer unlock()
	if !access.For(a).CanDeleteGif(g) {
		return apperr.New(apperr.Forbidden, "only the contributor or a moderator can remove this gif")
	}
	if err := s.b.Gifs.Delete(ctx, gifID); err != nil {
		return err
	}
	s.pub.Publish(event.GifDeleted{ID: gifID})
	return nil
}

func (s *Store) ListGifs(ctx context.Context) ([]model.Gif, error) {
	return s.b.Gifs.List(ctx)
}
