package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

type GifRepository struct {
	pool *pgxpool.Pool
}

func NewGifRepository(pool *pgxpool.Pool) *GifRepository {
	return &GifRepository{pool: pool}
}

func (r *GifRepository) Create(ctx context.Context, g *model.Gif) error {
	defer logger.DeferLogDuration("gif.Create", time.Now())()
	_, err := r.pool.Exec(ctx, `INSERT INTO gifs (id, url, added_by) VALUES ($1, $2, $3)`, g.ID, g.URL, g.AddedBy)
	if err != nil {
		return mapErr("gifRepo.Create", err, "gif")
	}
	return nil
}

func (r *GifRepository) get(ctx context.Context, op, column, value string) (*model.Gif, error) {
	defer logger.DeferLogDuration("gif."+op, time.Now())()
	g := &model.Gif{}
	err := r.pool.QueryRow(ctx, `SELECT id, url, added_by FROM gifs WHERE `+column+` = $1`, value).Scan(&g.ID, &g.URL, &g.AddedBy)
	if err != nil {
		return nil, mapErr("gifRepo."+op, err, "gif")
	}
	return g, nil
}

func (r *GifRepository) GetByID(ctx context.Context, id string) (*model.Gif, error) {
	return r.get(ctx, "GetByID", "id", id)
}

func (r *GifRepository) GetByURL(ctx context.Context, url string) (*model.Gif, error) {
	return r.get(ctx, "GetByURL", "url", url)
}

func (r *GifRepository) List(ctx context.Context) ([]model.Gif, error) {
	defer logger.DeferLogDuration("gif.List", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT id, url, added_by FROM gifs ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("gifRepo.List: %w", err)
	}
	defer rows.Close()
	out := make([]model.Gif, 0, 16)
	for rows.Next() {
		var g model.Gif
		if err := rows.Scan(&g.ID, &g.URL, &g.AddedBy); err != nil {
			return nil, fmt.Errorf("gifRepo.List scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *GifRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("gif.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM gifs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("gifRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "gif not found")
	}
	return nil
}

type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var v string
	if err := r.pool.QueryRow(ctx, `SELECT value FROM system_settings WHERE key = $1`, key).Scan(&v); err != nil {
		return "", mapErr("settingsRepo.Get", err, "setting")
	}
	return v, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO system_settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value,
	)
	if err != nil {
		return fmt.Errorf("settingsRepo.Set: %w", err)
	}
	return nil
}
