package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

type CommunityRepository struct {
	pool *pgxpool.Pool
}

func NewCommunityRepository(pool *pgxpool.Pool) *CommunityRepository {
	return &CommunityRepository{pool: pool}
}

// communitySelect возвращает сообщество вместе с участниками в порядке вступления.
const communitySelect = `SELECT s.id, s.name, s.img_url, s.creator_id, s.created_at,
        COALESCE(array_agg(m.user_id ORDER BY m.joined_at) FILTER (WHERE m.user_id IS NOT NULL), '{}')
 FROM servers s
 LEFT JOIN server_members m ON m.server_id = s.id`

func scanCommunity(s interface{ Scan(dest ...any) error }, c *model.Community) error {
	return s.Scan(&c.ID, &c.Name, &c.ImageURL, &c.CreatorID, &c.CreatedAt, &c.MemberIDs)
}

func (r *CommunityRepository) Create(ctx context.Context, c *model.Community) error {
	defer logger.DeferLogDuration("community.Create", time.Now())()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO servers (id, name, img_url, creator_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.Name, c.ImageURL, c.CreatorID, c.CreatedAt,
		); err != nil {
			return mapErr("communityRepo.Create", err, "community")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO server_members (server_id, user_id, joined_at) VALUES ($1, $2, $3)`,
			c.ID, c.CreatorID, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("communityRepo.Create member: %w", err)
		}
		return nil
	})
}

func (r *CommunityRepository) GetByID(ctx context.Context, id string) (*model.Community, error) {
	defer logger.DeferLogDuration("community.GetByID", time.Now())()
	c := &model.Community{}
	row := r.pool.QueryRow(ctx, communitySelect+` WHERE s.id = $1 GROUP BY s.id`, id)
	if err := scanCommunity(row, c); err != nil {
		return nil, mapErr("communityRepo.GetByID", err, "community")
	}
	return c, nil
}

func (r *CommunityRepository) List(ctx context.Context) ([]model.Community, error) {
	defer logger.DeferLogDuration("community.List", time.Now())()
	rows, err := r.pool.Query(ctx, communitySelect+` GROUP BY s.id ORDER BY s.created_at, s.id`)
	if err != nil {
		return nil, fmt.Errorf("communityRepo.List: %w", err)
	}
	defer rows.Close()
	out := make([]model.Community, 0, 8)
	for rows.Next() {
		var c model.Community
		if err := scanCommunity(rows, &c); err != nil {
			return nil, fmt.Errorf("communityRepo.List scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("communityRepo.List rows: %w", err)
	}
	return out, nil
}

// Delete удаляет каналы сообщества (сообщения по каскаду), затем само сообщество (членства по каскаду).
func (r *CommunityRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("community.Delete", time.Now())()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM channels WHERE server_id = $1`, id); err != nil {
			return fmt.Errorf("communityRepo.Delete channels: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM servers WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("communityRepo.Delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.New(apperr.NotFound, "community not found")
		}
		return nil
	})
}

func (r *CommunityRepository) AddMember(ctx context.Context, communityID, userID string) (bool, error) {
	defer logger.DeferLogDuration("community.AddMember", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO server_members (server_id, user_id, joined_at) VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`,
		communityID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("communityRepo.AddMember: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CommunityRepository) RemoveMember(ctx context.Context, communityID, userID string) (bool, error) {
	defer logger.DeferLogDuration("community.RemoveMember", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM server_members WHERE server_id = $1 AND user_id = $2`,
		communityID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("communityRepo.RemoveMember: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CommunityRepository) CountCreatedBy(ctx context.Context, userID string) (int, error) {
	defer logger.DeferLogDuration("community.CountCreatedBy", time.Now())()
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM servers WHERE creator_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("communityRepo.CountCreatedBy: %w", err)
	}
	return n, nil
}
