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

type ChannelRepository struct {
	pool *pgxpool.Pool
}

func NewChannelRepository(pool *pgxpool.Pool) *ChannelRepository {
	return &ChannelRepository{pool: pool}
}

const channelCols = `id, server_id, name, type, COALESCE(participant_ids, '{}'), COALESCE(direct_key, ''), created_at`

func scanChannel(s interface{ Scan(dest ...any) error }, ch *model.Channel) error {
	return s.Scan(&ch.ID, &ch.CommunityID, &ch.Name, &ch.Kind, &ch.ParticipantIDs, &ch.DirectKey, &ch.CreatedAt)
}

// Create: уникальный индекс по direct_key превращает гонку создания личного канала в Conflict.
func (r *ChannelRepository) Create(ctx context.Context, ch *model.Channel) error {
	defer logger.DeferLogDuration("channel.Create", time.Now())()
	var participants []string
	if ch.IsDirect() {
		participants = ch.ParticipantIDs
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO channels (id, server_id, name, type, participant_ids, direct_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ch.ID, ch.CommunityID, ch.Name, ch.Kind, participants, nullIfEmpty(ch.DirectKey), ch.CreatedAt,
	)
	if err != nil {
		return mapErr("channelRepo.Create", err, "direct channel")
	}
	return nil
}

func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*model.Channel, error) {
	defer logger.DeferLogDuration("channel.GetByID", time.Now())()
	ch := &model.Channel{}
	if err := scanChannel(r.pool.QueryRow(ctx, `SELECT `+channelCols+` FROM channels WHERE id = $1`, id), ch); err != nil {
		return nil, mapErr("channelRepo.GetByID", err, "channel")
	}
	return ch, nil
}

func (r *ChannelRepository) FindDirect(ctx context.Context, key string) (*model.Channel, error) {
	defer logger.DeferLogDuration("channel.FindDirect", time.Now())()
	ch := &model.Channel{}
	if err := scanChannel(r.pool.QueryRow(ctx, `SELECT `+channelCols+` FROM channels WHERE direct_key = $1`, key), ch); err != nil {
		return nil, mapErr("channelRepo.FindDirect", err, "channel")
	}
	return ch, nil
}

func (r *ChannelRepository) query(ctx context.Context, op, where string, args ...any) ([]model.Channel, error) {
	defer logger.DeferLogDuration("channel."+op, time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+channelCols+` FROM channels `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("channelRepo.%s: %w", op, err)
	}
	defer rows.Close()
	out := make([]model.Channel, 0, 8)
	for rows.Next() {
		var ch model.Channel
		if err := scanChannel(rows, &ch); err != nil {
			return nil, fmt.Errorf("channelRepo.%s scan: %w", op, err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("channelRepo.%s rows: %w", op, err)
	}
	return out, nil
}

func (r *ChannelRepository) ListByCommunity(ctx context.Context, communityID string) ([]model.Channel, error) {
	return r.query(ctx, "ListByCommunity", `WHERE server_id = $1 AND type <> 'direct-message'`, communityID)
}

func (r *ChannelRepository) ListDirectFor(ctx context.Context, userID string) ([]model.Channel, error) {
	return r.query(ctx, "ListDirectFor", `WHERE type = 'direct-message' AND $1 = ANY(participant_ids)`, userID)
}

func (r *ChannelRepository) List(ctx context.Context) ([]model.Channel, error) {
	return r.query(ctx, "List", "")
}

func (r *ChannelRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("channel.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("channelRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "channel not found")
	}
	return nil
}
