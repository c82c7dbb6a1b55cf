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

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageCols = `id, seq, channel_id, user_id, content, type, file_name, file_size, is_deleted, created_at`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.Seq, &m.ChannelID, &m.AuthorID, &m.Content, &m.Kind, &m.FileName, &m.FileSize, &m.IsDeleted, &m.CreatedAt)
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, channel_id, user_id, content, type, file_name, file_size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING seq`,
		m.ID, m.ChannelID, m.AuthorID, m.Content, m.Kind, m.FileName, m.FileSize, m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	if err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id), m); err != nil {
		return nil, mapErr("msgRepo.GetByID", err, "message")
	}
	return m, nil
}

func collectMessages(rows pgx.Rows, op string, capHint int) ([]model.Message, error) {
	defer rows.Close()
	out := make([]model.Message, 0, capHint)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.%s scan: %w", op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.%s rows: %w", op, err)
	}
	return out, nil
}

// ListRecent берёт последние limit по seq и разворачивает в порядок создания.
func (r *MessageRepository) ListRecent(ctx context.Context, channelID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListRecent", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM (
			SELECT `+messageCols+` FROM messages WHERE channel_id = $1 ORDER BY seq DESC LIMIT $2
		 ) recent ORDER BY seq`,
		channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListRecent query: %w", err)
	}
	return collectMessages(rows, "ListRecent", limit)
}

func (r *MessageRepository) ListAfter(ctx context.Context, channelID, afterID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListAfter", time.Now())()
	var after int64
	err := r.pool.QueryRow(ctx, `SELECT seq FROM messages WHERE id = $1 AND channel_id = $2`, afterID, channelID).Scan(&after)
	if err != nil {
		return nil, mapErr("msgRepo.ListAfter", err, "message")
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM (
			SELECT `+messageCols+` FROM messages WHERE channel_id = $1 AND seq > $2 ORDER BY seq DESC LIMIT $3
		 ) missed ORDER BY seq`,
		channelID, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListAfter query: %w", err)
	}
	return collectMessages(rows, "ListAfter", limit)
}

// Tombstone: условие is_deleted = false делает повторное удаление no-op.
func (r *MessageRepository) Tombstone(ctx context.Context, id string) (bool, error) {
	defer logger.DeferLogDuration("msg.Tombstone", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_deleted = true, content = '' WHERE id = $1 AND is_deleted = false`, id,
	)
	if err != nil {
		return false, fmt.Errorf("msgRepo.Tombstone: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("msgRepo.Tombstone exists: %w", err)
	}
	if !exists {
		return false, apperr.New(apperr.NotFound, "message not found")
	}
	return false, nil
}

func (r *MessageRepository) attachments(ctx context.Context, op, column, value string) ([]string, error) {
	defer logger.DeferLogDuration("msg."+op, time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT content FROM messages
		 WHERE `+column+` = $1 AND is_deleted = false AND type IN ('image', 'file')
		 ORDER BY content`, value,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.%s: %w", op, err)
	}
	defer rows.Close()
	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("msgRepo.%s scan: %w", op, err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func (r *MessageRepository) AttachmentsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	return r.attachments(ctx, "AttachmentsByAuthor", "user_id", authorID)
}

func (r *MessageRepository) AttachmentsByChannel(ctx context.Context, channelID string) ([]string, error) {
	return r.attachments(ctx, "AttachmentsByChannel", "channel_id", channelID)
}
