// Package repository — реализация репозиториев store поверх Postgres (pgxpool).
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/store"
)

// NewBackend собирает все репозитории над одним пулом.
func NewBackend(pool *pgxpool.Pool) store.Backend {
	return store.Backend{
		Users:       NewUserRepository(pool),
		Communities: NewCommunityRepository(pool),
		Channels:    NewChannelRepository(pool),
		Messages:    NewMessageRepository(pool),
		Gifs:        NewGifRepository(pool),
		Settings:    NewSettingsRepository(pool),
	}
}

const uniqueViolation = "23505"

// mapErr переводит ошибки драйвера в apperr: нет строк — NotFound, нарушение уникальности — Conflict.
func mapErr(op string, err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.NotFound, what+" not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Wrap(apperr.Conflict, what+" already exists", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// userCols — список колонок для SELECT (порядок соответствует scanUser).
const userCols = `id, username, display_name, password_hash, recovery_key_hash, avatar, role, is_narrator, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.RecoveryKeyHash, &u.Avatar, &u.Role, &u.IsNarrator, &u.CreatedAt)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (`+userCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Username, u.DisplayName, u.PasswordHash, u.RecoveryKeyHash, u.Avatar, u.Role, u.IsNarrator, u.CreatedAt,
	)
	if err != nil {
		return mapErr("userRepo.Create", err, "username")
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	if err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id), u); err != nil {
		return nil, mapErr("userRepo.GetByID", err, "user")
	}
	return u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByUsername", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE LOWER(username) = LOWER($1)`, username)
	if err := scanUser(row, u); err != nil {
		return nil, mapErr("userRepo.GetByUsername", err, "user")
	}
	return u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	defer logger.DeferLogDuration("user.List", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+userCols+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("userRepo.List: %w", err)
	}
	defer rows.Close()
	users := make([]model.User, 0, 32)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.List scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.List rows: %w", err)
	}
	return users, nil
}

func (r *UserRepository) Update(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET display_name = $1, avatar = $2, password_hash = $3, recovery_key_hash = $4, role = $5, is_narrator = $6
		 WHERE id = $7`,
		u.DisplayName, u.Avatar, u.PasswordHash, u.RecoveryKeyHash, u.Role, u.IsNarrator, u.ID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "user not found")
	}
	return nil
}

// Delete — одной транзакцией: сообщения автора, затем пользователь (членства уходят по ON DELETE CASCADE).
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("user.Delete", time.Now())()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("userRepo.Delete messages: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("userRepo.Delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.New(apperr.NotFound, "user not found")
		}
		return nil
	})
}

func (r *UserRepository) CountByRole(ctx context.Context, role model.Role) (int, error) {
	defer logger.DeferLogDuration("user.CountByRole", time.Now())()
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&n); err != nil {
		return 0, fmt.Errorf("userRepo.CountByRole: %w", err)
	}
	return n, nil
}
