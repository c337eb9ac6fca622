package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"resume-match/internal/domain"
)

// AuthEventRepository persiste eventos LOGIN/LOGOUT (append-only).
type AuthEventRepository interface {
	Insert(ctx context.Context, event domain.AuthEvent) error
}

// AppErrorRepository persiste errores de aplicacion (append-only).
type AppErrorRepository interface {
	Insert(ctx context.Context, appErr domain.AppError) error
}

type PgAuthEventRepository struct {
	pool *pgxpool.Pool
}

func NewPgAuthEventRepository(pool *pgxpool.Pool) *PgAuthEventRepository {
	return &PgAuthEventRepository{pool: pool}
}

func (r *PgAuthEventRepository) Insert(ctx context.Context, event domain.AuthEvent) error {
	const query = `
		INSERT INTO auth_events (account_id, email, action, created_at)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		event.AccountID,
		event.Email,
		event.Action,
		event.CreatedAt,
	)
	return err
}

type PgAppErrorRepository struct {
	pool *pgxpool.Pool
}

func NewPgAppErrorRepository(pool *pgxpool.Pool) *PgAppErrorRepository {
	return &PgAppErrorRepository{pool: pool}
}

func (r *PgAppErrorRepository) Insert(ctx context.Context, appErr domain.AppError) error {
	const query = `
		INSERT INTO app_errors (source, message, detail, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		appErr.Source,
		appErr.Message,
		appErr.Detail,
		appErr.CreatedAt,
	)
	return err
}
