package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"resume-match/internal/domain"
)

// AccountRepository define el contrato de persistencia para cuentas
// canonicas. Ausencia se reporta como domain.ErrAccountNotFound y las
// violaciones de unicidad como domain.ErrDuplicateAccount, para que el
// reconciliador no dependa del motor de almacenamiento.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (domain.Account, error)
	Create(ctx context.Context, account domain.Account) error
	UpdateRolePlan(ctx context.Context, id, role, plan string) (domain.Account, error)
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
	SetEmailVerified(ctx context.Context, id string, verified bool) error
}

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

const accountColumns = `id, email, name, role, plan, stripe_customer_id, email_verified, created_at`

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PgAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM users
		WHERE email = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *PgAccountRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (domain.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM users
		WHERE stripe_customer_id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, customerID))
}

func (r *PgAccountRepository) Create(ctx context.Context, account domain.Account) error {
	const query = `
		INSERT INTO users (id, email, name, role, plan, stripe_customer_id, email_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Email,
		account.Name,
		account.Role,
		account.Plan,
		account.StripeCustomerID,
		account.EmailVerified,
		account.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateAccount
	}
	return err
}

// UpdateRolePlan escribe role y plan en una sola sentencia para no dejar
// la invariante recruiter => pro a medio aplicar.
func (r *PgAccountRepository) UpdateRolePlan(ctx context.Context, id, role, plan string) (domain.Account, error) {
	const query = `
		UPDATE users
		SET role = $2, plan = $3
		WHERE id = $1
		RETURNING ` + accountColumns + `
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id, role, plan))
}

func (r *PgAccountRepository) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	const query = `
		UPDATE users
		SET stripe_customer_id = $2
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, customerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *PgAccountRepository) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	const query = `
		UPDATE users
		SET email_verified = $2
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, verified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *PgAccountRepository) scanOne(row pgx.Row) (domain.Account, error) {
	var (
		a        domain.Account
		stripeID *string
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&a.Role,
		&a.Plan,
		&stripeID,
		&a.EmailVerified,
		&a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	if stripeID != nil {
		a.StripeCustomerID = *stripeID
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
