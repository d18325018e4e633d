package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/internal/repository"
)

type AccountRepo struct {
	DB DBTX
}

// password_hash is deliberately absent from every SELECT except
// getPasswordHash: hashes must not travel with normal reads
const accountColumns = `id, email, name, last_login_at, verified_at, created_at, updated_at`

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (id, email, name, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING ` + accountColumns

func (r *AccountRepo) Create(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, createAccount, uuid.New(), arg.Email, arg.Name, arg.PasswordHash)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return account, apperrors.ErrAccountExists
		}
		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccountByID = `-- name: GetAccountByID
SELECT ` + accountColumns + `
FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByID, id)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

const getAccountByEmail = `-- name: GetAccountByEmail (case-insensitive)
SELECT ` + accountColumns + `
FROM accounts
WHERE lower(email) = lower($1)
`

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByEmail, email)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

const getPasswordHash = `-- name: GetPasswordHash
SELECT password_hash FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetPasswordHash(ctx context.Context, id uuid.UUID) (string, error) {
	rows, _ := r.DB.Query(ctx, getPasswordHash, id)
	hash, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return hash, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", apperrors.ErrAccountNotFound
	default:
		return "", fmt.Errorf("db error: %w", err)
	}
}

const setPasswordHash = `-- name: SetPasswordHash
UPDATE accounts
SET password_hash = $2, updated_at = now()
WHERE id = $1
`

func (r *AccountRepo) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.DB.Exec(ctx, setPasswordHash, id, hash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

const markVerified = `-- name: MarkVerified (keep original verified_at if set)
UPDATE accounts
SET verified_at = COALESCE(verified_at, $2), updated_at = now()
WHERE id = $1
RETURNING ` + accountColumns

func (r *AccountRepo) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, markVerified, id, at)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

const logSignIn = `-- name: LogSignIn
UPDATE accounts
SET last_login_at = $2
WHERE id = $1
`

func (r *AccountRepo) LogSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, logSignIn, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

const updateName = `-- name: UpdateName
UPDATE accounts
SET name = $2, updated_at = now()
WHERE id = $1
RETURNING ` + accountColumns

func (r *AccountRepo) UpdateName(ctx context.Context, id uuid.UUID, name string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, updateName, id, name)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	var name *string
	err := row.Scan(&a.ID, &a.Email, &name, &a.LastLoginAt, &a.VerifiedAt, &a.CreatedAt, &a.UpdatedAt)
	if name != nil {
		a.Name = *name
	}
	return a, err
}
