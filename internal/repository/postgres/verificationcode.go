package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/models"
)

type VerificationCodeRepo struct {
	DB DBTX
}

const saveVerificationCode = `-- name: SaveVerificationCode
INSERT INTO verification_codes (id, account_id, code, type, created_at, expires_at, invalidated_at, used_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

func (r *VerificationCodeRepo) Save(ctx context.Context, code models.VerificationCode) error {
	rows, _ := r.DB.Query(ctx, saveVerificationCode,
		code.ID, code.AccountID, code.Code, code.Type,
		code.CreatedAt, code.ExpiresAt, code.InvalidatedAt, code.UsedAt,
	)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const invalidateActiveCodes = `-- name: InvalidateActiveCodes of (account, type)
UPDATE verification_codes
SET invalidated_at = $3
WHERE account_id = $1 AND type = $2 AND used_at IS NULL AND invalidated_at IS NULL
`

// InvalidateActive supersedes all live codes of (account, type) so the
// newly created code is the only consumable one ("last code wins")
func (r *VerificationCodeRepo) InvalidateActive(ctx context.Context, accountID uuid.UUID, codeType models.VerificationCodeType, at time.Time) error {
	_, err := r.DB.Exec(ctx, invalidateActiveCodes, accountID, codeType, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getCodeByValue = `-- name: GetCodeByValue, most recent first
SELECT id, account_id, code, type, created_at, expires_at, invalidated_at, used_at
FROM verification_codes
WHERE code = $1 AND type = $2
ORDER BY created_at DESC
LIMIT 1
`

func (r *VerificationCodeRepo) GetByCode(ctx context.Context, code string, codeType models.VerificationCodeType) (models.VerificationCode, error) {
	rows, _ := r.DB.Query(ctx, getCodeByValue, code, codeType)
	vc, err := pgx.CollectOneRow(rows, rowToVerificationCode)

	switch {
	case err == nil:
		return vc, nil
	case errors.Is(err, pgx.ErrNoRows):
		return vc, apperrors.ErrTokenNotFound
	default:
		return vc, fmt.Errorf("db error: %w", err)
	}
}

const getLastCode = `-- name: GetLastCode of (account, type), any usable state
SELECT id, account_id, code, type, created_at, expires_at, invalidated_at, used_at
FROM verification_codes
WHERE account_id = $1 AND type = $2
ORDER BY created_at DESC
LIMIT 1
`

func (r *VerificationCodeRepo) GetLast(ctx context.Context, accountID uuid.UUID, codeType models.VerificationCodeType) (models.VerificationCode, error) {
	rows, _ := r.DB.Query(ctx, getLastCode, accountID, codeType)
	vc, err := pgx.CollectOneRow(rows, rowToVerificationCode)

	switch {
	case err == nil:
		return vc, nil
	case errors.Is(err, pgx.ErrNoRows):
		return vc, apperrors.ErrTokenNotFound
	default:
		return vc, fmt.Errorf("db error: %w", err)
	}
}

const markCodeUsed = `-- name: MarkCodeUsed, never overwrite used_at
UPDATE verification_codes
SET used_at = COALESCE(used_at, $2)
WHERE id = $1
RETURNING id, account_id, code, type, created_at, expires_at, invalidated_at, used_at
`

// MarkUsed sets used_at once, single-winner like refresh tokens:
// a second consume returns ErrTokenUsed instead of silently succeeding
func (r *VerificationCodeRepo) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (models.VerificationCode, error) {
	rows, _ := r.DB.Query(ctx, markCodeUsed, id, at)
	vc, err := pgx.CollectOneRow(rows, rowToVerificationCode)

	switch {
	case err == nil && vc.UsedAt != nil && vc.UsedAt.Equal(at):
		return vc, nil
	case err == nil:
		return vc, apperrors.ErrTokenUsed
	case errors.Is(err, pgx.ErrNoRows):
		return vc, apperrors.ErrTokenNotFound
	default:
		return vc, fmt.Errorf("db error: %w", err)
	}
}

func rowToVerificationCode(row pgx.CollectableRow) (models.VerificationCode, error) {
	var c models.VerificationCode
	err := row.Scan(&c.ID, &c.AccountID, &c.Code, &c.Type, &c.CreatedAt, &c.ExpiresAt, &c.InvalidatedAt, &c.UsedAt)
	return c, err
}
