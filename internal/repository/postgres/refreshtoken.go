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

type RefreshTokenRepo struct {
	DB DBTX
}

const saveRefreshToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, account_id, token, created_at, expires_at, invalidated_at, used_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) error {
	rows, _ := r.DB.Query(ctx, saveRefreshToken,
		token.ID, token.AccountID, token.Token,
		token.CreatedAt, token.ExpiresAt, token.InvalidatedAt, token.UsedAt,
	)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getRefreshToken = `-- name: GetRefreshToken by (account, hash)
SELECT id, account_id, created_at, expires_at, invalidated_at, used_at
FROM refresh_tokens
WHERE account_id = $1 AND token = $2
`

// Get token by exact (account, hash) match
// Returns the row even if it is expired, used or invalidated
func (r *RefreshTokenRepo) Get(ctx context.Context, accountID uuid.UUID, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getRefreshToken, accountID, tokenHash)
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		t := models.RefreshToken{Token: tokenHash}
		err := row.Scan(&t.ID, &t.AccountID, &t.CreatedAt, &t.ExpiresAt, &t.InvalidatedAt, &t.UsedAt)
		return t, err
	})

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const markRefreshTokenUsed = `-- name: MarkRefreshTokenUsed, never overwrite used_at
UPDATE refresh_tokens
SET used_at = COALESCE(used_at, $3)
WHERE account_id = $1 AND token = $2
RETURNING id, account_id, created_at, expires_at, invalidated_at, used_at
`

// MarkUsed sets used_at once. COALESCE keeps the first writer's
// timestamp, so with two concurrent calls exactly one observes its own
// time back and wins, the loser gets ErrTokenUsed.
func (r *RefreshTokenRepo) MarkUsed(ctx context.Context, accountID uuid.UUID, tokenHash string, at time.Time) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, markRefreshTokenUsed, accountID, tokenHash, at)
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		t := models.RefreshToken{Token: tokenHash}
		err := row.Scan(&t.ID, &t.AccountID, &t.CreatedAt, &t.ExpiresAt, &t.InvalidatedAt, &t.UsedAt)
		return t, err
	})

	switch {
	case err == nil && token.UsedAt != nil && token.UsedAt.Equal(at):
		return token, nil
	case err == nil: // someone else's used_at came back, token is taken
		return token, apperrors.ErrTokenUsed
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const invalidateRefreshToken = `-- name: InvalidateRefreshToken, keep earliest invalidated_at
UPDATE refresh_tokens
SET invalidated_at = COALESCE(invalidated_at, $3)
WHERE account_id = $1 AND token = $2
`

func (r *RefreshTokenRepo) Invalidate(ctx context.Context, accountID uuid.UUID, tokenHash string, at time.Time) error {
	tag, err := r.DB.Exec(ctx, invalidateRefreshToken, accountID, tokenHash, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTokenNotFound
	}
	return nil
}
