package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/internal/repository"
	"github.com/atriumhq/atrium/internal/testutil"
)

func createTestAccount(t *testing.T, tx pgx.Tx, email string) models.Account {
	t.Helper()

	repo := AccountRepo{DB: tx}
	account, err := repo.Create(t.Context(), repository.CreateAccountParams{
		Email:        email,
		Name:         "Test Account",
		PasswordHash: "hashed-password",
	})
	require.NoError(t, err)
	return account
}

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	newToken := func(accountID uuid.UUID) models.RefreshToken {
		return models.RefreshToken{
			ID:        uuid.New(),
			AccountID: accountID,
			Token:     "stored-token-hash",
			UsableToken: models.UsableToken{
				CreatedAt: mustParseTime("2024-01-01 19:00:01Z"),
				ExpiresAt: mustParseTime("2200-01-01 03:00:02Z"),
			},
		}
	}

	t.Run("save and get ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			account := createTestAccount(t, tx, "nk@example.com")
			token := newToken(account.ID)

			require.NoError(t, repo.Save(t.Context(), token))

			got, err := repo.Get(t.Context(), account.ID, token.Token)

			require.NoError(t, err)
			require.Equal(t, token.ID, got.ID)
			require.Equal(t, account.ID, got.AccountID)
			require.WithinDuration(t, token.CreatedAt, got.CreatedAt, 0)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, 0)
			require.Nil(t, got.UsedAt)
			require.Nil(t, got.InvalidatedAt)
		})
	})

	t.Run("get requires matching account", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			account := createTestAccount(t, tx, "nk@example.com")
			token := newToken(account.ID)
			require.NoError(t, repo.Save(t.Context(), token))

			_, err := repo.Get(t.Context(), uuid.New(), token.Token)
			require.ErrorIs(t, err, apperrors.ErrTokenNotFound, "hash alone should not be enough")
		})
	})

	t.Run("mark used wins once", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			account := createTestAccount(t, tx, "nk@example.com")
			token := newToken(account.ID)
			require.NoError(t, repo.Save(t.Context(), token))

			first := mustParseTime("2024-06-01 12:00:00Z")
			got, err := repo.MarkUsed(t.Context(), account.ID, token.Token, first)

			require.NoError(t, err)
			require.NotNil(t, got.UsedAt)
			require.WithinDuration(t, first, *got.UsedAt, 0)

			second := mustParseTime("2024-06-01 12:00:05Z")
			got, err = repo.MarkUsed(t.Context(), account.ID, token.Token, second)

			require.ErrorIs(t, err, apperrors.ErrTokenUsed)
			require.NotNil(t, got.UsedAt)
			assert.WithinDuration(t, first, *got.UsedAt, 0, "loser should observe the winner's timestamp")
		})
	})

	t.Run("mark used missing token fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			_, err := repo.MarkUsed(t.Context(), uuid.New(), "never-saved", time.Now().Truncate(time.Microsecond))
			require.ErrorIs(t, err, apperrors.ErrTokenNotFound)
		})
	})

	t.Run("invalidate keeps earliest timestamp", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			account := createTestAccount(t, tx, "nk@example.com")
			token := newToken(account.ID)
			require.NoError(t, repo.Save(t.Context(), token))

			first := mustParseTime("2024-06-01 12:00:00Z")
			require.NoError(t, repo.Invalidate(t.Context(), account.ID, token.Token, first))
			require.NoError(t, repo.Invalidate(t.Context(), account.ID, token.Token, mustParseTime("2024-06-02 12:00:00Z")))

			got, err := repo.Get(t.Context(), account.ID, token.Token)
			require.NoError(t, err)
			require.NotNil(t, got.InvalidatedAt)
			require.WithinDuration(t, first, *got.InvalidatedAt, 0)
		})
	})

	t.Run("invalidate missing token fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			err := repo.Invalidate(t.Context(), uuid.New(), "never-saved", time.Now().Truncate(time.Microsecond))
			require.ErrorIs(t, err, apperrors.ErrTokenNotFound)
		})
	})
}
