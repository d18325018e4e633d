package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/repository"
	"github.com/atriumhq/atrium/internal/testutil"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func Test_AccountRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	params := repository.CreateAccountParams{
		Email:        "nk@example.com",
		Name:         "Nikolai",
		PasswordHash: "hashed-password",
	}

	t.Run("create account ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}

			got, err := repo.Create(t.Context(), params)

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, got.ID)
			assert.Equal(t, "nk@example.com", got.Email)
			assert.Equal(t, "Nikolai", got.Name)
			assert.Nil(t, got.VerifiedAt, "fresh account should not be verified")
			assert.Nil(t, got.LastLoginAt)
			assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
		})
	})

	t.Run("duplicate email fails case insensitive", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}
			_, err := repo.Create(t.Context(), params)
			require.NoError(t, err)

			dup := params
			dup.Email = "NK@Example.COM"
			_, err = repo.Create(t.Context(), dup)
			require.ErrorIs(t, err, apperrors.ErrAccountExists)
		})
	})

	t.Run("get by email case insensitive", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}
			created, err := repo.Create(t.Context(), params)
			require.NoError(t, err)

			got, err := repo.GetByEmail(t.Context(), "NK@Example.COM")

			require.NoError(t, err)
			require.Equal(t, created.ID, got.ID)
		})
	})

	t.Run("get missing account fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}

			_, err := repo.GetByID(t.Context(), uuid.New())
			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)

			_, err = repo.GetByEmail(t.Context(), "missing@example.com")
			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})

	t.Run("password hash round trip", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}
			created, err := repo.Create(t.Context(), params)
			require.NoError(t, err)

			hash, err := repo.GetPasswordHash(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, "hashed-password", hash)

			require.NoError(t, repo.SetPasswordHash(t.Context(), created.ID, "new-hash"))

			hash, err = repo.GetPasswordHash(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, "new-hash", hash)
		})
	})

	t.Run("mark verified is idempotent", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}
			created, err := repo.Create(t.Context(), params)
			require.NoError(t, err)

			first := mustParseTime("2024-01-01 19:00:01Z")
			got, err := repo.MarkVerified(t.Context(), created.ID, first)
			require.NoError(t, err)
			require.NotNil(t, got.VerifiedAt)
			require.WithinDuration(t, first, *got.VerifiedAt, 0)

			// Second mark must keep the original timestamp
			got, err = repo.MarkVerified(t.Context(), created.ID, mustParseTime("2024-02-02 19:00:01Z"))
			require.NoError(t, err)
			require.NotNil(t, got.VerifiedAt)
			require.WithinDuration(t, first, *got.VerifiedAt, 0, "verified_at should never be overwritten")
		})
	})

	t.Run("log sign in", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}
			created, err := repo.Create(t.Context(), params)
			require.NoError(t, err)

			at := mustParseTime("2024-01-01 19:00:01Z")
			require.NoError(t, repo.LogSignIn(t.Context(), created.ID, at))

			got, err := repo.GetByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.NotNil(t, got.LastLoginAt)
			require.WithinDuration(t, at, *got.LastLoginAt, 0)

			require.ErrorIs(t, repo.LogSignIn(t.Context(), uuid.New(), at), apperrors.ErrAccountNotFound)
		})
	})

	t.Run("update name", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}
			created, err := repo.Create(t.Context(), params)
			require.NoError(t, err)

			got, err := repo.UpdateName(t.Context(), created.ID, "New Name")
			require.NoError(t, err)
			require.Equal(t, "New Name", got.Name)
		})
	})
}
