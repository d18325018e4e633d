package account

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/repository"
	"github.com/atriumhq/atrium/internal/repository/postgres"
	"github.com/atriumhq/atrium/internal/service/auth"
	"github.com/atriumhq/atrium/internal/service/verification"
	"github.com/atriumhq/atrium/internal/testutil"
)

// recordingSender captures delivered codes so tests can use them the
// way a real user would
type recordingSender struct {
	verificationCode string
	verificationLink string
	resetCode        string
	sent             int
}

func (s *recordingSender) SendAccountVerification(_ context.Context, _ string, code string, link string) error {
	s.verificationCode = code
	s.verificationLink = link
	s.sent++
	return nil
}

func (s *recordingSender) SendPasswordReset(_ context.Context, _ string, code string) error {
	s.resetCode = code
	s.sent++
	return nil
}

func (s *recordingSender) SendGroupInvitation(_ context.Context, _ string, _ string, _ string) error {
	s.sent++
	return nil
}

type testEnv struct {
	accounts *AccountService
	auth     *auth.AuthService
	codes    *verification.Service
	storage  repository.Storage
	sender   *recordingSender
}

func newTestEnv(t *testing.T, tx pgx.Tx) testEnv {
	t.Helper()

	storage := postgres.NewStorage(tx)
	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}

	refreshService, err := auth.NewRefreshTokenService(auth.RefreshTokenConfig{}, storage.RefreshTokens())
	require.NoError(t, err)

	authService, err := auth.NewService(
		auth.Config{SecretKey: "test-secret-key", Hasher: hasher},
		storage.Accounts(),
		refreshService,
	)
	require.NoError(t, err)

	codes, err := verification.NewService(storage)
	require.NoError(t, err)

	sender := &recordingSender{}
	accounts, err := NewService(
		Config{WebAppURL: "https://app.example.com", Hasher: hasher},
		storage.Accounts(),
		codes,
		authService,
		sender,
		nil,
	)
	require.NoError(t, err)

	return testEnv{
		accounts: accounts,
		auth:     authService,
		codes:    codes,
		storage:  storage,
		sender:   sender,
	}
}

func Test_AccountService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("register ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx)

			tokens, err := env.accounts.Register(t.Context(), "  NK@Example.com ", " Nikolai ", "StrongEnoughPassword")

			require.NoError(t, err)
			assert.NotEmpty(t, tokens.Token, "registration should sign the account in")
			assert.NotEmpty(t, tokens.RefreshToken)

			account, err := env.storage.Accounts().GetByEmail(t.Context(), "nk@example.com")
			require.NoError(t, err)
			assert.Equal(t, "nk@example.com", account.Email, "email should be normalized")
			assert.Equal(t, "Nikolai", account.Name, "name should be trimmed")
			assert.False(t, account.Verified(), "fresh account should not be verified")

			require.Len(t, env.sender.verificationCode, 32, "verification code should be delivered")
			assert.Equal(t, "https://app.example.com/verify/"+env.sender.verificationCode, env.sender.verificationLink)
		})
	})

	t.Run("register duplicate email fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx)

			_, err := env.accounts.Register(t.Context(), "nk@example.com", "Nikolai", "StrongEnoughPassword")
			require.NoError(t, err)

			_, err = env.accounts.Register(t.Context(), "NK@EXAMPLE.COM", "Another", "StrongEnoughPassword")
			require.ErrorIs(t, err, apperrors.ErrAccountExists, "duplicate detection should be case insensitive")
		})
	})

	t.Run("verify ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx)

			_, err := env.accounts.Register(t.Context(), "nk@example.com", "Nikolai", "StrongEnoughPassword")
			require.NoError(t, err)

			tokens, err := env.accounts.Verify(t.Context(), env.sender.verificationCode)

			require.NoError(t, err)
			assert.NotEmpty(t, tokens.Token, "verification should sign the account in")

			account, err := env.storage.Accounts().GetByEmail(t.Context(), "nk@example.com")
			require.NoError(t, err)
			assert.True(t, account.Verified())
		})
	})

	t.Run("verify twice fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx)

			_, err := env.accounts.Register(t.Context(), "nk@example.com", "Nikolai", "StrongEnoughPassword")
			require.NoError(t, err)
			code := env.sender.verificationCode

			_, err = env.accounts.Verify(t.Context(), code)
			require.NoError(t, err)

			_, err = env.accounts.Verify(t.Context(), code)
			require.ErrorIs(t, err, apperrors.ErrAlreadyVerified)
		})
	})

	t.Run("verify unknown code fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx)

			_, err := env.accounts.Verify(t.Context(), "never-issued")
			require.ErrorIs(t, err, apperrors.ErrTokenNotFound)
		})
	})

	t.Run("verify resend", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx)

			_, err := env.accounts.Register(t.Context(), "nk@example.com", "Nikolai", "StrongEnoughPassword")
			require.NoError(t, err)
			firstCode := env.sender.verificationCode

			t.Run("throttled right after register", func(t *testing.T) {
				_, err := env.accounts.VerifyResend(t.Context(), "nk@example.com")

				throttle, ok := apperrors.AsThrottle(err)
				require.True(t, ok, "immediate resend should be throttled, got %v", err)
				assert.Greater(t, throttle.Wait, 0)
			})

			t.Run("ok after interval", func(t *testing.T) {
				env.accounts.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
				env.codes.SetNow(func() time.Time { return time.Now().Add(2 * time.Minute) })

				info, err := env.accounts.VerifyResend(t.Context(), "nk@example.com")
				require.NoError(t, err)
				assert.Equal(t, 600, info.Expiry)
				assert.Equal(t, 60, info.Wait)
				assert.NotEqual(t, firstCode, env.sender.verificationCode, "a new code should be issued")

				_, err = env.accounts.Verify(t.Context(), firstCode)
				require.ErrorIs(t, err, apperrors.ErrTokenInvalidated, "resend should invalidate the old code")
			})

			t.Run("unknown email not found", func(t *testing.T) {
				_, err := env.accounts.VerifyResend(t.Context(), "missing@example.com")
				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
			})
		})
	})

	t.Run("verify resend for verified account fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx)

			_, err := env.accounts.Register(t.Context(), "nk@example.com", "Nikolai", "StrongEnoughPassword")
			require.NoError(t, err)
			_, err = env.accounts.Verify(t.Context(), env.sender.verificationCode)
			require.NoError(t, err)

			_, err = env.accounts.VerifyResend(t.Context(), "nk@example.com")
			require.ErrorIs(t, err, apperrors.ErrAlreadyVerified)
		})
	})

	t.Run("forgot password", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx)

			_, err := env.accounts.Register(t.Context(), "nk@example.com", "Nikolai", "StrongEnoughPassword")
			require.NoError(t, err)

			t.Run("known email gets code", func(t *testing.T) {
				info, err := env.accounts.ForgotPassword(t.Context(), "nk@example.com")

				require.NoError(t, err)
				assert.Equal(t, 600, info.Expiry)
				assert.Equal(t, 60, info.Wait)
				assert.Len(t, env.sender.resetCode, 32)
			})

			t.Run("unknown email masked", func(t *testing.T) {
				sentBefore := env.sender.sent

				info, err := env.accounts.ForgotPassword(t.Context(), "missing@example.com")

				require.NoError(t, err, "unknown email should look like success")
				assert.Equal(t, 600, info.Expiry)
				assert.Equal(t, 60, info.Wait)
				assert.Equal(t, sentBefore, env.sender.sent, "nothing should be delivered for unknown email")
			})
		})
	})

	t.Run("reset password", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx)

			_, err := env.accounts.Register(t.Context(), "nk@example.com", "Nikolai", "StrongEnoughPassword")
			require.NoError(t, err)
			_, err = env.accounts.ForgotPassword(t.Context(), "nk@example.com")
			require.NoError(t, err)
			code := env.sender.resetCode

			t.Run("same password rejected, code stays consumed", func(t *testing.T) {
				err := env.accounts.ResetPassword(t.Context(), code, "StrongEnoughPassword")
				require.ErrorIs(t, err, apperrors.ErrPasswordReused)
			})

			t.Run("consumed code can't be reused", func(t *testing.T) {
				err := env.accounts.ResetPassword(t.Context(), code, "AnotherPassword")
				require.ErrorIs(t, err, apperrors.ErrTokenUsed)
			})

			t.Run("fresh code resets", func(t *testing.T) {
				env.codes.SetNow(func() time.Time { return time.Now().Add(2 * time.Minute) })
				_, err := env.accounts.ForgotPassword(t.Context(), "nk@example.com")
				require.NoError(t, err)

				require.NoError(t, env.accounts.ResetPassword(t.Context(), env.sender.resetCode, "AnotherPassword"))

				_, err = env.auth.Login(t.Context(), "nk@example.com", "AnotherPassword")
				require.NoError(t, err, "login with the new password should work")
				_, err = env.auth.Login(t.Context(), "nk@example.com", "StrongEnoughPassword")
				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
			})
		})
	})

	t.Run("update name", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx)

			tokens, err := env.accounts.Register(t.Context(), "nk@example.com", "Nikolai", "StrongEnoughPassword")
			require.NoError(t, err)

			updated, err := env.accounts.UpdateName(t.Context(), tokens.AccountID, "  New Name ")
			require.NoError(t, err)
			assert.Equal(t, "New Name", updated.Name)
		})
	})
}
