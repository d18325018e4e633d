package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/atriumhq/atrium/internal/logger"
	"github.com/atriumhq/atrium/internal/mailer"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/internal/repository/postgres"
	"github.com/atriumhq/atrium/internal/service/account"
	"github.com/atriumhq/atrium/internal/service/auth"
	"github.com/atriumhq/atrium/internal/service/group"
	"github.com/atriumhq/atrium/internal/service/verification"
	"github.com/atriumhq/atrium/internal/testutil"
)

func Test_Router(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server with production services wired over a rolled back tx
	withTx := func(dbpool *pgxpool.Pool, t *testing.T, fn func(url string)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			noop := logger.NewNoOpLogger()
			sender := &mailer.LogSender{Logger: noop}
			hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}

			refreshService, err := auth.NewRefreshTokenService(auth.RefreshTokenConfig{}, storage.RefreshTokens())
			require.NoError(t, err)

			authService, err := auth.NewService(
				auth.Config{SecretKey: "test-secret", Hasher: hasher},
				storage.Accounts(),
				refreshService,
			)
			require.NoError(t, err)

			codes, err := verification.NewService(storage)
			require.NoError(t, err)

			accountService, err := account.NewService(
				account.Config{WebAppURL: "https://app.example.com", Hasher: hasher},
				storage.Accounts(),
				codes,
				authService,
				sender,
				noop,
			)
			require.NoError(t, err)

			groupService, err := group.NewService(
				group.Config{WebAppURL: "https://app.example.com"},
				storage,
				sender,
				noop,
			)
			require.NoError(t, err)

			srv := httptest.NewServer(NewRouter(authService, accountService, groupService, noop))
			defer srv.Close()

			fn(srv.URL)
		})
	}

	// Send json request with optional bearer token, return response and its body
	send := func(t *testing.T, method string, url string, token string, data string) (*http.Response, string) {
		t.Helper()

		var body io.Reader
		if data != "" {
			body = strings.NewReader(data)
		}
		req, err := http.NewRequest(method, url, body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		respBody, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		defer resp.Body.Close() //nolint:errcheck

		return resp, string(respBody)
	}

	register := func(t *testing.T, url string, email string) models.AuthTokens {
		t.Helper()

		data := `{"email": "` + email + `", "name": "Nikolai", "password": "StrongEnoughPassword"}`
		resp, body := send(t, "POST", url+"/api/account", "", data)
		require.Equalf(t, http.StatusCreated, resp.StatusCode, "not expected code. Body: %s", body)

		var tokens models.AuthTokens
		require.NoError(t, json.Unmarshal([]byte(body), &tokens))
		return tokens
	}

	t.Run("register ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string) {
			tokens := register(t, url, "nk@example.com")

			require.NotEmpty(t, tokens.Token, "access token should be issued on registration")
			require.Len(t, tokens.RefreshToken, 64)
			require.Equal(t, 900, tokens.ExpiresIn)
		})
	})

	t.Run("register existed account fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string) {
			register(t, url, "nk@example.com")

			data := `{"email": "NK@Example.com", "name": "Nikolai", "password": "StrongEnoughPassword"}`
			resp, body := send(t, "POST", url+"/api/account", "", data)

			require.Equalf(t, http.StatusConflict, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Account already exists"
				}`, body)
		})
	})

	t.Run("login failed", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string) {
			register(t, url, "nk@example.com")

			data := `{"email": "nk@example.com", "password": "WrongPassword"}`
			resp, body := send(t, "POST", url+"/api/auth/login", "", data)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid email or password"
				}`, body)
		})
	})

	t.Run("account me requires token", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string) {
			tokens := register(t, url, "nk@example.com")

			resp, body := send(t, "GET", url+"/api/account", "", "")
			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)

			resp, body = send(t, "GET", url+"/api/account", tokens.Token, "")
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			var me AccountResponse
			require.NoError(t, json.Unmarshal([]byte(body), &me))
			require.Equal(t, "nk@example.com", me.Email)
			require.False(t, me.Verified, "fresh account should not be verified")
		})
	})

	t.Run("refresh rotates and replay fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string) {
			tokens := register(t, url, "nk@example.com")

			data := `{"accountId": "` + tokens.AccountID.String() + `", "refreshToken": "` + tokens.RefreshToken + `"}`
			resp, body := send(t, "POST", url+"/api/auth/refresh-token", "", data)
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			var rotated models.AuthTokens
			require.NoError(t, json.Unmarshal([]byte(body), &rotated))
			require.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken, "refresh token should be changed after refresh")

			// The old token was consumed by the rotation above
			resp, body = send(t, "POST", url+"/api/auth/refresh-token", "", data)
			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Token has already been used"
				}`, body)
		})
	})

	t.Run("verify resend throttled", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string) {
			register(t, url, "nk@example.com")

			// Registration just issued a code, asking again is too soon
			data := `{"email": "nk@example.com"}`
			resp, body := send(t, "POST", url+"/api/account/verify/resend", "", data)

			require.Equalf(t, http.StatusTooManyRequests, resp.StatusCode, "not expected code. Body: %s", body)

			var throttled struct {
				Error string `json:"error"`
				Wait  int    `json:"wait"`
			}
			require.NoError(t, json.Unmarshal([]byte(body), &throttled))
			require.Equal(t, "throttled", throttled.Error)
			require.Positive(t, throttled.Wait)
		})
	})

	t.Run("group visible to members only", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string) {
			owner := register(t, url, "owner@example.com")
			stranger := register(t, url, "stranger@example.com")

			data := `{"slug": "book-club", "name": "Book Club"}`
			resp, body := send(t, "POST", url+"/api/groups", owner.Token, data)
			require.Equalf(t, http.StatusCreated, resp.StatusCode, "not expected code. Body: %s", body)

			resp, body = send(t, "GET", url+"/api/groups/book-club", owner.Token, "")
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			var got GroupResponse
			require.NoError(t, json.Unmarshal([]byte(body), &got))
			require.Equal(t, "book-club", got.Slug)

			resp, body = send(t, "GET", url+"/api/groups/book-club", stranger.Token, "")
			require.Equalf(t, http.StatusNotFound, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Group not found"
				}`, body)
		})
	})
}
