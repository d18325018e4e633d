package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/internal/repository"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultSigningMethod  = "HS256"

	authHeaderName = "Authorization"
	authScheme     = "Bearer"
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

type Config struct {
	// Secret key to sign access token payload
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access token lifetime
	// If not set than default is used
	AccessTTL time.Duration

	// Hasher to use during login and password changes
	// Defaults to BcryptHasher
	Hasher PasswordHasher
}

// Auth service: login, JWT issuance, password change and refresh-token
// rotation
type AuthService struct {
	// Secret key to sign access token
	key string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	accessTTL time.Duration

	// hasher to hash or compare passwords
	hasher PasswordHasher

	accounts repository.AccountRepo
	refresh  *RefreshTokenService

	now func() time.Time
}

func NewService(cfg Config, accounts repository.AccountRepo, refresh *RefreshTokenService) (*AuthService, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if accounts == nil || refresh == nil {
		return nil, errors.New("account repo and refresh token service must not be nil")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	return &AuthService{
		key:       cfg.SecretKey,
		alg:       jwt.GetSigningMethod(cfg.Alg),
		accessTTL: cfg.AccessTTL,
		hasher:    hasher,
		accounts:  accounts,
		refresh:   refresh,
		now:       time.Now,
	}, nil
}

// Login finds the account by case-insensitive email and verifies the
// password. Unknown email and wrong password return the same
// ErrInvalidCredentials so account existence never leaks.
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.AuthTokens, error) {
	var tokens models.AuthTokens

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			return tokens, apperrors.ErrInvalidCredentials
		}
		return tokens, err
	}

	hash, err := s.accounts.GetPasswordHash(ctx, account.ID)
	if err != nil {
		return tokens, err
	}

	if err := s.hasher.Compare(hash, password); err != nil {
		return tokens, apperrors.ErrInvalidCredentials
	}

	// Track the last time an account signed in, helpful for support
	if err := s.accounts.LogSignIn(ctx, account.ID, s.now().Truncate(time.Microsecond)); err != nil {
		return tokens, err
	}

	return s.CreateAuthTokens(ctx, account)
}

// CreateAuthTokens signs a JWT carrying the account email and issues a
// fresh refresh token
func (s *AuthService) CreateAuthTokens(ctx context.Context, account models.Account) (models.AuthTokens, error) {
	var tokens models.AuthTokens
	now := s.now().Truncate(time.Second)

	accessToken := jwt.NewWithClaims(
		s.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			},
			Email: account.Email,
		},
	)
	access, err := accessToken.SignedString([]byte(s.key))
	if err != nil {
		return tokens, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	refresh, err := s.refresh.Generate(ctx, account.ID)
	if err != nil {
		return tokens, err
	}

	return models.AuthTokens{
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.accessTTL.Seconds()),
		AccountID:    account.ID,
	}, nil
}

// Refresh rotates a refresh token: consumes the presented token and
// issues a brand-new access/refresh pair. A replayed token fails with
// ErrTokenUsed.
func (s *AuthService) Refresh(ctx context.Context, accountID uuid.UUID, refreshToken string) (models.AuthTokens, error) {
	var tokens models.AuthTokens

	used, err := s.refresh.Use(ctx, accountID, refreshToken)
	if err != nil {
		return tokens, err
	}

	account, err := s.accounts.GetByID(ctx, used.AccountID)
	if err != nil {
		return tokens, err
	}

	return s.CreateAuthTokens(ctx, account)
}

// Revoke invalidates a refresh token, best effort and idempotent
func (s *AuthService) Revoke(ctx context.Context, accountID uuid.UUID, refreshToken string) error {
	return s.refresh.Revoke(ctx, accountID, refreshToken)
}

// ChangePassword verifies the old password and stores the new hash.
// The new password must not verify against the stored hash: comparison
// goes through the hasher, not the salt mechanics, so it stays correct
// if hashing parameters change over time.
func (s *AuthService) ChangePassword(ctx context.Context, accountID uuid.UUID, oldPassword string, newPassword string) error {
	if newPassword == "" {
		return apperrors.ErrPasswordEmpty
	}

	hash, err := s.accounts.GetPasswordHash(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(hash, oldPassword); err != nil {
		return apperrors.ErrWrongOldPassword
	}
	if err := s.hasher.Compare(hash, newPassword); err == nil {
		return apperrors.ErrPasswordReused
	}

	return s.setPasswordHash(ctx, accountID, newPassword)
}

// SetPassword stores a new password without an old-password check: the
// caller already proved identity via a consumed verification code. The
// can't-match-last-password rule still applies.
func (s *AuthService) SetPassword(ctx context.Context, accountID uuid.UUID, password string) error {
	if password == "" {
		return apperrors.ErrPasswordEmpty
	}

	hash, err := s.accounts.GetPasswordHash(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(hash, password); err == nil {
		return apperrors.ErrPasswordReused
	}

	return s.setPasswordHash(ctx, accountID, password)
}

func (s *AuthService) setPasswordHash(ctx context.Context, accountID uuid.UUID, password string) error {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("can't use this as password, error=%w", err)
	}

	return s.accounts.SetPasswordHash(ctx, accountID, newHash)
}

// ParseAccess parses and validates an access token, returning the
// email claim
func (s *AuthService) ParseAccess(access string) (string, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(s.key), nil },
		jwt.WithValidMethods([]string{s.alg.Alg()}),
	)
	if err != nil {
		return "", fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	return claims.Email, nil
}

// AccountFromRequest authenticates a request by its bearer token
func (s *AuthService) AccountFromRequest(ctx context.Context, r *http.Request) (models.Account, error) {
	var account models.Account

	header := r.Header.Get(authHeaderName)
	scheme, access, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, authScheme) {
		return account, apperrors.ErrInvalidCredentials
	}

	email, err := s.ParseAccess(access)
	if err != nil {
		return account, apperrors.ErrInvalidCredentials
	}

	account, err = s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return account, apperrors.ErrInvalidCredentials
	}

	return account, nil
}
