package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/internal/repository"
)

const (
	defaultRefreshTokenLength = 64
	defaultRefreshHashRounds  = 1000
	defaultRefreshTokenTTL    = 7 * 24 * time.Hour
)

type RefreshTokenConfig struct {
	// Plaintext token length in characters
	// If not set than default is used
	TokenLength int

	// pbkdf2 rounds for the storage hash
	// If not set than default is used
	HashRounds int

	// Refresh token lifetime
	// If not set than default is used
	TTL time.Duration
}

// RefreshTokenService issues and rotates long-lived refresh tokens.
// Only a derived hash is stored: the plaintext goes to the client once
// and can't be recovered.
type RefreshTokenService struct {
	tokenLength int
	hashRounds  int
	ttl         time.Duration

	repo repository.RefreshTokenRepo

	// replaceable in tests to simulate time
	now func() time.Time
}

func NewRefreshTokenService(cfg RefreshTokenConfig, repo repository.RefreshTokenRepo) (*RefreshTokenService, error) {
	if repo == nil {
		return nil, errors.New("refresh token repo must not be nil")
	}

	if cfg.TokenLength == 0 {
		cfg.TokenLength = defaultRefreshTokenLength
	}
	if cfg.HashRounds == 0 {
		cfg.HashRounds = defaultRefreshHashRounds
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultRefreshTokenTTL
	}

	return &RefreshTokenService{
		tokenLength: cfg.TokenLength,
		hashRounds:  cfg.HashRounds,
		ttl:         cfg.TTL,
		repo:        repo,
		now:         time.Now,
	}, nil
}

func (s *RefreshTokenService) TTL() time.Duration {
	return s.ttl
}

// Generate creates a random refresh token, persists its lookup hash
// and returns the plaintext to the caller
func (s *RefreshTokenService) Generate(ctx context.Context, accountID uuid.UUID) (string, error) {
	b := make([]byte, s.tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating refresh token. Err: %w", err)
	}
	plain := base64.RawURLEncoding.EncodeToString(b)[:s.tokenLength]

	now := s.now().Truncate(time.Microsecond)
	err := s.repo.Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		AccountID: accountID,
		Token:     s.LookupHash(plain, accountID),
		UsableToken: models.UsableToken{
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		},
	})
	if err != nil {
		return "", fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return plain, nil
}

// LookupHash derives the storage hash for a plaintext token.
//
// The salt is the account id with dashes stripped and reversed, so the
// hash is deterministic per (token, account) and lookups are a single
// exact-match query. A slow adaptive hash (bcrypt) would force a
// comparison scan over every row which is far too expensive at refresh
// volume. This is obfuscation, not confidentiality: the salt is
// reproducible by anyone holding the row.
func (s *RefreshTokenService) LookupHash(plain string, accountID uuid.UUID) string {
	salt := reverseString(strings.ReplaceAll(accountID.String(), "-", ""))

	key := pbkdf2.Key([]byte(plain), []byte(salt), s.hashRounds, s.tokenLength, sha512.New)
	return base64.StdEncoding.EncodeToString(key)
}

// Get returns the stored token for a plaintext value whatever its
// usable state
func (s *RefreshTokenService) Get(ctx context.Context, accountID uuid.UUID, plain string) (models.RefreshToken, error) {
	return s.repo.Get(ctx, accountID, s.LookupHash(plain, accountID))
}

// Use validates and consumes the token. At most one concurrent caller
// succeeds, the rest observe ErrTokenUsed. Failure reasons follow the
// usable-token priority: not found, used, invalidated, expired.
func (s *RefreshTokenService) Use(ctx context.Context, accountID uuid.UUID, plain string) (models.RefreshToken, error) {
	now := s.now().Truncate(time.Microsecond)

	token, err := s.repo.MarkUsed(ctx, accountID, s.LookupHash(plain, accountID), now)
	if err != nil {
		return token, fmt.Errorf("error while marking token used. Err: %w", err)
	}

	if token.Invalidated() {
		return token, apperrors.ErrTokenInvalidated
	}
	if token.Expired(now) {
		return token, apperrors.ErrTokenExpired
	}

	return token, nil
}

// Revoke invalidates the token. A missing token is a no-op so the call
// never leaks whether a token exists.
func (s *RefreshTokenService) Revoke(ctx context.Context, accountID uuid.UUID, plain string) error {
	now := s.now().Truncate(time.Microsecond)

	err := s.repo.Invalidate(ctx, accountID, s.LookupHash(plain, accountID), now)
	if err != nil && !errors.Is(err, apperrors.ErrTokenNotFound) {
		return fmt.Errorf("error while revoking token. Err: %w", err)
	}

	return nil
}

func reverseString(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
