package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/internal/repository"
)

const (
	codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 32

	// Both code types live for 10 minutes
	defaultCodeTTL = 10 * time.Minute
)

// Throttle tells whether a new code may be issued and how long to wait
// otherwise
type Throttle struct {
	Valid bool
	Delay int // seconds, 0 when valid
}

// Service issues and consumes time-boxed single-use verification codes
// for account verification and password reset
type Service struct {
	storage repository.Storage
	ttl     map[models.VerificationCodeType]time.Duration

	// replaceable in tests to simulate time
	now func() time.Time
}

func NewService(storage repository.Storage) (*Service, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	return &Service{
		storage: storage,
		ttl: map[models.VerificationCodeType]time.Duration{
			models.CodeAccountVerification: defaultCodeTTL,
			models.CodePasswordReset:       defaultCodeTTL,
		},
		now: time.Now,
	}, nil
}

// SetNow replaces the service clock, tests use it to simulate time
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Expiry returns the configured lifetime for a code type
func (s *Service) Expiry(codeType models.VerificationCodeType) time.Duration {
	return s.ttl[codeType]
}

// Create invalidates all live codes of (account, type) and issues a new
// one in the same transaction, so the latest code is always the only
// consumable one. Returns the code with its plaintext value: that value
// is what gets delivered out-of-band.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, codeType models.VerificationCodeType) (models.VerificationCode, error) {
	now := s.now().Truncate(time.Microsecond)

	value, err := randomCode()
	if err != nil {
		return models.VerificationCode{}, err
	}

	code := models.VerificationCode{
		ID:        uuid.New(),
		AccountID: accountID,
		Code:      value,
		Type:      codeType,
		UsableToken: models.UsableToken{
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl[codeType]),
		},
	}

	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		if err := tx.VerificationCodes().InvalidateActive(ctx, accountID, codeType, now); err != nil {
			return err
		}
		return tx.VerificationCodes().Save(ctx, code)
	})
	if err != nil {
		return models.VerificationCode{}, fmt.Errorf("error while creating verification code. Err: %w", err)
	}

	return code, nil
}

// Get looks a code up by exact value and type whatever its usable state
func (s *Service) Get(ctx context.Context, code string, codeType models.VerificationCodeType) (models.VerificationCode, error) {
	return s.storage.VerificationCodes().GetByCode(ctx, code, codeType)
}

// CheckThrottle compares now against the most recent code's createdAt
// for (account, type), whatever that code's usable state. With no prior
// code the action is always allowed.
func (s *Service) CheckThrottle(ctx context.Context, accountID uuid.UUID, codeType models.VerificationCodeType, minInterval time.Duration) (Throttle, error) {
	last, err := s.storage.VerificationCodes().GetLast(ctx, accountID, codeType)
	if err != nil {
		if errors.Is(err, apperrors.ErrTokenNotFound) {
			return Throttle{Valid: true, Delay: 0}, nil
		}
		return Throttle{}, err
	}

	elapsed := int(s.now().Sub(last.CreatedAt).Seconds())
	minSeconds := int(minInterval.Seconds())

	delay := minSeconds - elapsed
	if delay < 0 {
		delay = 0
	}

	return Throttle{
		Valid: elapsed > minSeconds,
		Delay: delay,
	}, nil
}

// Consume validates and uses a code: used_at is set exactly once and a
// second consume fails with ErrTokenUsed. Failure reasons follow the
// usable-token priority: not found, used, invalidated, expired.
func (s *Service) Consume(ctx context.Context, code string, codeType models.VerificationCodeType) (models.VerificationCode, error) {
	now := s.now().Truncate(time.Microsecond)

	found, err := s.Get(ctx, code, codeType)
	if err != nil {
		return found, err
	}

	used, err := s.storage.VerificationCodes().MarkUsed(ctx, found.ID, now)
	if err != nil {
		return used, fmt.Errorf("error while consuming verification code. Err: %w", err)
	}

	if used.Invalidated() {
		return used, apperrors.ErrTokenInvalidated
	}
	if used.Expired(now) {
		return used, apperrors.ErrTokenExpired
	}

	return used, nil
}

// randomCode draws codeLength characters from the fixed alphabet
func randomCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, codeLength)

	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("error while generating verification code. Err: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}

	return string(b), nil
}
