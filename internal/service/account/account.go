package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/logger"
	"github.com/atriumhq/atrium/internal/mailer"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/internal/repository"
	"github.com/atriumhq/atrium/internal/service/auth"
	"github.com/atriumhq/atrium/internal/service/verification"
)

// Minimum interval between issuing codes of the same (account, type)
const defaultResendInterval = 60 * time.Second

// Token issuing and password setting are owned by the auth service,
// the account service only needs this slice of it
type authOps interface {
	CreateAuthTokens(ctx context.Context, account models.Account) (models.AuthTokens, error)
	SetPassword(ctx context.Context, accountID uuid.UUID, password string) error
}

type Config struct {
	// Base URL of the web app, used to build verification links
	WebAppURL string

	// Minimum interval between code resends
	// If not set than default is used
	ResendInterval time.Duration

	// Hasher for registration password hashing
	// Defaults to BcryptHasher
	Hasher auth.PasswordHasher
}

// ResendInfo is returned by flows that (re)issue a code: how long the
// code lives and how long the caller must wait before asking again
type ResendInfo struct {
	Expiry int `json:"expiry"`
	Wait   int `json:"wait"`
}

// Account service: registration, verification and password recovery
// orchestration
type AccountService struct {
	accounts repository.AccountRepo
	codes    *verification.Service
	auth     authOps
	sender   mailer.Sender
	logger   logger.Logger

	hasher         auth.PasswordHasher
	webAppURL      string
	resendInterval time.Duration

	now func() time.Time
}

func NewService(
	cfg Config,
	accounts repository.AccountRepo,
	codes *verification.Service,
	authService authOps,
	sender mailer.Sender,
	log logger.Logger,
) (*AccountService, error) {
	if accounts == nil || codes == nil || authService == nil || sender == nil {
		return nil, errors.New("accounts, codes, auth and sender must not be nil")
	}

	if cfg.ResendInterval == 0 {
		cfg.ResendInterval = defaultResendInterval
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}

	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &AccountService{
		accounts:       accounts,
		codes:          codes,
		auth:           authService,
		sender:         sender,
		logger:         log,
		hasher:         hasher,
		webAppURL:      cfg.WebAppURL,
		resendInterval: cfg.ResendInterval,
		now:            time.Now,
	}, nil
}

// Register creates an account, issues its first verification code and
// returns a fresh token bundle so the account is signed in right away
func (s *AccountService) Register(ctx context.Context, email string, name string, password string) (models.AuthTokens, error) {
	var tokens models.AuthTokens

	if password == "" {
		return tokens, apperrors.ErrPasswordEmpty
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return tokens, fmt.Errorf("can't use this as password, error=%w", err)
	}

	account, err := s.accounts.Create(ctx, repository.CreateAccountParams{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
	})
	if err != nil {
		return tokens, err
	}

	code, err := s.codes.Create(ctx, account.ID, models.CodeAccountVerification)
	if err != nil {
		return tokens, err
	}

	// Delivery failures must not fail registration, the code can be resent
	if err := s.sender.SendAccountVerification(ctx, account.Email, code.Code, s.verificationLink(code.Code)); err != nil {
		s.logger.Warn("can't deliver verification code", "email", account.Email, "error", err.Error())
	}

	return s.auth.CreateAuthTokens(ctx, account)
}

func (s *AccountService) GetByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *AccountService) UpdateName(ctx context.Context, id uuid.UUID, name string) (models.Account, error) {
	return s.accounts.UpdateName(ctx, id, strings.TrimSpace(name))
}

// Verify consumes an account-verification code, marks the owning
// account verified and issues a fresh token bundle (the account may
// not be signed in on this device)
func (s *AccountService) Verify(ctx context.Context, code string) (models.AuthTokens, error) {
	var tokens models.AuthTokens

	found, err := s.codes.Get(ctx, code, models.CodeAccountVerification)
	if err != nil {
		return tokens, err
	}

	owner, err := s.accounts.GetByID(ctx, found.AccountID)
	if err != nil {
		return tokens, err
	}

	// Accounts can only be verified once
	if owner.Verified() {
		return tokens, apperrors.ErrAlreadyVerified
	}

	consumed, err := s.codes.Consume(ctx, code, models.CodeAccountVerification)
	if err != nil {
		return tokens, err
	}

	verified, err := s.accounts.MarkVerified(ctx, consumed.AccountID, s.now().Truncate(time.Microsecond))
	if err != nil {
		return tokens, err
	}

	return s.auth.CreateAuthTokens(ctx, verified)
}

// VerifyResend re-issues an account-verification code, subject to
// throttling. Unknown email returns ErrAccountNotFound: unlike
// forgot-password this endpoint serves signed-up users fixing typos,
// so a 404 is more useful than enumeration safety here (the register
// endpoint reveals taken emails anyway).
func (s *AccountService) VerifyResend(ctx context.Context, email string) (ResendInfo, error) {
	var info ResendInfo

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return info, err
	}

	if account.Verified() {
		return info, apperrors.ErrAlreadyVerified
	}

	throttle, err := s.codes.CheckThrottle(ctx, account.ID, models.CodeAccountVerification, s.resendInterval)
	if err != nil {
		return info, err
	}
	if !throttle.Valid {
		return info, &apperrors.ThrottleError{Wait: throttle.Delay}
	}

	code, err := s.codes.Create(ctx, account.ID, models.CodeAccountVerification)
	if err != nil {
		return info, err
	}

	if err := s.sender.SendAccountVerification(ctx, account.Email, code.Code, s.verificationLink(code.Code)); err != nil {
		s.logger.Warn("can't deliver verification code", "email", account.Email, "error", err.Error())
	}

	return ResendInfo{
		Expiry: int(s.codes.Expiry(models.CodeAccountVerification).Seconds()),
		Wait:   int(s.resendInterval.Seconds()),
	}, nil
}

// ForgotPassword issues a password-reset code. An unknown email gets
// the exact same response with no code created, so the endpoint can't
// be used to probe which emails are registered.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) (ResendInfo, error) {
	info := ResendInfo{
		Expiry: int(s.codes.Expiry(models.CodePasswordReset).Seconds()),
		Wait:   int(s.resendInterval.Seconds()),
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			return info, nil
		}
		return ResendInfo{}, err
	}

	throttle, err := s.codes.CheckThrottle(ctx, account.ID, models.CodePasswordReset, s.resendInterval)
	if err != nil {
		return ResendInfo{}, err
	}
	if !throttle.Valid {
		return ResendInfo{}, &apperrors.ThrottleError{Wait: throttle.Delay}
	}

	code, err := s.codes.Create(ctx, account.ID, models.CodePasswordReset)
	if err != nil {
		return ResendInfo{}, err
	}

	if err := s.sender.SendPasswordReset(ctx, account.Email, code.Code); err != nil {
		s.logger.Warn("can't deliver password reset code", "email", account.Email, "error", err.Error())
	}

	return info, nil
}

// ResetPassword consumes a password-reset code and sets the new
// password. The can't-match-last-password rule is enforced by the auth
// service.
func (s *AccountService) ResetPassword(ctx context.Context, code string, password string) error {
	if password == "" {
		return apperrors.ErrPasswordEmpty
	}

	consumed, err := s.codes.Consume(ctx, code, models.CodePasswordReset)
	if err != nil {
		return err
	}

	return s.auth.SetPassword(ctx, consumed.AccountID, password)
}

func (s *AccountService) verificationLink(code string) string {
	return fmt.Sprintf("%s/verify/%s", strings.TrimSuffix(s.webAppURL, "/"), code)
}
