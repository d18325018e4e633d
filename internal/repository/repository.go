package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/atriumhq/atrium/internal/models"
)

type CreateAccountParams struct {
	Email        string
	Name         string
	PasswordHash string
}

// Account repository interface
type AccountRepo interface {
	// Create account
	// Must return apperrors.ErrAccountExists on duplicate email
	// (email uniqueness is case-insensitive)
	Create(ctx context.Context, arg CreateAccountParams) (models.Account, error)

	// Get account by id or email (case-insensitive)
	// Must return apperrors.ErrAccountNotFound if missing
	GetByID(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetByEmail(ctx context.Context, email string) (models.Account, error)

	// Password hash is excluded from normal reads and only reachable
	// through this dedicated pair
	GetPasswordHash(ctx context.Context, id uuid.UUID) (string, error)
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error

	// Mark account verified. Idempotent: an already verified account
	// keeps its original verified_at
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (models.Account, error)

	// Track the last time an account signed in
	LogSignIn(ctx context.Context, id uuid.UUID, at time.Time) error

	UpdateName(ctx context.Context, id uuid.UUID, name string) (models.Account, error)
}

// RefreshToken repository interface
// Tokens are never deleted, only marked used or invalidated.
type RefreshTokenRepo interface {
	Save(ctx context.Context, token models.RefreshToken) error

	// Exact match lookup by (account, token hash)
	// Must return apperrors.ErrTokenNotFound if absent
	Get(ctx context.Context, accountID uuid.UUID, tokenHash string) (models.RefreshToken, error)

	// Mark token used. At most one caller may win: the existing
	// used_at is never overwritten and losers get apperrors.ErrTokenUsed
	MarkUsed(ctx context.Context, accountID uuid.UUID, tokenHash string, at time.Time) (models.RefreshToken, error)

	// Set invalidated_at, keeping the earliest value if already set
	Invalidate(ctx context.Context, accountID uuid.UUID, tokenHash string, at time.Time) error
}

// VerificationCode repository interface
type VerificationCodeRepo interface {
	Save(ctx context.Context, code models.VerificationCode) error

	// Invalidate all unconsumed, non-invalidated codes of (account, type)
	InvalidateActive(ctx context.Context, accountID uuid.UUID, codeType models.VerificationCodeType, at time.Time) error

	// Lookup by exact code and type, most recent first if ambiguous
	// Must return apperrors.ErrTokenNotFound if absent
	GetByCode(ctx context.Context, code string, codeType models.VerificationCodeType) (models.VerificationCode, error)

	// Most recent code of (account, type) regardless of usable state
	GetLast(ctx context.Context, accountID uuid.UUID, codeType models.VerificationCodeType) (models.VerificationCode, error)

	// Same single-winner semantics as RefreshTokenRepo.MarkUsed
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (models.VerificationCode, error)
}

// Group repository interface
type GroupRepo interface {
	// Must return apperrors.ErrGroupSlugTaken on duplicate slug
	Create(ctx context.Context, group models.Group) (models.Group, error)
	GetBySlug(ctx context.Context, slug string) (models.Group, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Group, error)

	AddMember(ctx context.Context, member models.GroupMember) (models.GroupMember, error)
	GetMember(ctx context.Context, groupID uuid.UUID, accountID uuid.UUID) (models.GroupMember, error)
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error)
	RemoveMember(ctx context.Context, groupID uuid.UUID, accountID uuid.UUID, at time.Time) error

	AddTag(ctx context.Context, tag models.GroupTag) (models.GroupTag, error)
	ListTags(ctx context.Context, groupID uuid.UUID) ([]models.GroupTag, error)
	DeleteTag(ctx context.Context, groupID uuid.UUID, tagID uuid.UUID) error

	SaveInvitation(ctx context.Context, inv models.GroupInvitation) error
	GetInvitationByToken(ctx context.Context, token string) (models.GroupInvitation, error)
	GetInvitationByID(ctx context.Context, id uuid.UUID) (models.GroupInvitation, error)
	MarkInvitationUsed(ctx context.Context, id uuid.UUID, at time.Time) (models.GroupInvitation, error)
	InvalidateInvitation(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Storage aggregates all repositories over a single connection or
// transaction
type Storage interface {
	Accounts() AccountRepo
	RefreshTokens() RefreshTokenRepo
	VerificationCodes() VerificationCodeRepo
	Groups() GroupRepo

	// Run fn within a database transaction
	InTx(ctx context.Context, fn func(s Storage) error) error
}
