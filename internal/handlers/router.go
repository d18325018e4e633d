package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/atriumhq/atrium/internal/handlers/middleware"
	"github.com/atriumhq/atrium/internal/logger"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/internal/service/account"
	"github.com/atriumhq/atrium/internal/service/group"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	accountService accountService,
	groupService groupService,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(authService)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	root := http.NewServeMux()

	root.Handle("POST /api/account", handleRegister(accountService, logger))
	root.Handle("GET /api/account", withAuth(handleAccountMe()))
	root.Handle("PATCH /api/account", withAuth(handleAccountUpdate(accountService, logger)))
	root.Handle("PATCH /api/account/verify", handleVerify(accountService, logger))
	root.Handle("POST /api/account/verify/resend", handleVerifyResend(accountService, logger))

	root.Handle("POST /api/auth/login", handleLogin(authService, logger))
	root.Handle("PATCH /api/auth/password/change", withAuth(handlePasswordChange(authService, logger)))
	root.Handle("POST /api/auth/password/forget", handlePasswordForget(accountService, logger))
	root.Handle("POST /api/auth/password/reset", handlePasswordReset(accountService, logger))
	root.Handle("POST /api/auth/refresh-token", handleTokenRefresh(authService, logger))
	root.Handle("DELETE /api/auth/refresh-token", handleTokenRevoke(authService, logger))

	root.Handle("POST /api/groups", withAuth(handleGroupCreate(groupService, logger)))
	root.Handle("GET /api/groups", withAuth(handleGroupList(groupService, logger)))
	root.Handle("GET /api/groups/{slug}", withAuth(handleGroupGet(groupService, logger)))
	root.Handle("GET /api/groups/{slug}/members", withAuth(handleGroupMembers(groupService, logger)))
	root.Handle("DELETE /api/groups/{slug}/members/{accountId}", withAuth(handleMemberRemove(groupService, logger)))
	root.Handle("POST /api/groups/{slug}/invitations", withAuth(handleInvitationCreate(groupService, logger)))
	root.Handle("POST /api/groups/invitations/accept", withAuth(handleInvitationAccept(groupService, logger)))
	root.Handle("DELETE /api/groups/{slug}/invitations/{id}", withAuth(handleInvitationRevoke(groupService, logger)))
	root.Handle("POST /api/groups/{slug}/tags", withAuth(handleTagCreate(groupService, logger)))
	root.Handle("DELETE /api/groups/{slug}/tags/{id}", withAuth(handleTagDelete(groupService, logger)))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Login with email and password
	// Has to return apperrors.ErrInvalidCredentials on unknown email or
	// wrong password
	Login(ctx context.Context, email string, password string) (models.AuthTokens, error)

	// Rotate a refresh token into a fresh access/refresh pair
	// A replayed token has to fail with apperrors.ErrTokenUsed
	Refresh(ctx context.Context, accountID uuid.UUID, refreshToken string) (models.AuthTokens, error)

	// Invalidate a refresh token, idempotent
	Revoke(ctx context.Context, accountID uuid.UUID, refreshToken string) error

	ChangePassword(ctx context.Context, accountID uuid.UUID, oldPassword string, newPassword string) error

	// Authenticate a request by its bearer token
	AccountFromRequest(ctx context.Context, r *http.Request) (models.Account, error)
}

type accountService interface {
	// Register account
	// Has to return apperrors.ErrAccountExists on duplicate email
	Register(ctx context.Context, email string, name string, password string) (models.AuthTokens, error)

	UpdateName(ctx context.Context, id uuid.UUID, name string) (models.Account, error)

	// Consume an account-verification code and sign the account in
	Verify(ctx context.Context, code string) (models.AuthTokens, error)
	VerifyResend(ctx context.Context, email string) (account.ResendInfo, error)

	// Issue a password-reset code, unknown email answers like success
	ForgotPassword(ctx context.Context, email string) (account.ResendInfo, error)
	ResetPassword(ctx context.Context, code string, password string) error
}

type groupService interface {
	Create(ctx context.Context, creatorID uuid.UUID, params group.CreateGroupParams) (models.Group, error)
	Get(ctx context.Context, accountID uuid.UUID, slug string) (models.Group, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Group, error)
	ListMembers(ctx context.Context, accountID uuid.UUID, slug string) ([]models.GroupMember, error)
	RemoveMember(ctx context.Context, requesterID uuid.UUID, slug string, accountID uuid.UUID) error
	Invite(ctx context.Context, requesterID uuid.UUID, slug string, email string) (models.GroupInvitation, error)
	AcceptInvitation(ctx context.Context, account models.Account, token string) (models.GroupMember, error)
	RevokeInvitation(ctx context.Context, requesterID uuid.UUID, slug string, invitationID uuid.UUID) error
	AddTag(ctx context.Context, requesterID uuid.UUID, slug string, name string) (models.GroupTag, error)
	DeleteTag(ctx context.Context, requesterID uuid.UUID, slug string, tagID uuid.UUID) error
}
