package group

import (
	"context"
	"crypto/rand"
	"encoding/base64"
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
)

const (
	defaultInvitationTTL  = 7 * 24 * time.Hour
	invitationTokenLength = 32
)

type Config struct {
	// Base URL of the web app, used to build invitation links
	WebAppURL string

	// Invitation lifetime
	// If not set than default is used
	InvitationTTL time.Duration
}

// Group service: groups, membership, tags and invitations. Invitations
// follow the same usable-token lifecycle as verification codes.
type GroupService struct {
	storage repository.Storage
	sender  mailer.Sender
	logger  logger.Logger

	webAppURL     string
	invitationTTL time.Duration

	now func() time.Time
}

func NewService(cfg Config, storage repository.Storage, sender mailer.Sender, log logger.Logger) (*GroupService, error) {
	if storage == nil || sender == nil {
		return nil, errors.New("storage and sender must not be nil")
	}

	if cfg.InvitationTTL == 0 {
		cfg.InvitationTTL = defaultInvitationTTL
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &GroupService{
		storage:       storage,
		sender:        sender,
		logger:        log,
		webAppURL:     cfg.WebAppURL,
		invitationTTL: cfg.InvitationTTL,
		now:           time.Now,
	}, nil
}

type CreateGroupParams struct {
	Slug        string
	Name        string
	Description string
	Color       string
}

// Create makes a group and enrolls the creator as its owner in one
// transaction
func (s *GroupService) Create(ctx context.Context, creatorID uuid.UUID, params CreateGroupParams) (models.Group, error) {
	now := s.now().Truncate(time.Microsecond)

	group := models.Group{
		ID:          uuid.New(),
		Slug:        strings.ToLower(strings.TrimSpace(params.Slug)),
		Name:        strings.TrimSpace(params.Name),
		Description: params.Description,
		Color:       params.Color,
		CreatorID:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		created, err := tx.Groups().Create(ctx, group)
		if err != nil {
			return err
		}
		group = created

		_, err = tx.Groups().AddMember(ctx, models.GroupMember{
			ID:        uuid.New(),
			GroupID:   group.ID,
			AccountID: creatorID,
			Role:      models.RoleOwner,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return models.Group{}, err
	}

	return group, nil
}

// Get returns the group behind a slug. Non-members get
// ErrGroupNotFound, so slugs don't reveal which groups exist.
func (s *GroupService) Get(ctx context.Context, accountID uuid.UUID, slug string) (models.Group, error) {
	group, err := s.storage.Groups().GetBySlug(ctx, slug)
	if err != nil {
		return models.Group{}, err
	}

	if _, err := s.storage.Groups().GetMember(ctx, group.ID, accountID); err != nil {
		if errors.Is(err, apperrors.ErrNotGroupMember) {
			return models.Group{}, apperrors.ErrGroupNotFound
		}
		return models.Group{}, err
	}

	return group, nil
}

// ListForAccount returns the groups the account is an active member of
func (s *GroupService) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Group, error) {
	return s.storage.Groups().ListForAccount(ctx, accountID)
}

func (s *GroupService) ListMembers(ctx context.Context, accountID uuid.UUID, slug string) ([]models.GroupMember, error) {
	group, err := s.Get(ctx, accountID, slug)
	if err != nil {
		return nil, err
	}
	return s.storage.Groups().ListMembers(ctx, group.ID)
}

// RemoveMember soft-removes a member. Only the group owner may remove
// other members, anyone may remove themselves.
func (s *GroupService) RemoveMember(ctx context.Context, requesterID uuid.UUID, slug string, accountID uuid.UUID) error {
	group, err := s.Get(ctx, requesterID, slug)
	if err != nil {
		return err
	}

	if requesterID != accountID {
		requester, err := s.storage.Groups().GetMember(ctx, group.ID, requesterID)
		if err != nil {
			return err
		}
		if requester.Role != models.RoleOwner {
			return apperrors.ErrNotGroupMember
		}
	}

	return s.storage.Groups().RemoveMember(ctx, group.ID, accountID, s.now().Truncate(time.Microsecond))
}

// Invite issues an invitation token for an email and delivers it.
// Any active member may invite.
func (s *GroupService) Invite(ctx context.Context, requesterID uuid.UUID, slug string, email string) (models.GroupInvitation, error) {
	group, err := s.Get(ctx, requesterID, slug)
	if err != nil {
		return models.GroupInvitation{}, err
	}

	token, err := randomToken(invitationTokenLength)
	if err != nil {
		return models.GroupInvitation{}, err
	}

	now := s.now().Truncate(time.Microsecond)
	inv := models.GroupInvitation{
		ID:      uuid.New(),
		GroupID: group.ID,
		Email:   strings.ToLower(strings.TrimSpace(email)),
		Token:   token,
		Status:  models.InvitationPending,
		UsableToken: models.UsableToken{
			CreatedAt: now,
			ExpiresAt: now.Add(s.invitationTTL),
		},
	}

	if err := s.storage.Groups().SaveInvitation(ctx, inv); err != nil {
		return models.GroupInvitation{}, fmt.Errorf("error while saving invitation. Err: %w", err)
	}

	if err := s.sender.SendGroupInvitation(ctx, inv.Email, group.Name, s.invitationLink(token)); err != nil {
		s.logger.Warn("can't deliver group invitation", "email", inv.Email, "error", err.Error())
	}

	return inv, nil
}

// AcceptInvitation consumes an invitation token and enrolls the
// accepting account as a member. The token is single use: concurrent
// accepts race on used_at and only one wins. The accepting account's
// email must match the invitee email.
func (s *GroupService) AcceptInvitation(ctx context.Context, account models.Account, token string) (models.GroupMember, error) {
	var member models.GroupMember

	inv, err := s.storage.Groups().GetInvitationByToken(ctx, token)
	if err != nil {
		return member, err
	}

	// Invitations are bound to the invitee, a token forwarded to
	// someone else must not grant membership
	if !strings.EqualFold(inv.Email, account.Email) {
		return member, apperrors.ErrTokenNotFound
	}

	now := s.now().Truncate(time.Microsecond)

	used, err := s.storage.Groups().MarkInvitationUsed(ctx, inv.ID, now)
	if err != nil {
		return member, err
	}

	if used.Invalidated() {
		return member, apperrors.ErrTokenInvalidated
	}
	if used.Expired(now) {
		return member, apperrors.ErrTokenExpired
	}

	return s.storage.Groups().AddMember(ctx, models.GroupMember{
		ID:        uuid.New(),
		GroupID:   used.GroupID,
		AccountID: account.ID,
		Role:      models.RoleMember,
		CreatedAt: now,
	})
}

// RevokeInvitation invalidates a pending invitation. Only the group
// owner may revoke.
func (s *GroupService) RevokeInvitation(ctx context.Context, requesterID uuid.UUID, slug string, invitationID uuid.UUID) error {
	group, err := s.Get(ctx, requesterID, slug)
	if err != nil {
		return err
	}

	requester, err := s.storage.Groups().GetMember(ctx, group.ID, requesterID)
	if err != nil {
		return err
	}
	if requester.Role != models.RoleOwner {
		return apperrors.ErrNotGroupMember
	}

	inv, err := s.storage.Groups().GetInvitationByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.GroupID != group.ID {
		return apperrors.ErrTokenNotFound
	}

	return s.storage.Groups().InvalidateInvitation(ctx, inv.ID, s.now().Truncate(time.Microsecond))
}

// AddTag creates a tag in the group. Any active member may manage tags.
func (s *GroupService) AddTag(ctx context.Context, requesterID uuid.UUID, slug string, name string) (models.GroupTag, error) {
	group, err := s.Get(ctx, requesterID, slug)
	if err != nil {
		return models.GroupTag{}, err
	}

	return s.storage.Groups().AddTag(ctx, models.GroupTag{
		ID:        uuid.New(),
		GroupID:   group.ID,
		Name:      strings.TrimSpace(name),
		CreatedAt: s.now().Truncate(time.Microsecond),
	})
}

func (s *GroupService) ListTags(ctx context.Context, requesterID uuid.UUID, slug string) ([]models.GroupTag, error) {
	group, err := s.Get(ctx, requesterID, slug)
	if err != nil {
		return nil, err
	}
	return s.storage.Groups().ListTags(ctx, group.ID)
}

func (s *GroupService) DeleteTag(ctx context.Context, requesterID uuid.UUID, slug string, tagID uuid.UUID) error {
	group, err := s.Get(ctx, requesterID, slug)
	if err != nil {
		return err
	}
	return s.storage.Groups().DeleteTag(ctx, group.ID, tagID)
}

func (s *GroupService) invitationLink(token string) string {
	return fmt.Sprintf("%s/invitations/%s", strings.TrimSuffix(s.webAppURL, "/"), token)
}

func randomToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating invitation token. Err: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}
