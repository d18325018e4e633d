package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/models"
)

type GroupRepo struct {
	DB DBTX
}

const createGroup = `-- name: CreateGroup
INSERT INTO groups (id, slug, name, description, color, creator_account_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, slug, name, description, color, creator_account_id, created_at, updated_at
`

func (r *GroupRepo) Create(ctx context.Context, group models.Group) (models.Group, error) {
	rows, _ := r.DB.Query(ctx, createGroup,
		group.ID, group.Slug, group.Name, group.Description, group.Color, group.CreatorID,
	)
	created, err := pgx.CollectOneRow(rows, rowToGroup)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return created, apperrors.ErrGroupSlugTaken
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getGroupBySlug = `-- name: GetGroupBySlug
SELECT id, slug, name, description, color, creator_account_id, created_at, updated_at
FROM groups
WHERE slug = $1
`

func (r *GroupRepo) GetBySlug(ctx context.Context, slug string) (models.Group, error) {
	rows, _ := r.DB.Query(ctx, getGroupBySlug, slug)
	group, err := pgx.CollectOneRow(rows, rowToGroup)

	switch {
	case err == nil:
		return group, nil
	case errors.Is(err, pgx.ErrNoRows):
		return group, apperrors.ErrGroupNotFound
	default:
		return group, fmt.Errorf("db error: %w", err)
	}
}

const listGroupsForAccount = `-- name: ListGroupsForAccount via active membership
SELECT g.id, g.slug, g.name, g.description, g.color, g.creator_account_id, g.created_at, g.updated_at
FROM groups g
JOIN group_members m ON m.group_id = g.id
WHERE m.account_id = $1 AND m.removed_at IS NULL
ORDER BY g.created_at
`

func (r *GroupRepo) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Group, error) {
	rows, _ := r.DB.Query(ctx, listGroupsForAccount, accountID)
	groups, err := pgx.CollectRows(rows, rowToGroup)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return groups, nil
}

const addMember = `-- name: AddMember
INSERT INTO group_members (id, group_id, account_id, role, tag_ids)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, group_id, account_id, role, tag_ids, removed_at, created_at
`

func (r *GroupRepo) AddMember(ctx context.Context, member models.GroupMember) (models.GroupMember, error) {
	rows, _ := r.DB.Query(ctx, addMember,
		member.ID, member.GroupID, member.AccountID, member.Role, member.TagIDs,
	)
	created, err := pgx.CollectOneRow(rows, rowToGroupMember)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return created, apperrors.ErrAlreadyMember
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getMember = `-- name: GetMember active membership only
SELECT id, group_id, account_id, role, tag_ids, removed_at, created_at
FROM group_members
WHERE group_id = $1 AND account_id = $2 AND removed_at IS NULL
`

func (r *GroupRepo) GetMember(ctx context.Context, groupID uuid.UUID, accountID uuid.UUID) (models.GroupMember, error) {
	rows, _ := r.DB.Query(ctx, getMember, groupID, accountID)
	member, err := pgx.CollectOneRow(rows, rowToGroupMember)

	switch {
	case err == nil:
		return member, nil
	case errors.Is(err, pgx.ErrNoRows):
		return member, apperrors.ErrNotGroupMember
	default:
		return member, fmt.Errorf("db error: %w", err)
	}
}

const listMembers = `-- name: ListMembers
SELECT id, group_id, account_id, role, tag_ids, removed_at, created_at
FROM group_members
WHERE group_id = $1 AND removed_at IS NULL
ORDER BY created_at
`

func (r *GroupRepo) ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error) {
	rows, _ := r.DB.Query(ctx, listMembers, groupID)
	members, err := pgx.CollectRows(rows, rowToGroupMember)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return members, nil
}

const removeMember = `-- name: RemoveMember, membership rows are kept
UPDATE group_members
SET removed_at = COALESCE(removed_at, $3)
WHERE group_id = $1 AND account_id = $2 AND removed_at IS NULL
`

func (r *GroupRepo) RemoveMember(ctx context.Context, groupID uuid.UUID, accountID uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, removeMember, groupID, accountID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotGroupMember
	}
	return nil
}

const addTag = `-- name: AddTag
INSERT INTO group_tags (id, group_id, name)
VALUES ($1, $2, $3)
RETURNING id, group_id, name, created_at
`

func (r *GroupRepo) AddTag(ctx context.Context, tag models.GroupTag) (models.GroupTag, error) {
	rows, _ := r.DB.Query(ctx, addTag, tag.ID, tag.GroupID, tag.Name)
	created, err := pgx.CollectOneRow(rows, rowToGroupTag)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

const listTags = `-- name: ListTags
SELECT id, group_id, name, created_at
FROM group_tags
WHERE group_id = $1
ORDER BY created_at
`

func (r *GroupRepo) ListTags(ctx context.Context, groupID uuid.UUID) ([]models.GroupTag, error) {
	rows, _ := r.DB.Query(ctx, listTags, groupID)
	tags, err := pgx.CollectRows(rows, rowToGroupTag)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tags, nil
}

const deleteTag = `-- name: DeleteTag
DELETE FROM group_tags
WHERE group_id = $1 AND id = $2
`

func (r *GroupRepo) DeleteTag(ctx context.Context, groupID uuid.UUID, tagID uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deleteTag, groupID, tagID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrGroupTagNotFound
	}
	return nil
}

const saveInvitation = `-- name: SaveInvitation
INSERT INTO group_invitations (id, group_id, email, token, status, created_at, expires_at, invalidated_at, used_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`

func (r *GroupRepo) SaveInvitation(ctx context.Context, inv models.GroupInvitation) error {
	rows, _ := r.DB.Query(ctx, saveInvitation,
		inv.ID, inv.GroupID, inv.Email, inv.Token, inv.Status,
		inv.CreatedAt, inv.ExpiresAt, inv.InvalidatedAt, inv.UsedAt,
	)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const invitationColumns = `id, group_id, email, token, status, created_at, expires_at, invalidated_at, used_at`

const getInvitationByToken = `-- name: GetInvitationByToken
SELECT ` + invitationColumns + `
FROM group_invitations
WHERE token = $1
`

func (r *GroupRepo) GetInvitationByToken(ctx context.Context, token string) (models.GroupInvitation, error) {
	rows, _ := r.DB.Query(ctx, getInvitationByToken, token)
	inv, err := pgx.CollectOneRow(rows, rowToInvitation)

	switch {
	case err == nil:
		return inv, nil
	case errors.Is(err, pgx.ErrNoRows):
		return inv, apperrors.ErrTokenNotFound
	default:
		return inv, fmt.Errorf("db error: %w", err)
	}
}

const getInvitationByID = `-- name: GetInvitationByID
SELECT ` + invitationColumns + `
FROM group_invitations
WHERE id = $1
`

func (r *GroupRepo) GetInvitationByID(ctx context.Context, id uuid.UUID) (models.GroupInvitation, error) {
	rows, _ := r.DB.Query(ctx, getInvitationByID, id)
	inv, err := pgx.CollectOneRow(rows, rowToInvitation)

	switch {
	case err == nil:
		return inv, nil
	case errors.Is(err, pgx.ErrNoRows):
		return inv, apperrors.ErrTokenNotFound
	default:
		return inv, fmt.Errorf("db error: %w", err)
	}
}

const markInvitationUsed = `-- name: MarkInvitationUsed, never overwrite used_at
UPDATE group_invitations
SET used_at = COALESCE(used_at, $2),
    status = CASE WHEN used_at IS NULL THEN 'accepted' ELSE status END
WHERE id = $1
RETURNING ` + invitationColumns

func (r *GroupRepo) MarkInvitationUsed(ctx context.Context, id uuid.UUID, at time.Time) (models.GroupInvitation, error) {
	rows, _ := r.DB.Query(ctx, markInvitationUsed, id, at)
	inv, err := pgx.CollectOneRow(rows, rowToInvitation)

	switch {
	case err == nil && inv.UsedAt != nil && inv.UsedAt.Equal(at):
		return inv, nil
	case err == nil:
		return inv, apperrors.ErrTokenUsed
	case errors.Is(err, pgx.ErrNoRows):
		return inv, apperrors.ErrTokenNotFound
	default:
		return inv, fmt.Errorf("db error: %w", err)
	}
}

const invalidateInvitation = `-- name: InvalidateInvitation
UPDATE group_invitations
SET invalidated_at = COALESCE(invalidated_at, $2),
    status = CASE WHEN invalidated_at IS NULL THEN 'revoked' ELSE status END
WHERE id = $1
`

func (r *GroupRepo) InvalidateInvitation(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, invalidateInvitation, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTokenNotFound
	}
	return nil
}

func rowToGroup(row pgx.CollectableRow) (models.Group, error) {
	var g models.Group
	var description *string
	err := row.Scan(&g.ID, &g.Slug, &g.Name, &description, &g.Color, &g.CreatorID, &g.CreatedAt, &g.UpdatedAt)
	if description != nil {
		g.Description = *description
	}
	return g, err
}

func rowToGroupMember(row pgx.CollectableRow) (models.GroupMember, error) {
	var m models.GroupMember
	err := row.Scan(&m.ID, &m.GroupID, &m.AccountID, &m.Role, &m.TagIDs, &m.RemovedAt, &m.CreatedAt)
	return m, err
}

func rowToGroupTag(row pgx.CollectableRow) (models.GroupTag, error) {
	var t models.GroupTag
	err := row.Scan(&t.ID, &t.GroupID, &t.Name, &t.CreatedAt)
	return t, err
}

func rowToInvitation(row pgx.CollectableRow) (models.GroupInvitation, error) {
	var i models.GroupInvitation
	err := row.Scan(&i.ID, &i.GroupID, &i.Email, &i.Token, &i.Status, &i.CreatedAt, &i.ExpiresAt, &i.InvalidatedAt, &i.UsedAt)
	return i, err
}
