package models

import (
	"time"

	"github.com/google/uuid"
)

type GroupMemberRole string

const (
	RoleOwner  GroupMemberRole = "owner"
	RoleMember GroupMemberRole = "member"
)

type GroupInvitationStatus string

const (
	InvitationPending  GroupInvitationStatus = "pending"
	InvitationAccepted GroupInvitationStatus = "accepted"
	InvitationRevoked  GroupInvitationStatus = "revoked"
)

type Group struct {
	ID          uuid.UUID
	Slug        string // unique web identifier
	Name        string
	Description string
	Color       string
	CreatorID   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type GroupMember struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	AccountID uuid.UUID
	Role      GroupMemberRole
	TagIDs    []uuid.UUID
	RemovedAt *time.Time
	CreatedAt time.Time
}

type GroupTag struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	Name      string
	CreatedAt time.Time
}

// GroupInvitation follows the same usable-token lifecycle as refresh
// tokens and verification codes: single use, expiring, revocable.
type GroupInvitation struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	Email     string // invitee email, account may not exist yet
	Token     string
	Status    GroupInvitationStatus

	UsableToken
}
