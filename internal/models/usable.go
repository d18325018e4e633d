package models

import (
	"time"

	"github.com/atriumhq/atrium/internal/apperrors"
)

// UsableToken is the shared lifecycle shape for any single-use,
// expiring, invalidatable credential: refresh tokens, verification
// codes and group invitations all embed it.
//
// A token is usable iff it exists, UsedAt is nil, InvalidatedAt is nil
// and now is before ExpiresAt. Rows are never deleted, only marked.
type UsableToken struct {
	CreatedAt     time.Time
	ExpiresAt     time.Time
	InvalidatedAt *time.Time // set when superseded or revoked
	UsedAt        *time.Time // set exactly once on consumption
}

func (t UsableToken) Used() bool {
	return t.UsedAt != nil
}

func (t UsableToken) Invalidated() bool {
	return t.InvalidatedAt != nil
}

func (t UsableToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// CheckUsable reports why the token can't be used, checking reasons in
// priority order: used, then invalidated, then expired. Returns nil
// for a usable token.
func (t UsableToken) CheckUsable(now time.Time) error {
	switch {
	case t.Used():
		return apperrors.ErrTokenUsed
	case t.Invalidated():
		return apperrors.ErrTokenInvalidated
	case t.Expired(now):
		return apperrors.ErrTokenExpired
	default:
		return nil
	}
}
