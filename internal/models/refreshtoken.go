package models

import (
	"github.com/google/uuid"
)

// RefreshToken row. Token holds the pbkdf2 lookup hash of the
// plaintext value, never the plaintext itself. Rotation inserts a new
// row and marks the old one used, it never mutates the token value.
type RefreshToken struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Token     string

	UsableToken
}
