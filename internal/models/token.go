package models

import (
	"github.com/google/uuid"
)

// AuthTokens bundle returned on registration, login, verification and
// refresh. RefreshToken carries the plaintext value, it is hashed
// before storage and can't be recovered later.
type AuthTokens struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresIn    int       `json:"expiresIn"`
	AccountID    uuid.UUID `json:"accountId"`
}
