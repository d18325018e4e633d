package models

import (
	"time"

	"github.com/google/uuid"
)

// Account identity record
// The password hash is deliberately not part of the model: normal reads
// never return it, services fetch it through a dedicated repo method.
type Account struct {
	ID          uuid.UUID
	Email       string
	Name        string // optional display name, empty if not set
	LastLoginAt *time.Time
	VerifiedAt  *time.Time // nil until first verification
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a Account) Verified() bool {
	return a.VerifiedAt != nil
}
