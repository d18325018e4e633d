package models

import (
	"github.com/google/uuid"
)

type VerificationCodeType string

const (
	CodeAccountVerification VerificationCodeType = "account_verification"
	CodePasswordReset       VerificationCodeType = "password_reset"
)

// VerificationCode is a time-boxed single-use code delivered
// out-of-band (email). At most one unconsumed, non-invalidated code
// may exist per (account, type): creating a new one invalidates all
// prior live codes of that pair.
type VerificationCode struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Code      string
	Type      VerificationCodeType

	UsableToken
}
