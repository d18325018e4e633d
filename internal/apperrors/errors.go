package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")

	// Returned for both unknown email and wrong password so login can't
	// be used to probe which emails are registered
	ErrInvalidCredentials = errors.New("invalid authentication credentials")

	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenUsed        = errors.New("token has already been used")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrTokenExpired     = errors.New("token has already expired")

	ErrAlreadyVerified  = errors.New("account is already verified")
	ErrPasswordEmpty    = errors.New("password cannot be empty")
	ErrWrongOldPassword = errors.New("incorrect old password")
	ErrPasswordReused   = errors.New("password cannot match last password")

	ErrGroupNotFound    = errors.New("group not found")
	ErrGroupSlugTaken   = errors.New("group slug already taken")
	ErrAlreadyMember    = errors.New("account is already a group member")
	ErrNotGroupMember   = errors.New("account is not a group member")
	ErrGroupTagNotFound = errors.New("group tag not found")
)

// ThrottleError is returned when an action is attempted before the
// minimum interval has elapsed. Wait carries the seconds the caller
// has to back off, so handlers can surface it machine-readable.
type ThrottleError struct {
	Wait int
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled, wait %d seconds before requesting again", e.Wait)
}

// AsThrottle unwraps err to a ThrottleError if there is one in the chain.
func AsThrottle(err error) (*ThrottleError, bool) {
	var te *ThrottleError
	ok := errors.As(err, &te)
	return te, ok
}
