package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTooManyLoginAttempts    = errors.New("too many login attempts")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrEmailAlreadyInUse       = errors.New("email already in use")
	ErrAccountNotActive        = errors.New("account is not active")
	ErrInvalidVerificationCode = errors.New("invalid or expired verification code")
	ErrRefreshTokenNotFound    = errors.New("refresh token not found")
	ErrRefreshTokenRevoked     = errors.New("refresh token revoked")
	ErrRefreshTokenExpired     = errors.New("refresh token expired")
)

// AccountLockedError carries the unlock time so handlers can log the lock
// window. The HTTP boundary still renders the generic invalid-credentials
// message: a locked account must look identical to a bad password.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// ValidationError rejects malformed input before any transaction opens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
