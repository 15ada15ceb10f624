package service

import (
	"time"

	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/domain"
)

// LockoutPolicy decides whether a login attempt is permitted. It is a pure
// view over the user's counter fields; the counter itself is incremented
// atomically in the repository so concurrent failures cannot lose updates.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// IsLocked reports whether the account rejects attempts at the given instant.
// The boundary is inclusive: an attempt arriving exactly at LockedUntil is
// still locked.
func (p LockoutPolicy) IsLocked(u *domain.User, now time.Time) bool {
	return u.LockedUntil != nil && !now.After(*u.LockedUntil)
}
