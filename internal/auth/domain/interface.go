package domain

//go:generate mockgen -destination=../../mocks/mock_user_repository.go -package=mocks github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/domain UserRepository
//go:generate mockgen -destination=../../mocks/mock_refresh_token_repository.go -package=mocks github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/domain RefreshTokenRepository

import (
	"context"
	"time"
)

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	// Create inserts the user inside a transaction that holds an exclusive
	// lock on any existing row with the same email, so concurrent
	// registrations yield exactly one success.
	Create(ctx context.Context, user *User) error
	RecordLoginSuccess(ctx context.Context, userID, ip string, now time.Time) error
	// RecordLoginFailure atomically increments the failure counter and sets
	// the lock timestamp once maxAttempts is reached, returning both.
	RecordLoginFailure(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration) (int, *time.Time, error)
	// ConsumeVerificationCode activates the user and clears the code in one
	// statement; it reports false when the code mismatches or has expired.
	ConsumeVerificationCode(ctx context.Context, userID, code string, now time.Time) (bool, error)
}

type RefreshTokenRepository interface {
	StoreRefreshToken(ctx context.Context, rt *RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error)
	TouchRefreshToken(ctx context.Context, id string, now time.Time) error
	// RevokeRefreshToken reports whether this call performed the revocation.
	// Of two concurrent presentations of the same token exactly one gets
	// true; the loser must not treat the token as spendable.
	RevokeRefreshToken(ctx context.Context, id, reason string) (bool, error)
	RevokeAllByUserID(ctx context.Context, userID, reason string) error
}
