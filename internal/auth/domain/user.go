package domain

import "time"

type UserStatus string

const (
	StatusPending   UserStatus = "pending"
	StatusActive    UserStatus = "active"
	StatusInactive  UserStatus = "inactive"
	StatusSuspended UserStatus = "suspended"
)

type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Phone        string
	CompanyBIN   string
	CompanyName  string
	Industry     string

	Status              UserStatus
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         string
	PasswordChangedAt   *time.Time

	VerificationCode          string
	VerificationCodeExpiresAt *time.Time

	// Filled by the identity directory after onboarding; empty for a fresh
	// account and omitted from token claims while empty.
	RoleName       string
	OrganizationID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive is evaluated fresh on every token-issuing call so an externally
// triggered suspension takes effect on the very next login or refresh.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// RefreshToken is the ledger record of an issued refresh token. Only the
// SHA-256 hash of the token string is persisted, never the plaintext.
type RefreshToken struct {
	ID                string
	UserID            string
	TokenHash         string
	JTI               string
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	ExpiresAt         time.Time
	RevokedAt         *time.Time
	RevokedReason     string
	LastUsedAt        *time.Time
	UsageCount        int
	CreatedAt         time.Time
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// RequestMetadata is caller-supplied connection context for login and refresh.
type RequestMetadata struct {
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
}
