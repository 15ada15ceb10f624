package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/domain"
	autherror "github.com/nurdamiron/prometric-backend-v2-sub001/internal/errors"
)

const uniqueViolationCode = "23505"

// PgxPool is the subset of *pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository struct {
	db PgxPool
}

func NewRepository(db PgxPool) *Repository {
	return &Repository{db: db}
}

const userColumns = `
		id, email, first_name, last_name, password_hash,
		COALESCE(phone, ''), COALESCE(company_bin, ''), COALESCE(company_name, ''), COALESCE(industry, ''),
		status, failed_login_attempts, locked_until, last_login_at, COALESCE(last_login_ip, ''),
		password_changed_at, COALESCE(verification_code, ''), verification_code_expires_at,
		COALESCE(role_name, ''), COALESCE(organization_id, ''), created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash,
		&user.Phone, &user.CompanyBIN, &user.CompanyName, &user.Industry,
		&user.Status, &user.FailedLoginAttempts, &user.LockedUntil, &user.LastLoginAt, &user.LastLoginIP,
		&user.PasswordChangedAt, &user.VerificationCode, &user.VerificationCodeExpiresAt,
		&user.RoleName, &user.OrganizationID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT` + userColumns + `
		FROM users
		WHERE email = $1
		LIMIT 1`

	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT` + userColumns + `
		FROM users
		WHERE id = $1
		LIMIT 1`

	return scanUser(r.db.QueryRow(ctx, query, id))
}

// Create serializes on the candidate email: the row lock taken by FOR UPDATE
// holds until commit, so of two racing registrations one sees the other's row
// (or trips the unique index) and fails with ErrEmailAlreadyInUse.
func (r *Repository) Create(ctx context.Context, user *domain.User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existingID string
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE email = $1 FOR UPDATE`, user.Email).Scan(&existingID)
	if err == nil {
		return autherror.ErrEmailAlreadyInUse
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to check existing email: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (
			id, email, first_name, last_name, password_hash,
			phone, company_bin, company_name, industry,
			status, failed_login_attempts, verification_code, verification_code_expires_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $12, $13, $14)`,
		user.ID, user.Email, user.FirstName, user.LastName, user.PasswordHash,
		user.Phone, user.CompanyBIN, user.CompanyName, user.Industry,
		user.Status, user.VerificationCode, user.VerificationCodeExpiresAt,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return autherror.ErrEmailAlreadyInUse
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) RecordLoginSuccess(ctx context.Context, userID, ip string, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    last_login_at = $2,
		    last_login_ip = $3,
		    updated_at = $2
		WHERE id = $1`,
		userID, now, ip)
	return err
}

// RecordLoginFailure increments the counter and arms the lock in a single
// statement so concurrent failed attempts cannot lose updates.
func (r *Repository) RecordLoginFailure(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration) (int, *time.Time, error) {
	lockUntil := time.Now().Add(lockFor)

	var attempts int
	var lockedUntil *time.Time
	err := r.db.QueryRow(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN $3
		        ELSE locked_until
		    END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until`,
		userID, maxAttempts, lockUntil).Scan(&attempts, &lockedUntil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to record login failure: %w", err)
	}

	return attempts, lockedUntil, nil
}

// ConsumeVerificationCode flips pending to active and clears the code only
// when it matches and is unexpired. The status guard makes the code
// single-use: a second call matches zero rows.
func (r *Repository) ConsumeVerificationCode(ctx context.Context, userID, code string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET status = 'active',
		    verification_code = NULL,
		    verification_code_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1
		  AND status = 'pending'
		  AND verification_code = $2
		  AND verification_code_expires_at > $3`,
		userID, code, now)
	if err != nil {
		return false, fmt.Errorf("failed to consume verification code: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *Repository) StoreRefreshToken(ctx context.Context, rt *domain.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, jti, device_fingerprint, ip_address, user_agent,
			expires_at, usage_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)`,
		rt.ID, rt.UserID, rt.TokenHash, rt.JTI, rt.DeviceFingerprint, rt.IPAddress, rt.UserAgent,
		rt.ExpiresAt, rt.CreatedAt)
	return err
}

func (r *Repository) GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, jti, device_fingerprint, ip_address, user_agent,
		       expires_at, revoked_at, COALESCE(revoked_reason, ''), last_used_at, usage_count, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
		LIMIT 1`,
		hash)

	var rt domain.RefreshToken
	err := row.Scan(
		&rt.ID, &rt.UserID, &rt.TokenHash, &rt.JTI, &rt.DeviceFingerprint, &rt.IPAddress, &rt.UserAgent,
		&rt.ExpiresAt, &rt.RevokedAt, &rt.RevokedReason, &rt.LastUsedAt, &rt.UsageCount, &rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return &rt, nil
}

func (r *Repository) TouchRefreshToken(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET usage_count = usage_count + 1,
		    last_used_at = $2
		WHERE id = $1`,
		id, now)
	return err
}

// RevokeRefreshToken claims the row: the `revoked_at IS NULL` guard makes
// the update first-writer-wins, and the row count tells the caller whether
// it won. Rotation relies on this to reject a concurrently spent token.
func (r *Repository) RevokeRefreshToken(ctx context.Context, id, reason string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now(),
		    revoked_reason = $2
		WHERE id = $1 AND revoked_at IS NULL`,
		id, reason)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

func (r *Repository) RevokeAllByUserID(ctx context.Context, userID, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now(),
		    revoked_reason = $2
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > now()`,
		userID, reason)
	return err
}
