package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurdamiron/prometric-backend-v2-sub001/config"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/domain"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/dto"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/rate"
	autherror "github.com/nurdamiron/prometric-backend-v2-sub001/internal/errors"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/notify"
	authconstant "github.com/nurdamiron/prometric-backend-v2-sub001/pkg/constant"
)

const minPasswordLength = 8

type UserService struct {
	users           domain.UserRepository
	ledger          domain.RefreshTokenRepository
	tokenService    TokenGenerator
	hasher          *PasswordHasher
	lockout         LockoutPolicy
	notifier        notify.Sender
	limiter         rate.Limiter
	logger          *slog.Logger
	verificationTTL time.Duration
}

func NewUserService(
	users domain.UserRepository,
	ledger domain.RefreshTokenRepository,
	tokenService TokenGenerator,
	hasher *PasswordHasher,
	notifier notify.Sender,
	limiter rate.Limiter,
	logger *slog.Logger,
	cfg *config.Config,
) *UserService {
	return &UserService{
		users:        users,
		ledger:       ledger,
		tokenService: tokenService,
		hasher:       hasher,
		lockout: LockoutPolicy{
			MaxAttempts:  cfg.LoginMaxAttempts,
			LockDuration: time.Duration(cfg.LockoutMinutes) * time.Minute,
		},
		notifier:        notifier,
		limiter:         limiter,
		logger:          logger,
		verificationTTL: time.Duration(cfg.VerificationTTLMin) * time.Minute,
	}
}

// Register creates a dormant identity. The repository serializes on the email
// inside its own transaction; a failed verification mail never rolls the
// identity back. No tokens are issued before email verification.
func (s *UserService) Register(ctx context.Context, input dto.RegisterInput) (*domain.User, error) {
	if err := validateRegisterInput(input); err != nil {
		return nil, err
	}

	hashedPassword, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	code, err := generateVerificationCode()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	codeExpiresAt := now.Add(s.verificationTTL)

	user := &domain.User{
		ID:                        uuid.NewString(),
		Email:                     input.Email,
		FirstName:                 input.FirstName,
		LastName:                  input.LastName,
		PasswordHash:              hashedPassword,
		Phone:                     input.Phone,
		CompanyBIN:                input.CompanyBIN,
		CompanyName:               input.CompanyName,
		Industry:                  input.Industry,
		Status:                    domain.StatusPending,
		VerificationCode:          code,
		VerificationCodeExpiresAt: &codeExpiresAt,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.notifier.SendVerificationCode(ctx, user.Email, code, authconstant.DefaultLocale); err != nil {
		s.logger.WarnContext(ctx, "verification mail dispatch failed", "email", user.Email, "error", err)
	}

	return user, nil
}

// Login gates on the per-IP limiter and the per-account lockout before
// checking the password. The status check runs only after the password
// verified, so a suspended account does not leak its state to an attacker
// without valid credentials.
func (s *UserService) Login(ctx context.Context, input dto.LoginInput) (*dto.TokenResponse, error) {
	now := time.Now()

	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(ctx, input.IPAddress, now)
		if err != nil {
			// Limiter outage must not take logins down with it.
			s.logger.WarnContext(ctx, "rate limiter unavailable", "error", err)
		} else if !allowed {
			s.logger.InfoContext(ctx, "login rate limited", "ip", input.IPAddress, "retry_after", retryAfter)
			return nil, autherror.ErrTooManyLoginAttempts
		}
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.hasher.VerifyDummy(input.Password)
		return nil, autherror.ErrInvalidCredentials
	}

	if s.lockout.IsLocked(user, now) {
		s.logger.InfoContext(ctx, "login attempt on locked account", "user_id", user.ID, "locked_until", *user.LockedUntil)
		return nil, &autherror.AccountLockedError{Until: *user.LockedUntil}
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		attempts, lockedUntil, ferr := s.users.RecordLoginFailure(ctx, user.ID, s.lockout.MaxAttempts, s.lockout.LockDuration)
		if ferr != nil {
			s.logger.ErrorContext(ctx, "failed to record login failure", "user_id", user.ID, "error", ferr)
		} else if lockedUntil != nil {
			s.logger.InfoContext(ctx, "account locked", "user_id", user.ID, "attempts", attempts, "locked_until", *lockedUntil)
		}
		return nil, autherror.ErrInvalidCredentials
	}

	if !user.IsActive() {
		return nil, autherror.ErrAccountNotActive
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, input.IPAddress, now); err != nil {
		return nil, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil

	meta := domain.RequestMetadata{
		IPAddress:         input.IPAddress,
		UserAgent:         input.UserAgent,
		DeviceFingerprint: input.Fingerprint,
	}

	return s.mintSession(ctx, user, meta, now)
}

// VerifyEmailCode consumes the single-use code and issues the first token
// pair for the identity. Wrong and expired codes are indistinguishable to
// the caller.
func (s *UserService) VerifyEmailCode(ctx context.Context, input dto.VerifyCodeInput) (*dto.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherror.ErrInvalidVerificationCode
	}

	now := time.Now()

	ok, err := s.users.ConsumeVerificationCode(ctx, user.ID, input.Code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, autherror.ErrInvalidVerificationCode
	}

	user.Status = domain.StatusActive
	user.VerificationCode = ""
	user.VerificationCodeExpiresAt = nil

	meta := domain.RequestMetadata{
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	}

	return s.mintSession(ctx, user, meta, now)
}

// Refresh exchanges a refresh token for a new pair. The presented record is
// touched and then revoked (single-use rotation), and the owner's status is
// re-read on every call so an external suspension takes effect immediately.
func (s *UserService) Refresh(ctx context.Context, input dto.RefreshInput) (*dto.TokenResponse, error) {
	if _, err := s.tokenService.VerifyRefreshToken(input.RefreshToken); err != nil {
		s.logger.InfoContext(ctx, "refresh token signature rejected", "error", err)
		return nil, autherror.ErrInvalidCredentials
	}

	record, err := s.ledger.GetRefreshTokenByHash(ctx, HashRefreshToken(input.RefreshToken))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, autherror.ErrRefreshTokenNotFound
	}

	now := time.Now()

	if record.IsRevoked() {
		return nil, autherror.ErrRefreshTokenRevoked
	}
	if record.IsExpired(now) {
		return nil, autherror.ErrRefreshTokenExpired
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherror.ErrRefreshTokenNotFound
	}
	if !user.IsActive() {
		if _, rerr := s.ledger.RevokeRefreshToken(ctx, record.ID, authconstant.RevokeReasonUserInactive); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to revoke token of inactive user", "token_id", record.ID, "error", rerr)
		}
		return nil, autherror.ErrAccountNotActive
	}

	if err := s.ledger.TouchRefreshToken(ctx, record.ID, now); err != nil {
		return nil, fmt.Errorf("failed to touch refresh token: %w", err)
	}

	// The revocation is the claim on the token: of two concurrent
	// presentations only the one that flipped revoked_at may mint. The
	// loser stops here, so a rotated token can never be spent twice.
	won, err := s.ledger.RevokeRefreshToken(ctx, record.ID, authconstant.RevokeReasonRotated)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if !won {
		s.logger.InfoContext(ctx, "refresh token already consumed", "token_id", record.ID)
		return nil, autherror.ErrRefreshTokenRevoked
	}

	meta := domain.RequestMetadata{
		IPAddress:         input.IPAddress,
		UserAgent:         input.UserAgent,
		DeviceFingerprint: input.Fingerprint,
	}

	return s.mintSession(ctx, user, meta, now)
}

// Logout revokes the single session belonging to the presented token.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	record, err := s.ledger.GetRefreshTokenByHash(ctx, HashRefreshToken(refreshToken))
	if err != nil || record == nil {
		return autherror.ErrRefreshTokenNotFound
	}
	if record.IsRevoked() {
		return autherror.ErrRefreshTokenRevoked
	}

	won, err := s.ledger.RevokeRefreshToken(ctx, record.ID, authconstant.RevokeReasonLogout)
	if err != nil {
		return err
	}
	if !won {
		return autherror.ErrRefreshTokenRevoked
	}

	return nil
}

// ForceLogoutByUserID logs the user out everywhere.
func (s *UserService) ForceLogoutByUserID(ctx context.Context, userID string) error {
	return s.ledger.RevokeAllByUserID(ctx, userID, authconstant.RevokeReasonForceLogout)
}

func (s *UserService) mintSession(ctx context.Context, user *domain.User, meta domain.RequestMetadata, now time.Time) (*dto.TokenResponse, error) {
	pair, err := s.tokenService.Generate(user)
	if err != nil {
		return nil, err
	}

	record := &domain.RefreshToken{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		TokenHash:         HashRefreshToken(pair.RefreshToken),
		JTI:               pair.RefreshJTI,
		DeviceFingerprint: meta.DeviceFingerprint,
		IPAddress:         meta.IPAddress,
		UserAgent:         meta.UserAgent,
		ExpiresAt:         pair.RefreshExpiresAt,
		CreatedAt:         now,
	}
	if err := s.ledger.StoreRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &dto.TokenResponse{
		User:         dto.NewUserOutput(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(s.tokenService.GetAccessTokenExpiry().Seconds()),
		TokenType:    authconstant.DefaultTokenType,
	}, nil
}

func validateRegisterInput(input dto.RegisterInput) error {
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return &autherror.ValidationError{Field: "email", Reason: "malformed address"}
	}
	if len(input.Password) < minPasswordLength {
		return &autherror.ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	if strings.TrimSpace(input.FirstName) == "" {
		return &autherror.ValidationError{Field: "firstName", Reason: "required"}
	}
	if strings.TrimSpace(input.LastName) == "" {
		return &autherror.ValidationError{Field: "lastName", Reason: "required"}
	}
	return nil
}

func generateVerificationCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < authconstant.VerificationCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", authconstant.VerificationCodeLength, n), nil
}
