package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nurdamiron/prometric-backend-v2-sub001/config"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/domain"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/dto"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/handler"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/service"
	autherror "github.com/nurdamiron/prometric-backend-v2-sub001/internal/errors"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/logging"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/mocks"
	authconstant "github.com/nurdamiron/prometric-backend-v2-sub001/pkg/constant"
)

type handlerFixture struct {
	users  *mocks.MockUserRepository
	ledger *mocks.MockRefreshTokenRepository
	codec  *mocks.MockTokenGenerator
	sender *mocks.MockSender
	app    *fiber.App
}

func newHandlerFixture(t *testing.T, ctrl *gomock.Controller, cfg *config.Config) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		users:  mocks.NewMockUserRepository(ctrl),
		ledger: mocks.NewMockRefreshTokenRepository(ctrl),
		codec:  mocks.NewMockTokenGenerator(ctrl),
		sender: mocks.NewMockSender(ctrl),
	}

	hasher, err := service.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	logger := logging.NewLogger("error", "test")
	userService := service.NewUserService(f.users, f.ledger, f.codec, hasher, f.sender, nil, logger, cfg)
	authHandler := handler.NewAuthHandler(userService, logger, cfg)

	f.app = fiber.New()
	handler.RegisterRoutes(f.app, authHandler)

	return f
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func hashedPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func handlerTokenPair() *service.TokenPair {
	now := time.Now()
	return &service.TokenPair{
		AccessToken:      "access-token",
		RefreshToken:     "refresh-token",
		AccessJTI:        "jti_access",
		RefreshJTI:       "jti_refresh",
		AccessExpiresAt:  now.Add(15 * time.Minute),
		RefreshExpiresAt: now.Add(7 * 24 * time.Hour),
	}
}

func testConfig() *config.Config {
	return &config.Config{
		LoginMaxAttempts:   5,
		LockoutMinutes:     30,
		VerificationTTLMin: 10,
		RefreshExpiryMin:   10080,
	}
}

func TestRegisterEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newHandlerFixture(t, ctrl, testConfig())

	t.Run("created", func(t *testing.T) {
		input := dto.RegisterInput{
			Email:     "alice@example.com",
			FirstName: "Alice",
			LastName:  "Smith",
			Password:  "Passw0rd!",
		}

		f.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		f.sender.EXPECT().SendVerificationCode(gomock.Any(), input.Email, gomock.Any(), gomock.Any()).Return(nil)

		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/register", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, true, body["needsVerification"])
		// No session material before email verification.
		assert.NotContains(t, body, "accessToken")
		assert.NotContains(t, body, "refreshToken")
	})

	t.Run("validation error", func(t *testing.T) {
		input := dto.RegisterInput{Email: "not-an-email", FirstName: "Alice", LastName: "Smith", Password: "Passw0rd!"}

		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/register", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("duplicate email", func(t *testing.T) {
		input := dto.RegisterInput{
			Email:     "taken@example.com",
			FirstName: "Alice",
			LastName:  "Smith",
			Password:  "Passw0rd!",
		}

		f.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(autherror.ErrEmailAlreadyInUse)

		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/register", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/auth/register", bytes.NewReader([]byte("{")))
		req.Header.Set("Content-Type", "application/json")

		resp, err := f.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestLoginEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig()
	cfg.CookieTransport = true
	f := newHandlerFixture(t, ctrl, cfg)

	activeUser := func(password string) *domain.User {
		return &domain.User{
			ID:           "user-123",
			Email:        "alice@example.com",
			PasswordHash: hashedPassword(t, password),
			Status:       domain.StatusActive,
		}
	}

	t.Run("success sets session cookies", func(t *testing.T) {
		user := activeUser("Passw0rd!")
		pair := handlerTokenPair()

		f.users.EXPECT().GetByEmail(gomock.Any(), user.Email).Return(user, nil)
		f.users.EXPECT().RecordLoginSuccess(gomock.Any(), user.ID, gomock.Any(), gomock.Any()).Return(nil)
		f.codec.EXPECT().Generate(user).Return(pair, nil)
		f.ledger.EXPECT().StoreRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
		f.codec.EXPECT().GetAccessTokenExpiry().Return(15 * time.Minute)

		input := dto.LoginInput{Email: user.Email, Password: "Passw0rd!"}
		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/login", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, pair.AccessToken, body["accessToken"])
		assert.Equal(t, authconstant.DefaultTokenType, body["tokenType"])

		cookies := map[string]*http.Cookie{}
		for _, c := range resp.Cookies() {
			cookies[c.Name] = c
		}
		access := cookies[authconstant.AccessTokenCookie]
		require.NotNil(t, access)
		assert.Equal(t, pair.AccessToken, access.Value)
		assert.True(t, access.HttpOnly)
		assert.Equal(t, "/", access.Path)
		assert.Equal(t, http.SameSiteLaxMode, access.SameSite)

		refresh := cookies[authconstant.RefreshTokenCookie]
		require.NotNil(t, refresh)
		assert.Equal(t, pair.RefreshToken, refresh.Value)
		assert.True(t, refresh.HttpOnly)
		// The /auth scope covers both the refresh and the logout endpoint.
		assert.Equal(t, "/auth", refresh.Path)
	})

	t.Run("wrong password renders generic body", func(t *testing.T) {
		user := activeUser("Passw0rd!")

		f.users.EXPECT().GetByEmail(gomock.Any(), user.Email).Return(user, nil)
		f.users.EXPECT().RecordLoginFailure(gomock.Any(), user.ID, gomock.Any(), gomock.Any()).Return(1, nil, nil)

		input := dto.LoginInput{Email: user.Email, Password: "wrong"}
		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/login", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid credentials", decodeBody(t, resp)["error"])
	})

	t.Run("unknown email renders identical body", func(t *testing.T) {
		f.users.EXPECT().GetByEmail(gomock.Any(), "ghost@example.com").Return(nil, nil)

		input := dto.LoginInput{Email: "ghost@example.com", Password: "whatever"}
		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/login", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid credentials", decodeBody(t, resp)["error"])
	})

	t.Run("storage failure is an internal error", func(t *testing.T) {
		f.users.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, assert.AnError)

		input := dto.LoginInput{Email: "alice@example.com", Password: "Passw0rd!"}
		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/login", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("locked account renders identical body", func(t *testing.T) {
		user := activeUser("Passw0rd!")
		until := time.Now().Add(20 * time.Minute)
		user.LockedUntil = &until

		f.users.EXPECT().GetByEmail(gomock.Any(), user.Email).Return(user, nil)

		input := dto.LoginInput{Email: user.Email, Password: "Passw0rd!"}
		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/login", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "invalid credentials", body["error"])
		// The unlock time must never reach the response.
		assert.Len(t, body, 1)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newHandlerFixture(t, ctrl, testConfig())

	t.Run("success rotates the pair", func(t *testing.T) {
		user := &domain.User{ID: "user-123", Email: "alice@example.com", Status: domain.StatusActive}
		pair := handlerTokenPair()
		record := &domain.RefreshToken{
			ID:        "rt-1",
			UserID:    user.ID,
			TokenHash: service.HashRefreshToken("old-refresh-token"),
			ExpiresAt: time.Now().Add(time.Hour),
		}

		f.codec.EXPECT().VerifyRefreshToken("old-refresh-token").Return(&service.RefreshClaims{}, nil)
		f.ledger.EXPECT().GetRefreshTokenByHash(gomock.Any(), record.TokenHash).Return(record, nil)
		f.users.EXPECT().GetByID(gomock.Any(), user.ID).Return(user, nil)
		f.ledger.EXPECT().TouchRefreshToken(gomock.Any(), record.ID, gomock.Any()).Return(nil)
		f.ledger.EXPECT().RevokeRefreshToken(gomock.Any(), record.ID, authconstant.RevokeReasonRotated).Return(true, nil)
		f.codec.EXPECT().Generate(user).Return(pair, nil)
		f.ledger.EXPECT().StoreRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
		f.codec.EXPECT().GetAccessTokenExpiry().Return(15 * time.Minute)

		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/refresh", dto.RefreshInput{RefreshToken: "old-refresh-token"}))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, pair.RefreshToken, body["refreshToken"])
	})

	t.Run("invalid token renders generic body", func(t *testing.T) {
		f.codec.EXPECT().VerifyRefreshToken("garbage").Return(nil, assert.AnError)

		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/refresh", dto.RefreshInput{RefreshToken: "garbage"}))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid refresh token", decodeBody(t, resp)["error"])
	})

	t.Run("storage failure is an internal error", func(t *testing.T) {
		f.codec.EXPECT().VerifyRefreshToken("a-token").Return(&service.RefreshClaims{}, nil)
		f.ledger.EXPECT().GetRefreshTokenByHash(gomock.Any(), gomock.Any()).Return(nil, assert.AnError)

		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/refresh", dto.RefreshInput{RefreshToken: "a-token"}))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("falls back to the refresh cookie", func(t *testing.T) {
		f.codec.EXPECT().VerifyRefreshToken("cookie-token").Return(nil, assert.AnError)

		req := httptest.NewRequest("POST", "/auth/refresh", bytes.NewReader(nil))
		req.AddCookie(&http.Cookie{Name: authconstant.RefreshTokenCookie, Value: "cookie-token"})

		resp, err := f.app.Test(req)
		require.NoError(t, err)
		// Reaching token verification proves the cookie value was picked up.
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestVerifyCodeEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newHandlerFixture(t, ctrl, testConfig())

	t.Run("success issues first token pair", func(t *testing.T) {
		user := &domain.User{ID: "user-123", Email: "alice@example.com", Status: domain.StatusPending}
		pair := handlerTokenPair()

		f.users.EXPECT().GetByEmail(gomock.Any(), user.Email).Return(user, nil)
		f.users.EXPECT().ConsumeVerificationCode(gomock.Any(), user.ID, "123456", gomock.Any()).Return(true, nil)
		f.codec.EXPECT().Generate(user).Return(pair, nil)
		f.ledger.EXPECT().StoreRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
		f.codec.EXPECT().GetAccessTokenExpiry().Return(15 * time.Minute)

		input := dto.VerifyCodeInput{Email: user.Email, Code: "123456"}
		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/verify-code", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, pair.AccessToken, body["accessToken"])
		assert.Equal(t, pair.RefreshToken, body["refreshToken"])
	})

	t.Run("wrong code", func(t *testing.T) {
		user := &domain.User{ID: "user-123", Email: "alice@example.com", Status: domain.StatusPending}

		f.users.EXPECT().GetByEmail(gomock.Any(), user.Email).Return(user, nil)
		f.users.EXPECT().ConsumeVerificationCode(gomock.Any(), user.ID, "000000", gomock.Any()).Return(false, nil)

		input := dto.VerifyCodeInput{Email: user.Email, Code: "000000"}
		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/verify-code", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, decodeBody(t, resp)["success"])
	})

	t.Run("unknown email", func(t *testing.T) {
		f.users.EXPECT().GetByEmail(gomock.Any(), "ghost@example.com").Return(nil, nil)

		input := dto.VerifyCodeInput{Email: "ghost@example.com", Code: "123456"}
		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/verify-code", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig()
	cfg.CookieTransport = true
	f := newHandlerFixture(t, ctrl, cfg)

	t.Run("success clears cookies", func(t *testing.T) {
		record := &domain.RefreshToken{ID: "rt-1", TokenHash: service.HashRefreshToken("refresh-token")}

		f.ledger.EXPECT().GetRefreshTokenByHash(gomock.Any(), record.TokenHash).Return(record, nil)
		f.ledger.EXPECT().RevokeRefreshToken(gomock.Any(), record.ID, authconstant.RevokeReasonLogout).Return(true, nil)

		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/logout", dto.LogoutInput{RefreshToken: "refresh-token"}))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		for _, c := range resp.Cookies() {
			if c.Name == authconstant.AccessTokenCookie || c.Name == authconstant.RefreshTokenCookie {
				assert.Less(t, c.MaxAge, 0)
			}
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		f.ledger.EXPECT().GetRefreshTokenByHash(gomock.Any(), gomock.Any()).Return(nil, nil)

		resp, err := f.app.Test(jsonRequest(t, "POST", "/auth/logout", dto.LogoutInput{RefreshToken: "unknown"}))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("falls back to the refresh cookie", func(t *testing.T) {
		record := &domain.RefreshToken{ID: "rt-2", TokenHash: service.HashRefreshToken("cookie-token")}

		f.ledger.EXPECT().GetRefreshTokenByHash(gomock.Any(), record.TokenHash).Return(record, nil)
		f.ledger.EXPECT().RevokeRefreshToken(gomock.Any(), record.ID, authconstant.RevokeReasonLogout).Return(true, nil)

		req := httptest.NewRequest("POST", "/auth/logout", bytes.NewReader(nil))
		req.AddCookie(&http.Cookie{Name: authconstant.RefreshTokenCookie, Value: "cookie-token"})

		resp, err := f.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
