package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/nurdamiron/prometric-backend-v2-sub001/config"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/dto"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/service"
	autherror "github.com/nurdamiron/prometric-backend-v2-sub001/internal/errors"
	authconstant "github.com/nurdamiron/prometric-backend-v2-sub001/pkg/constant"
)

// Every login failure renders this exact body. Missing user, wrong password,
// locked account, inactive status and rate limiting must be
// indistinguishable to the caller.
const genericLoginError = "invalid credentials"

const genericRefreshError = "invalid refresh token"

// isLoginRejection separates authentication outcomes from infrastructure
// failures. Only the former render the generic 401; anything unclassified
// is a 500.
func isLoginRejection(err error) bool {
	var lockErr *autherror.AccountLockedError

	return errors.Is(err, autherror.ErrInvalidCredentials) ||
		errors.Is(err, autherror.ErrAccountNotActive) ||
		errors.Is(err, autherror.ErrTooManyLoginAttempts) ||
		errors.As(err, &lockErr)
}

func isRefreshRejection(err error) bool {
	return errors.Is(err, autherror.ErrInvalidCredentials) ||
		errors.Is(err, autherror.ErrAccountNotActive) ||
		errors.Is(err, autherror.ErrRefreshTokenNotFound) ||
		errors.Is(err, autherror.ErrRefreshTokenRevoked) ||
		errors.Is(err, autherror.ErrRefreshTokenExpired)
}

type AuthHandler struct {
	userService *service.UserService
	logger      *slog.Logger
	cfg         *config.Config
}

func NewAuthHandler(userService *service.UserService, logger *slog.Logger, cfg *config.Config) *AuthHandler {
	return &AuthHandler{userService: userService, logger: logger, cfg: cfg}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input dto.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	user, err := h.userService.Register(c.Context(), input)
	if err != nil {
		var vErr *autherror.ValidationError
		switch {
		case errors.As(err, &vErr):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": vErr.Error()})
		case errors.Is(err, autherror.ErrEmailAlreadyInUse):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		default:
			h.logger.Error("registration failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(dto.RegisterOutput{
		User:              dto.NewUserOutput(user),
		Message:           "verification code sent",
		NeedsVerification: true,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())
	input.Fingerprint = c.Get("X-Device-Fingerprint")

	tokens, err := h.userService.Login(c.Context(), input)
	if err != nil {
		if !isLoginRejection(err) {
			h.logger.Error("login failed", "email", input.Email, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		h.logger.Info("login rejected", "email", input.Email, "ip", input.IPAddress, "cause", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": genericLoginError})
	}

	if h.cfg.CookieTransport {
		h.setSessionCookies(c, tokens)
	}

	return c.Status(fiber.StatusOK).JSON(tokens)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var input dto.RefreshInput
	if err := c.BodyParser(&input); err != nil && c.Cookies(authconstant.RefreshTokenCookie) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if input.RefreshToken == "" {
		input.RefreshToken = c.Cookies(authconstant.RefreshTokenCookie)
	}

	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())
	input.Fingerprint = c.Get("X-Device-Fingerprint")

	tokens, err := h.userService.Refresh(c.Context(), input)
	if err != nil {
		if !isRefreshRejection(err) {
			h.logger.Error("refresh failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		h.logger.Info("refresh rejected", "ip", input.IPAddress, "cause", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": genericRefreshError})
	}

	if h.cfg.CookieTransport {
		h.setSessionCookies(c, tokens)
	}

	return c.Status(fiber.StatusOK).JSON(tokens)
}

func (h *AuthHandler) VerifyCode(c *fiber.Ctx) error {
	var input dto.VerifyCodeInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	tokens, err := h.userService.VerifyEmailCode(c.Context(), input)
	if err != nil {
		if errors.Is(err, autherror.ErrInvalidVerificationCode) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.VerifyCodeOutput{
				Success: false,
				Message: err.Error(),
			})
		}
		h.logger.Error("verification failed", "email", input.Email, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	if h.cfg.CookieTransport {
		h.setSessionCookies(c, tokens)
	}

	return c.Status(fiber.StatusOK).JSON(dto.VerifyCodeOutput{
		Success:      true,
		Message:      "email verified",
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var input dto.LogoutInput
	if err := c.BodyParser(&input); err != nil && c.Cookies(authconstant.RefreshTokenCookie) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if input.RefreshToken == "" {
		input.RefreshToken = c.Cookies(authconstant.RefreshTokenCookie)
	}

	if err := h.userService.Logout(c.Context(), input.RefreshToken); err != nil {
		if !isRefreshRejection(err) {
			h.logger.Error("logout failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		h.logger.Info("logout rejected", "cause", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": genericRefreshError})
	}

	if h.cfg.CookieTransport {
		h.clearSessionCookies(c)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) setSessionCookies(c *fiber.Ctx, tokens *dto.TokenResponse) {
	c.Cookie(&fiber.Cookie{
		Name:     authconstant.AccessTokenCookie,
		Value:    tokens.AccessToken,
		Path:     "/",
		MaxAge:   tokens.ExpiresIn,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	// Scoped to the auth group: both /auth/refresh and /auth/logout need
	// the cookie, nothing else does.
	c.Cookie(&fiber.Cookie{
		Name:     authconstant.RefreshTokenCookie,
		Value:    tokens.RefreshToken,
		Path:     "/auth",
		MaxAge:   h.cfg.RefreshExpiryMin * 60,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookies(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     authconstant.AccessTokenCookie,
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     authconstant.RefreshTokenCookie,
		Path:     "/auth",
		MaxAge:   -1,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
