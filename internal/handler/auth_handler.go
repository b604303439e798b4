package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/service"
	"github.com/tinouy/kegtracker-backend/pkg/validator"
)

// LoginRecorder is satisfied by *metrics.Metrics.
type LoginRecorder interface {
	LoginAttempt(ok bool)
}

type AuthHandler struct {
	authService *service.AuthService
	validator   *validator.Validator
	logins      LoginRecorder
}

func NewAuthHandler(authService *service.AuthService, validator *validator.Validator, logins LoginRecorder) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validator:   validator,
		logins:      logins,
	}
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req service.LoginRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	token, err := h.authService.Login(c.UserContext(), req)
	if h.logins != nil {
		h.logins.LoginAttempt(err == nil)
	}
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(token)
}

// ForgotPassword always answers with the same message
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req service.ForgotPasswordRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	if err := h.authService.ForgotPassword(c.UserContext(), req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "If the email exists, a password reset link has been sent",
	})
}

// ResetPassword consumes a reset token
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req service.ResetPasswordRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	if err := h.authService.ResetPassword(c.UserContext(), req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password updated successfully"})
}

// ValidateResetToken
// GET /api/auth/reset-password/validate?token=...
func (h *AuthHandler) ValidateResetToken(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return domain.NewError(domain.KindValidation, "token is required")
	}

	if err := h.authService.ValidateResetToken(c.UserContext(), token); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"valid": true})
}

// ChangePassword
// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req service.ChangePasswordRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	if err := h.authService.ChangePassword(c.UserContext(), a, req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password changed successfully"})
}
