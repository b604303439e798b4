package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/service"
	"github.com/tinouy/kegtracker-backend/pkg/validator"
)

type InviteHandler struct {
	inviteService *service.InviteService
	validator     *validator.Validator
}

func NewInviteHandler(inviteService *service.InviteService, validator *validator.Validator) *InviteHandler {
	return &InviteHandler{
		inviteService: inviteService,
		validator:     validator,
	}
}

// Generate
// POST /api/invite/generate
func (h *InviteHandler) Generate(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req service.InviteRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	resp, err := h.inviteService.Generate(c.UserContext(), a, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Validate
// GET /api/invite/validate?token=...
func (h *InviteHandler) Validate(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return domain.NewError(domain.KindValidation, "token is required")
	}

	details, err := h.inviteService.Validate(c.UserContext(), token)
	if err != nil {
		return err
	}
	return c.JSON(details)
}

// Register
// POST /api/invite/register
func (h *InviteHandler) Register(c *fiber.Ctx) error {
	var req service.RegisterRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	user, err := h.inviteService.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}
