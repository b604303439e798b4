package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/service"
	"github.com/tinouy/kegtracker-backend/pkg/validator"
)

type UserHandler struct {
	userService *service.UserService
	validator   *validator.Validator
}

func NewUserHandler(userService *service.UserService, validator *validator.Validator) *UserHandler {
	return &UserHandler{
		userService: userService,
		validator:   validator,
	}
}

// GetMe returns the authenticated user
// GET /api/users/me
func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	user, err := h.userService.Me(c.UserContext(), a)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// List
// GET /api/users?search=&brewery_id=&skip=&limit=
func (h *UserHandler) List(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var q service.ListUsersQuery
	if err := bindQuery(c, h.validator, &q); err != nil {
		return err
	}

	list, err := h.userService.List(c.UserContext(), a, q)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// Create
// POST /api/users
func (h *UserHandler) Create(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req service.CreateUserRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	user, err := h.userService.Create(c.UserContext(), a, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// Update applies a partial update
// PATCH /api/users/:id
func (h *UserHandler) Update(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.UpdateUserRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	user, err := h.userService.Update(c.UserContext(), a, id, req)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// Activate
// PATCH /api/users/:id/activate
func (h *UserHandler) Activate(c *fiber.Ctx) error {
	return h.setActive(c, h.userService.Activate)
}

// Deactivate
// PATCH /api/users/:id/deactivate
func (h *UserHandler) Deactivate(c *fiber.Ctx) error {
	return h.setActive(c, h.userService.Deactivate)
}

type userToggle func(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.User, error)

func (h *UserHandler) setActive(c *fiber.Ctx, toggle userToggle) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	user, err := toggle(c.UserContext(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// Delete
// DELETE /api/users/:id
func (h *UserHandler) Delete(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := h.userService.Delete(c.UserContext(), a, id); err != nil {
		return err
	}
	return c.JSON(SuccessResponse{Success: true})
}
