package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/service"
	"github.com/tinouy/kegtracker-backend/pkg/validator"
)

type BreweryHandler struct {
	breweryService *service.BreweryService
	validator      *validator.Validator
}

func NewBreweryHandler(breweryService *service.BreweryService, validator *validator.Validator) *BreweryHandler {
	return &BreweryHandler{
		breweryService: breweryService,
		validator:      validator,
	}
}

// List
// GET /api/breweries
func (h *BreweryHandler) List(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	breweries, err := h.breweryService.List(c.UserContext(), a)
	if err != nil {
		return err
	}
	return c.JSON(breweries)
}

// Create
// POST /api/breweries
func (h *BreweryHandler) Create(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req service.CreateBreweryRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	brewery, err := h.breweryService.Create(c.UserContext(), a, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(brewery)
}

// Activate
// PATCH /api/breweries/:id/activate
func (h *BreweryHandler) Activate(c *fiber.Ctx) error {
	return h.run(c, h.breweryService.Activate)
}

// Deactivate
// PATCH /api/breweries/:id/deactivate
func (h *BreweryHandler) Deactivate(c *fiber.Ctx) error {
	return h.run(c, h.breweryService.Deactivate)
}

// Delete
// DELETE /api/breweries/:id
func (h *BreweryHandler) Delete(c *fiber.Ctx) error {
	return h.run(c, h.breweryService.Delete)
}

func (h *BreweryHandler) run(c *fiber.Ctx, op func(ctx context.Context, actor domain.Actor, id uuid.UUID) error) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := op(c.UserContext(), a, id); err != nil {
		return err
	}
	return c.JSON(SuccessResponse{Success: true})
}
