package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tinouy/kegtracker-backend/internal/service"
	"github.com/tinouy/kegtracker-backend/pkg/validator"
)

type KegHandler struct {
	kegService *service.KegService
	validator  *validator.Validator
}

func NewKegHandler(kegService *service.KegService, validator *validator.Validator) *KegHandler {
	return &KegHandler{
		kegService: kegService,
		validator:  validator,
	}
}

// List
// GET /api/kegs?skip=&limit=&brewery_id=&state=
func (h *KegHandler) List(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var q service.ListKegsQuery
	if err := bindQuery(c, h.validator, &q); err != nil {
		return err
	}

	kegs, err := h.kegService.List(c.UserContext(), a, q)
	if err != nil {
		return err
	}
	return c.JSON(kegs)
}

// Get
// GET /api/kegs/:id
func (h *KegHandler) Get(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	keg, err := h.kegService.Get(c.UserContext(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(keg)
}

// Create
// POST /api/kegs
func (h *KegHandler) Create(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req service.KegRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	keg, err := h.kegService.Create(c.UserContext(), a, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(keg)
}

// Update replaces the full keg record
// PUT, PATCH /api/kegs/:id
func (h *KegHandler) Update(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.KegRequest
	if err := bind(c, h.validator, &req); err != nil {
		return err
	}

	keg, err := h.kegService.Update(c.UserContext(), a, id, req)
	if err != nil {
		return err
	}
	return c.JSON(keg)
}

// History lists state changes, newest first
// GET /api/kegs/:id/history
func (h *KegHandler) History(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	entries, err := h.kegService.History(c.UserContext(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

// Delete
// DELETE /api/kegs/:id
func (h *KegHandler) Delete(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := h.kegService.Delete(c.UserContext(), a, id); err != nil {
		return err
	}
	return c.JSON(SuccessResponse{Success: true})
}
