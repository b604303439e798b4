package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/handler/middleware"
	"github.com/tinouy/kegtracker-backend/pkg/logger"
	"github.com/tinouy/kegtracker-backend/pkg/validator"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Rule  string `json:"rule,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case domain.KindForbidden:
		return fiber.StatusForbidden
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindConflict:
		return fiber.StatusConflict
	case domain.KindTokenAlreadyUsed, domain.KindTokenExpired, domain.KindValidation:
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders errors returned by handlers and middleware.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code := "HTTP_ERROR"
			switch fe.Code {
			case fiber.StatusNotFound:
				code = string(domain.KindNotFound)
			case fiber.StatusTooManyRequests:
				code = "RATE_LIMITED"
			}
			return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message, Code: code})
		}

		kind := domain.KindOf(err)
		status := statusFor(kind)
		resp := ErrorResponse{Error: "internal server error", Code: string(kind)}

		var de *domain.Error
		if errors.As(err, &de) && kind != domain.KindInternal {
			resp.Error = de.Message
			resp.Rule = string(de.Rule)
		}

		if status >= fiber.StatusInternalServerError {
			logger.WithRequestID(c.UserContext(), log).Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		return c.Status(status).JSON(resp)
	}
}

// bind parses the request body into req and validates it.
func bind(c *fiber.Ctx, v *validator.Validator, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return domain.WrapError(domain.KindValidation, "invalid request body", err)
	}
	return v.Validate(req)
}

// bindQuery is bind for query strings.
func bindQuery(c *fiber.Ctx, v *validator.Validator, req interface{}) error {
	if err := c.QueryParser(req); err != nil {
		return domain.WrapError(domain.KindValidation, "invalid query parameters", err)
	}
	return v.Validate(req)
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, domain.NewError(domain.KindValidation, name+" must be a valid UUID")
	}
	return id, nil
}

func actor(c *fiber.Ctx) (domain.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return domain.Actor{}, domain.ErrNotAuthenticated
	}
	return a, nil
}
