package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/pkg/logger"
)

// RecoveryMiddleware turns a panic into an internal error response.
func RecoveryMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithRequestID(c.UserContext(), log).Error("panic recovered",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = domain.WrapError(domain.KindInternal, "internal server error", fmt.Errorf("panic: %v", r))
			}
		}()

		return c.Next()
	}
}
