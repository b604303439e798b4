package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestObserver is satisfied by *metrics.Metrics.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// MetricsMiddleware records every request against its route pattern. It
// expects errors to be rendered further down the chain, by LoggerMiddleware.
func MetricsMiddleware(obs RequestObserver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		obs.ObserveRequest(c.Route().Path, c.Method(), status, time.Since(start))
		return err
	}
}
