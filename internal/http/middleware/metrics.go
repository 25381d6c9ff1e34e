package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	infraprom "github.com/talmeida/linktrace/internal/infra/prometheus"
)

// Metrics records request latency per route pattern and status code.
func Metrics(m *infraprom.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		m.RequestDuration.
			WithLabelValues(route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())

		return err
	}
}
