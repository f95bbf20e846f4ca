package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studymill/database"
)

// HandleCheckHealth reports process and database health.
func HandleCheckHealth(c *fiber.Ctx, store database.Storage) error {
	if err := store.HealthCheck(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
