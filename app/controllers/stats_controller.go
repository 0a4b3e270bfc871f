package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/payflowhq/payflow/internal/pkg/metrics/counter"
)

// HandleStats returns the per-gateway payment counters.
func HandleStats(c *fiber.Ctx) error {
	snapshot, err := counter.Snapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.JSON(fiber.Map{"success": true, "counters": snapshot})
}
