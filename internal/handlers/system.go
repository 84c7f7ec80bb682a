package handlers

import (
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var startTime = time.Now()
var Version = "1.0.0"

type SystemHandler struct {
	db           *gorm.DB
	routedHasKey func() bool
}

func NewSystemHandler(db *gorm.DB, routedHasKey func() bool) *SystemHandler {
	return &SystemHandler{db: db, routedHasKey: routedHasKey}
}

func (h *SystemHandler) Health(c *fiber.Ctx) error {
	dbStatus := "ok"
	statusCode := fiber.StatusOK

	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		statusCode = fiber.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(c.UserContext()); err != nil {
		dbStatus = "unreachable: " + err.Error()
		statusCode = fiber.StatusServiceUnavailable
	}

	overall := "ok"
	if statusCode != fiber.StatusOK {
		overall = "degraded"
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":     overall,
		"service":    "duochat",
		"version":    Version,
		"time":       time.Now().UTC().Format(time.RFC3339),
		"uptime":     time.Since(startTime).String(),
		"db":         dbStatus,
		"routed_key": h.routedHasKey != nil && h.routedHasKey(),
	})
}

// CheckKey reports whether the named environment variable is set. The value
// itself never leaves the process.
func (h *SystemHandler) CheckKey(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Key name is required")
	}
	return c.JSON(fiber.Map{"hasKey": os.Getenv(key) != ""})
}

// Metrics serves the default prometheus registry.
func (h *SystemHandler) Metrics() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
