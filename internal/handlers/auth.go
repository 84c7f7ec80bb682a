package handlers

import (
	"log/slog"
	"strings"

	"github.com/ahmetk3436/duochat/internal/config"
	"github.com/ahmetk3436/duochat/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler issues tokens for the single configured account. Its username
// becomes the owner of every conversation created with its tokens.
type AuthHandler struct {
	cfg          *config.Config
	passwordHash []byte
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	h := &AuthHandler{cfg: cfg}
	if cfg.AdminPassword == "" {
		slog.Warn("ADMIN_PASSWORD not set, login is disabled")
		return h
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("Failed to hash admin password", "error", err)
		return h
	}
	h.passwordHash = hash
	return h
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if len(h.passwordHash) == 0 || req.Username != h.cfg.AdminUsername {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)); err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	return h.issue(c, req.Username, h.cfg.AdminDisplayName)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	claims, err := middleware.ParseRefreshToken(req.RefreshToken, h.cfg.JWTSecret)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid or expired refresh token")
	}
	return h.issue(c, claims.Username, claims.DisplayName)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	displayName := middleware.DisplayName(c)
	return c.JSON(fiber.Map{
		"username":        middleware.Owner(c),
		"display_name":    displayName,
		"avatar_initials": buildInitials(displayName),
	})
}

func (h *AuthHandler) issue(c *fiber.Ctx, username, displayName string) error {
	tokens, err := middleware.GenerateTokens(username, displayName, h.cfg.JWTSecret)
	if err != nil {
		slog.Error("Failed to generate tokens", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to generate tokens")
	}
	return c.JSON(fiber.Map{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"user": fiber.Map{
			"username":        username,
			"display_name":    displayName,
			"avatar_initials": buildInitials(displayName),
		},
	})
}

// buildInitials turns "Ada Lovelace" into "AL", keeping at most two letters.
func buildInitials(name string) string {
	var initials []rune
	for _, part := range strings.Fields(name) {
		initials = append(initials, []rune(strings.ToUpper(part))[0])
		if len(initials) == 2 {
			break
		}
	}
	if len(initials) == 0 {
		return "?"
	}
	return string(initials)
}
