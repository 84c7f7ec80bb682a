package handlers

import (
	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/ahmetk3436/duochat/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type ChatHandler struct {
	proxy    *services.ChatProxy
	validate *validator.Validate
}

func NewChatHandler(proxy *services.ChatProxy) *ChatHandler {
	return &ChatHandler{proxy: proxy, validate: newValidator()}
}

type chatMessageDTO struct {
	Role    models.Role `json:"role" validate:"required,oneof=user assistant system"`
	Content string      `json:"content"`
}

type chatRequest struct {
	Messages []chatMessageDTO `json:"messages" validate:"required,min=1,dive"`
	Model    string           `json:"model"`
}

func toChatMessages(dtos []chatMessageDTO) []models.ChatMessage {
	out := make([]models.ChatMessage, len(dtos))
	for i, m := range dtos {
		out[i] = models.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (h *ChatHandler) ChatLocal(c *fiber.Ctx) error {
	return h.complete(c, models.BackendLocal)
}

// ChatRouted uses the configured routed model unless the request names one.
func (h *ChatHandler) ChatRouted(c *fiber.Ctx) error {
	return h.complete(c, models.BackendRouted)
}

func (h *ChatHandler) complete(c *fiber.Ctx, backend models.Backend) error {
	var req chatRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err, "Failed to process chat request")
	}

	content, err := h.proxy.Complete(c.UserContext(), toChatMessages(req.Messages), req.Model, backend)
	if err != nil {
		return respondError(c, err, "Failed to process chat request")
	}
	return c.JSON(fiber.Map{"content": content})
}

// LocalModels passes the local server's tag list through untouched.
func (h *ChatHandler) LocalModels(c *fiber.Ctx) error {
	raw, err := h.proxy.ListLocalModels(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to fetch local models")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}
