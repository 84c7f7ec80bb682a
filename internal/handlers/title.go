package handlers

import (
	"strings"

	"github.com/ahmetk3436/duochat/internal/middleware"
	"github.com/ahmetk3436/duochat/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type TitleHandler struct {
	store     *services.ConversationStore
	generator *services.TitleGenerator
	hub       *services.EventHub
	validate  *validator.Validate
}

func NewTitleHandler(store *services.ConversationStore, generator *services.TitleGenerator, hub *services.EventHub) *TitleHandler {
	return &TitleHandler{
		store:     store,
		generator: generator,
		hub:       hub,
		validate:  newValidator(),
	}
}

type generateTitleRequest struct {
	ConversationID string           `json:"conversationId" validate:"required"`
	MessageContent string           `json:"messageContent"`
	Messages       []chatMessageDTO `json:"messages" validate:"omitempty,dive"`
}

// GenerateTitle derives a title for the conversation and stores it.
func (h *TitleHandler) GenerateTitle(c *fiber.Ctx) error {
	var req generateTitleRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.ConversationID) == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid conversation ID")
	}
	if err := h.validate.Struct(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid messages")
	}
	if strings.TrimSpace(req.MessageContent) == "" && len(req.Messages) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "Either messageContent or a messages array is required")
	}

	owner, err := h.store.OwnerOf(c.UserContext(), req.ConversationID)
	if err == nil && owner != middleware.Owner(c) {
		return errorJSON(c, fiber.StatusNotFound, "Conversation not found")
	}
	if err != nil {
		return respondError(c, err, "Failed to load conversation")
	}

	title, err := h.generator.GenerateForConversation(c.UserContext(), req.ConversationID, services.TitleInput{
		Message: req.MessageContent,
		History: toChatMessages(req.Messages),
	})
	if err != nil {
		return respondError(c, err, "Failed to generate title")
	}

	conv, err := h.store.RenameConversation(c.UserContext(), req.ConversationID, title)
	if err != nil {
		return respondError(c, err, "Failed to update database with new title")
	}

	h.hub.Publish(conv.Owner, services.Event{
		Type:           services.EventConversationRenamed,
		ConversationID: req.ConversationID,
		Title:          title,
	})
	return c.JSON(fiber.Map{"title": title})
}
