package handlers

import (
	"errors"
	"strings"

	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/ahmetk3436/duochat/internal/middleware"
	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/ahmetk3436/duochat/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
)

type ConversationHandler struct {
	store    *services.ConversationStore
	hub      *services.EventHub
	validate *validator.Validate
}

func NewConversationHandler(store *services.ConversationStore, hub *services.EventHub) *ConversationHandler {
	return &ConversationHandler{
		store:    store,
		hub:      hub,
		validate: newValidator(),
	}
}

type createConversationRequest struct {
	Title   string         `json:"title" validate:"max=200"`
	Model   string         `json:"model" validate:"max=200"`
	Backend models.Backend `json:"llm" validate:"omitempty,oneof=local routed"`
}

type renameConversationRequest struct {
	Title *string `json:"title" validate:"required"`
}

type appendMessageRequest struct {
	Role     models.Role    `json:"role" validate:"required,oneof=user assistant system"`
	Content  string         `json:"content"`
	Model    string         `json:"model"`
	Backend  models.Backend `json:"llm" validate:"omitempty,oneof=local routed"`
	Metadata datatypes.JSON `json:"metadata"`
}

// ensureOwned reports ErrNotFound for conversations of other owners so that
// their existence is not revealed.
func (h *ConversationHandler) ensureOwned(c *fiber.Ctx, id string) error {
	owner, err := h.store.OwnerOf(c.UserContext(), id)
	if err != nil {
		return err
	}
	if owner != middleware.Owner(c) {
		return errs.ErrNotFound
	}
	return nil
}

// ─── List / Search ─────────────────────────────────────────────────────

func (h *ConversationHandler) ListConversations(c *fiber.Ctx) error {
	owner := middleware.Owner(c)

	var (
		convs []models.Conversation
		err   error
	)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		convs, err = h.store.SearchConversations(c.UserContext(), owner, q)
	} else {
		convs, err = h.store.ListConversations(c.UserContext(), owner)
	}
	if err != nil {
		return respondError(c, err, "Failed to fetch conversations")
	}
	return c.JSON(convs)
}

// ─── Create ────────────────────────────────────────────────────────────

func (h *ConversationHandler) CreateConversation(c *fiber.Ctx) error {
	var req createConversationRequest
	if len(c.Body()) > 0 {
		if err := bind(c, h.validate, &req); err != nil {
			return respondError(c, err, "Failed to create conversation")
		}
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = models.DefaultTitle
	}
	if req.Backend == "" {
		req.Backend = models.BackendLocal
	}

	owner := middleware.Owner(c)
	conv, err := h.store.CreateConversation(c.UserContext(), owner, req.Title, req.Model, req.Backend)
	if err != nil {
		return respondError(c, err, "Failed to create conversation")
	}

	h.hub.Publish(owner, services.Event{
		Type:           services.EventConversationCreated,
		ConversationID: conv.ID.String(),
		Title:          conv.Title,
	})
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// ─── Get ───────────────────────────────────────────────────────────────

func (h *ConversationHandler) GetConversation(c *fiber.Ctx) error {
	detail, err := h.store.GetConversation(c.UserContext(), c.Params("id"))
	if err == nil && detail.Conversation.Owner != middleware.Owner(c) {
		err = errs.ErrNotFound
	}
	if err != nil {
		return respondError(c, err, "Failed to fetch conversation")
	}
	return c.JSON(detail)
}

// ─── Delete ────────────────────────────────────────────────────────────

func (h *ConversationHandler) DeleteConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.ensureOwned(c, id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return c.JSON(fiber.Map{"success": true})
		}
		return respondError(c, err, "Failed to delete conversation")
	}

	if err := h.store.DeleteConversation(c.UserContext(), id); err != nil {
		return respondError(c, err, "Failed to delete conversation")
	}

	h.hub.Publish(middleware.Owner(c), services.Event{
		Type:           services.EventConversationDeleted,
		ConversationID: id,
	})
	return c.JSON(fiber.Map{"success": true})
}

// ─── Rename ────────────────────────────────────────────────────────────

func (h *ConversationHandler) RenameConversation(c *fiber.Ctx) error {
	var req renameConversationRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err, "Failed to rename conversation")
	}
	title := strings.TrimSpace(*req.Title)
	if title == "" {
		return errorJSON(c, fiber.StatusBadRequest, "title must not be blank")
	}

	id := c.Params("id")
	if err := h.ensureOwned(c, id); err != nil {
		return respondError(c, err, "Failed to rename conversation")
	}
	conv, err := h.store.RenameConversation(c.UserContext(), id, title)
	if err != nil {
		return respondError(c, err, "Failed to rename conversation")
	}

	h.hub.Publish(conv.Owner, services.Event{
		Type:           services.EventConversationRenamed,
		ConversationID: id,
		Title:          conv.Title,
	})
	return c.JSON(conv)
}

// ─── Messages ──────────────────────────────────────────────────────────

func (h *ConversationHandler) AppendMessage(c *fiber.Ctx) error {
	var req appendMessageRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err, "Failed to save message")
	}

	id := c.Params("id")
	if err := h.ensureOwned(c, id); err != nil {
		return respondError(c, err, "Failed to save message")
	}

	saved, err := h.store.AppendMessage(c.UserContext(), id, &models.Message{
		Role:     req.Role,
		Content:  req.Content,
		Model:    req.Model,
		Backend:  req.Backend,
		Metadata: req.Metadata,
	})
	if err != nil {
		return respondError(c, err, "Failed to save message")
	}

	detail, err := h.store.GetConversation(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "Failed to save message")
	}

	h.hub.Publish(detail.Conversation.Owner, services.Event{
		Type:           services.EventMessageAppended,
		ConversationID: id,
		Message:        saved,
	})
	return c.JSON(detail)
}
