package routes

import (
	"github.com/ahmetk3436/duochat/internal/config"
	"github.com/ahmetk3436/duochat/internal/handlers"
	"github.com/ahmetk3436/duochat/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Auth         *handlers.AuthHandler
	Conversation *handlers.ConversationHandler
	Chat         *handlers.ChatHandler
	Title        *handlers.TitleHandler
	Events       *handlers.EventsHandler
	System       *handlers.SystemHandler
}

func Setup(app *fiber.App, cfg *config.Config, h Handlers) {
	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/api/health", h.System.Health)
	app.Get("/metrics", h.System.Metrics())

	// ─── Auth ────────────────────────────────────────────────────────────
	if cfg.AuthEnabled() {
		app.Post("/api/auth/login", h.Auth.Login)
		app.Post("/api/auth/refresh", h.Auth.Refresh)
	}

	// ─── Owner-scoped routes ─────────────────────────────────────────────
	api := app.Group("/api", middleware.ResolveOwner(cfg))

	if cfg.AuthEnabled() {
		api.Get("/auth/me", h.Auth.Me)
	}

	// Conversations
	api.Get("/conversations", h.Conversation.ListConversations)
	api.Post("/conversations", h.Conversation.CreateConversation)
	api.Get("/conversations/:id", h.Conversation.GetConversation)
	api.Patch("/conversations/:id", h.Conversation.RenameConversation)
	api.Delete("/conversations/:id", h.Conversation.DeleteConversation)
	api.Post("/conversations/:id/messages", h.Conversation.AppendMessage)

	// Titles
	api.Post("/generate-title", h.Title.GenerateTitle)

	// Chat proxy
	api.Post("/chat-local", h.Chat.ChatLocal)
	api.Post("/chat-routed", h.Chat.ChatRouted)
	api.Get("/local-models", h.Chat.LocalModels)

	// Keys
	api.Get("/check-key", h.System.CheckKey)

	// Events (WebSocket)
	api.Use("/events", h.Events.UpgradeCheck())
	api.Get("/events", h.Events.Stream())
}
