package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahmetk3436/duochat/internal/config"
	"github.com/ahmetk3436/duochat/internal/database"
	"github.com/ahmetk3436/duochat/internal/handlers"
	"github.com/ahmetk3436/duochat/internal/routes"
	"github.com/ahmetk3436/duochat/internal/services"
)

func main() {
	// ─── Config ──────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// JSON structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting duochat", "version", handlers.Version, "db_driver", cfg.DBDriver, "auth", cfg.AuthEnabled())

	// ─── Database ────────────────────────────────────────────────────────
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("Database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	// ─── Services ───────────────────────────────────────────────────────
	store := services.NewConversationStore(db)
	hub := services.NewEventHub()

	local := services.NewLocalBackend(cfg.LocalBaseURL, cfg.LocalTimeout)
	routed := services.NewRoutedBackend(services.RoutedOptions{
		BaseURL:      cfg.RoutedBaseURL,
		APIKey:       cfg.RoutedAPIKey,
		DefaultModel: cfg.RoutedModel,
		Timeout:      cfg.RoutedTimeout,
		Referer:      cfg.RoutedReferer,
		AppTitle:     cfg.RoutedAppTitle,
	})
	if !routed.HasKey() {
		slog.Warn("Routed backend key not set, routed completions will fail", "env", cfg.RoutedKeyEnv)
	}
	proxy := services.NewChatProxy(local, routed)
	titles := services.NewTitleGenerator(local, cfg.TitleModel, cfg.TitleTimeout)

	// ─── Fiber App ──────────────────────────────────────────────────────
	app := routes.NewApp(cfg, routes.Handlers{
		Auth:         handlers.NewAuthHandler(cfg),
		Conversation: handlers.NewConversationHandler(store, hub),
		Chat:         handlers.NewChatHandler(proxy),
		Title:        handlers.NewTitleHandler(store, titles, hub),
		Events:       handlers.NewEventsHandler(hub),
		System:       handlers.NewSystemHandler(db, proxy.RoutedKeyConfigured),
	})

	// ─── Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down duochat...")

		if err := app.Shutdown(); err != nil {
			slog.Error("Fiber shutdown error", "error", err)
		}

		if err := database.Close(db); err != nil {
			slog.Error("Database close error", "error", err)
		}
	}()

	// ─── Start ──────────────────────────────────────────────────────────
	listenAddr := ":" + cfg.Port
	slog.Info("duochat listening", "addr", listenAddr)

	if err := app.Listen(listenAddr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
