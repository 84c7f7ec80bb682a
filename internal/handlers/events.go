package handlers

import (
	"log/slog"
	"time"

	"github.com/ahmetk3436/duochat/internal/middleware"
	"github.com/ahmetk3436/duochat/internal/services"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	eventsPingInterval = 30 * time.Second
	eventsWriteTimeout = 10 * time.Second
)

// EventsHandler streams conversation changes of the requesting owner over a
// websocket. The stream is one-way; inbound frames are only read to notice
// the peer going away.
type EventsHandler struct {
	hub *services.EventHub
}

func NewEventsHandler(hub *services.EventHub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// UpgradeCheck is middleware that checks if the request is a websocket upgrade
func (h *EventsHandler) UpgradeCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *EventsHandler) Stream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		owner, _ := c.Locals(middleware.OwnerKey).(string)
		sub := h.hub.Subscribe(owner)
		defer sub.Close()

		slog.Info("Event stream opened", "owner", owner)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(eventsPingInterval)
		defer ping.Stop()

		for {
			select {
			case <-done:
				slog.Info("Event stream closed", "owner", owner)
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				_ = c.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
				if err := c.WriteJSON(ev); err != nil {
					slog.Warn("Event stream write failed", "owner", owner, "error", err)
					return
				}
			case <-ping.C:
				if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteTimeout)); err != nil {
					return
				}
			}
		}
	})
}
