package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventsHandler streams photo events to the connected client
func EventsHandler(hub *EventHub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		// Generate a unique ID for this connection
		connID := uuid.New().String()

		hub.Register(connID, c)
		// fiber recycles c once the handler returns; Unregister waits for
		// the writer to finish first.
		defer func() {
			hub.Unregister(connID)
			_ = c.Close()
		}()

		hub.Send(connID, fiber.Map{
			"event":   "connected",
			"message": "Listening for photo changes",
		})

		// The feed is one way; reading only detects the disconnect.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					hub.log.Debug("websocket closed", zap.String("conn", connID), zap.Error(err))
				}
				return
			}
		}
	})
}

// WSUpgradeMiddleware rejects plain HTTP requests to the websocket route
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
