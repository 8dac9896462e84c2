package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const maxUserIDLength = 255

// Handler upgrades to a websocket streaming attendance events. The optional
// user_id query parameter narrows the stream to one user.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID := c.Query("user_id")
		if len(userID) > maxUserIDLength {
			_ = c.Close()
			return
		}

		client := &Client{
			hub:    hub,
			conn:   c,
			userID: userID,
			send:   make(chan []byte, 256),
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = c.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// UpgradeMiddleware rejects plain HTTP requests on the events route.
func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
