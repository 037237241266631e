package stream

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// TokenVerifier resolves an access token to an account id.
type TokenVerifier func(token string) (int64, error)

// RegisterRoutes mounts /ws. The caller authenticates with ?token= and is
// subscribed to its own session topic. current, when set, provides the
// first message sent after connecting.
func RegisterRoutes(r fiber.Router, hub *Hub, verify TokenVerifier, current func(accountID int64) any) {
	r.Get("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		accountID, err := verify(c.Query("token"))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals("account_id", accountID)
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		accountID, _ := c.Locals("account_id").(int64)
		client := hub.Register(Topic(accountID))
		defer hub.Unregister(client)

		if current != nil {
			if err := c.WriteJSON(current(accountID)); err != nil {
				log.Printf("stream: initial state for account %d: %v", accountID, err)
				return
			}
		}

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
