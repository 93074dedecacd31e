package broadcast

import (
	"context"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type websocketSender struct {
	conn *websocket.Conn
}

func (s *websocketSender) Send(payload []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *websocketSender) Close() error {
	return s.conn.Close()
}

func requestToken(c *fiber.Ctx) string {
	if token := c.Query("token"); token != "" {
		return token
	}

	authHeader := c.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return authHeader[7:]
	}

	return ""
}

// WebsocketRouter rejects unauthenticated upgrades before the handshake completes
func WebsocketRouter(router fiber.Router, hub *Hub) {
	router.Use("/", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := requestToken(c)
		if token == "" {
			c.SendStatus(fiber.StatusUnauthorized)
			return c.JSON(fiber.Map{
				"error": "Authentication error: No token provided",
			})
		}

		if _, err := hub.Authenticator.Authenticate(c.UserContext(), token); err != nil {
			c.SendStatus(fiber.StatusUnauthorized)
			return c.JSON(fiber.Map{
				"error": "Authentication error: Invalid token",
			})
		}

		c.Locals("broadcast_token", token)
		return c.Next()
	})

	router.Get("/", websocket.New(func(conn *websocket.Conn) {
		token, _ := conn.Locals("broadcast_token").(string)

		connection, err := hub.Connect(context.Background(), token, &websocketSender{conn: conn})
		if err != nil {
			log.Warn().Err(err).Msg("Rejected websocket connection")
			return
		}
		defer func() {
			hub.Disconnect(connection)
			<-connection.Done()
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}

			if err := hub.HandleClientMessage(connection, raw); err != nil {
				hub.sendTo(connection, EventError, ErrorMessage{Error: err.Error()})
			}
		}
	}))
}
