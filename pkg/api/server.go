package api

import (
	"context"

	"github.com/adjust/rmq/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/travigo/smartrail/pkg/api/routes"
	"github.com/travigo/smartrail/pkg/broadcast"
	"github.com/travigo/smartrail/pkg/consumer"
)

type HealthCheck func(ctx context.Context) error

type Server struct {
	Services      *routes.Services
	Hub           *broadcast.Hub
	Authenticator broadcast.Authenticator

	// QueueConnection is optional, it exposes the events queue overview
	QueueConnection rmq.Connection

	HealthChecks map[string]HealthCheck
}

func (s *Server) App() *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())

	webApp.Get("/health", s.health)
	broadcast.WebsocketRouter(webApp.Group("/ws"), s.Hub)

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)

	auth := EnsureValidToken(s.Authenticator)

	routes.TrackingRouter(group.Group("/tracking"), s.Services, auth)
	routes.PredictionsRouter(group.Group("/predictions"), s.Services, auth)

	if s.QueueConnection != nil {
		group.Get("/events/stats", auth, adaptor.HTTPHandler(consumer.NewStatsHandler(s.QueueConnection)))
	}

	return webApp
}

func (s *Server) health(c *fiber.Ctx) error {
	checks := fiber.Map{}
	healthy := true

	for name, check := range s.HealthChecks {
		if err := check(c.UserContext()); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "OK"
		}
	}

	if !healthy {
		c.SendStatus(fiber.StatusServiceUnavailable)
	}

	return c.JSON(fiber.Map{
		"healthy":        healthy,
		"checks":         checks,
		"connectedUsers": s.Hub.ConnectedUsers(),
	})
}
