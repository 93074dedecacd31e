package routes

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/rs/zerolog/log"
	"github.com/travigo/smartrail/pkg/prediction"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/scheduler"
	"github.com/travigo/smartrail/pkg/store"
	"github.com/travigo/smartrail/pkg/tracking"
)

// Services are the components the routes read from and trigger
type Services struct {
	Trains    store.TrainStore
	Stations  store.StationStore
	Recorder  *tracking.Recorder
	Engine    *prediction.Engine
	Scheduler *scheduler.Scheduler
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("Parameter %s should be an integer", name)
	}

	return id, nil
}

func queryInt(c *fiber.Ctx, name string, fallback int) (int, error) {
	value := c.Query(name)
	if value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("Parameter %s should be an integer", name)
	}

	return parsed, nil
}

func badRequest(c *fiber.Ctx, err error) error {
	c.SendStatus(fiber.StatusBadRequest)
	return c.JSON(fiber.Map{
		"error": err.Error(),
	})
}

func sendError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal error"

	switch {
	case errors.Is(err, railway.ErrNotFound):
		status = fiber.StatusNotFound
		message = err.Error()
	case errors.Is(err, railway.ErrAuthentication):
		status = fiber.StatusUnauthorized
		message = "Invalid auth token"
	case errors.Is(err, railway.ErrExternalServiceUnavailable):
		status = fiber.StatusServiceUnavailable
		message = "Upstream service unavailable"
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}

	c.SendStatus(status)
	return c.JSON(fiber.Map{
		"error": message,
	})
}

func sendReduced(c *fiber.Ctx, name string, value interface{}, groups ...string) error {
	reduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: groups,
	}, value)

	if err != nil {
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": "Sherrif could not reduce " + name,
		})
	}

	return c.JSON(reduced)
}

// detailGroups lets clients opt into the detailed view with ?detailed=true
func detailGroups(c *fiber.Ctx) []string {
	if c.QueryBool("detailed") {
		return []string{"basic", "detailed"}
	}

	return []string{"basic"}
}
