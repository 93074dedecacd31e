package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/tracking"
)

const (
	stationActivityWindow = time.Hour
	routeActivityWindow   = 30 * time.Minute
)

func TrackingRouter(router fiber.Router, services *Services, auth fiber.Handler) {
	router.Get("/live", getLiveTrains(services))
	router.Get("/stats", getTrackingStats(services))
	router.Get("/gtfs-rt/vehicle-positions", getVehiclePositions(services))
	router.Get("/train/number/:number", getTrainByNumber(services))
	router.Get("/train/:id", getTrainHistory(services))
	router.Get("/station/:id", getStationActivity(services))
	router.Get("/route/:id", getRouteActivity(services))

	router.Post("/update/:id", auth, postManualLocation(services))
	router.Post("/advance/:id", auth, postAdvanceTrain(services))
}

func getLiveTrains(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		liveTrains, err := services.Recorder.LiveSnapshot(c.UserContext())
		if err != nil {
			return sendError(c, err)
		}

		return sendReduced(c, "liveTrains", liveTrains, detailGroups(c)...)
	}
}

func getTrackingStats(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := services.Recorder.Stats(c.UserContext())
		if err != nil {
			return sendError(c, err)
		}

		return c.JSON(stats)
	}
}

func getTrainHistory(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		trainID, err := paramID(c, "id")
		if err != nil {
			return badRequest(c, err)
		}
		hours, err := queryInt(c, "hours", tracking.DefaultHistoryHours)
		if err != nil {
			return badRequest(c, err)
		}

		train, err := services.Trains.GetTrain(c.UserContext(), trainID)
		if err != nil {
			return sendError(c, err)
		}

		history, err := services.Recorder.RecentHistory(c.UserContext(), trainID, hours)
		if err != nil {
			return sendError(c, err)
		}

		return sendReduced(c, "trainHistory", struct {
			Train   *railway.Train            `json:"train" groups:"basic"`
			History []*railway.TrackingSample `json:"history" groups:"basic"`
		}{train, history}, detailGroups(c)...)
	}
}

func getTrainByNumber(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		train, err := services.Trains.GetTrainByNumber(c.UserContext(), c.Params("number"))
		if err != nil {
			return sendError(c, err)
		}

		currentLocation, err := services.Recorder.Store.GetCurrentLocation(c.UserContext(), train.ID)
		if err != nil {
			return sendError(c, err)
		}

		schedule, err := services.Trains.GetSchedule(c.UserContext(), train.ID)
		if err != nil {
			return sendError(c, err)
		}

		return c.JSON(fiber.Map{
			"train":           train,
			"currentLocation": currentLocation,
			"schedule":        schedule,
		})
	}
}

func getStationActivity(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stationID, err := paramID(c, "id")
		if err != nil {
			return badRequest(c, err)
		}

		station, err := services.Stations.GetStation(c.UserContext(), stationID)
		if err != nil {
			return sendError(c, err)
		}

		trains, err := services.Recorder.StationActivity(c.UserContext(), stationID, stationActivityWindow)
		if err != nil {
			return sendError(c, err)
		}

		return sendReduced(c, "stationActivity", struct {
			Station *railway.Station     `json:"station" groups:"basic"`
			Trains  []*railway.LiveTrain `json:"trains" groups:"basic"`
		}{station, trains}, detailGroups(c)...)
	}
}

func getRouteActivity(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		routeID, err := paramID(c, "id")
		if err != nil {
			return badRequest(c, err)
		}

		trains, err := services.Recorder.RouteActivity(c.UserContext(), routeID, routeActivityWindow)
		if err != nil {
			return sendError(c, err)
		}

		return sendReduced(c, "routeActivity", struct {
			RouteID int64                `json:"routeId" groups:"basic"`
			Trains  []*railway.LiveTrain `json:"trains" groups:"basic"`
		}{routeID, trains}, detailGroups(c)...)
	}
}

type manualLocationRequest struct {
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	Speed            float64    `json:"speed"`
	Heading          float64    `json:"heading"`
	StationID        int64      `json:"stationId"`
	EstimatedArrival *time.Time `json:"estimatedArrival"`
	Accuracy         float64    `json:"accuracy"`
}

func postManualLocation(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		trainID, err := paramID(c, "id")
		if err != nil {
			return badRequest(c, err)
		}

		var requestBody manualLocationRequest
		if err := c.BodyParser(&requestBody); err != nil {
			return badRequest(c, err)
		}

		if requestBody.Latitude < -90 || requestBody.Latitude > 90 || requestBody.Longitude < -180 || requestBody.Longitude > 180 {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Latitude and longitude must be valid co-ordinates",
			})
		}

		recorded, err := services.Scheduler.RecordManualSample(c.UserContext(), trainID, &railway.TrackingSample{
			Latitude:         requestBody.Latitude,
			Longitude:        requestBody.Longitude,
			Speed:            requestBody.Speed,
			Heading:          requestBody.Heading,
			StationID:        requestBody.StationID,
			EstimatedArrival: requestBody.EstimatedArrival,
			Accuracy:         requestBody.Accuracy,
		})
		if err != nil {
			return sendError(c, err)
		}

		return c.JSON(fiber.Map{
			"success":  true,
			"location": recorded,
		})
	}
}

func postAdvanceTrain(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		trainID, err := paramID(c, "id")
		if err != nil {
			return badRequest(c, err)
		}

		sample, err := services.Scheduler.AdvanceTrain(c.UserContext(), trainID)
		if err != nil {
			return sendError(c, err)
		}

		return c.JSON(fiber.Map{
			"success":  true,
			"location": sample,
		})
	}
}
