package routes

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/smartrail/pkg/prediction"
)

func PredictionsRouter(router fiber.Router, services *Services, auth fiber.Handler) {
	router.Get("/train/:trainId/station/:stationId", getPrediction(services))
	router.Get("/train/:id", getTrainPredictions(services))
	router.Get("/station/:id", getStationPredictions(services))
	router.Get("/accuracy/metrics", getAccuracyMetrics(services))
	router.Get("/delays/stats", getDelayStats(services))

	router.Put("/:id/actual", auth, putActualArrival(services))
	router.Post("/update/train/:id", auth, postRefreshTrain(services))
}

func getPrediction(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		trainID, err := paramID(c, "trainId")
		if err != nil {
			return badRequest(c, err)
		}
		stationID, err := paramID(c, "stationId")
		if err != nil {
			return badRequest(c, err)
		}

		prediction, err := services.Engine.Predict(c.UserContext(), trainID, stationID)
		if err != nil {
			return sendError(c, err)
		}

		return sendReduced(c, "prediction", prediction, detailGroups(c)...)
	}
}

func getTrainPredictions(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		trainID, err := paramID(c, "id")
		if err != nil {
			return badRequest(c, err)
		}

		predictions, err := services.Engine.TrainPredictions(c.UserContext(), trainID)
		if err != nil {
			return sendError(c, err)
		}

		return sendReduced(c, "predictions", predictions, detailGroups(c)...)
	}
}

func getStationPredictions(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stationID, err := paramID(c, "id")
		if err != nil {
			return badRequest(c, err)
		}
		hours, err := queryInt(c, "hours", prediction.DefaultStationHours)
		if err != nil {
			return badRequest(c, err)
		}

		if _, err := services.Stations.GetStation(c.UserContext(), stationID); err != nil {
			return sendError(c, err)
		}

		predictions, err := services.Engine.StationUpcoming(c.UserContext(), stationID, hours)
		if err != nil {
			return sendError(c, err)
		}

		return sendReduced(c, "predictions", predictions, detailGroups(c)...)
	}
}

func getAccuracyMetrics(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		days, err := queryInt(c, "days", prediction.DefaultMetricDays)
		if err != nil {
			return badRequest(c, err)
		}

		accuracy, err := services.Engine.Accuracy(c.UserContext(), days)
		if err != nil {
			return sendError(c, err)
		}

		return c.JSON(accuracy)
	}
}

func getDelayStats(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		days, err := queryInt(c, "days", prediction.DefaultMetricDays)
		if err != nil {
			return badRequest(c, err)
		}

		stats, err := services.Engine.DelayStats(c.UserContext(), days)
		if err != nil {
			return sendError(c, err)
		}

		return c.JSON(stats)
	}
}

func putActualArrival(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var requestBody struct {
			ActualArrivalTime *time.Time `json:"actualArrivalTime"`
		}
		if err := c.BodyParser(&requestBody); err != nil {
			return badRequest(c, err)
		}
		if requestBody.ActualArrivalTime == nil {
			return badRequest(c, errors.New("actualArrivalTime is required"))
		}

		updated, err := services.Engine.RecordActualArrival(c.UserContext(), c.Params("id"), *requestBody.ActualArrivalTime)
		if err != nil {
			return sendError(c, err)
		}

		return c.JSON(fiber.Map{
			"success":    true,
			"prediction": updated,
		})
	}
}

func postRefreshTrain(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		trainID, err := paramID(c, "id")
		if err != nil {
			return badRequest(c, err)
		}

		predictions, err := services.Scheduler.RefreshPredictions(c.UserContext(), trainID)
		if err != nil {
			return sendError(c, err)
		}

		return c.JSON(fiber.Map{
			"success":     true,
			"predictions": predictions,
		})
	}
}
