package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/smartrail/pkg/api/routes"
	"github.com/travigo/smartrail/pkg/broadcast"
	"github.com/travigo/smartrail/pkg/prediction"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/scheduler"
	"github.com/travigo/smartrail/pkg/store"
	"github.com/travigo/smartrail/pkg/tracking"
	"github.com/travigo/smartrail/pkg/util"
	"google.golang.org/protobuf/proto"
)

const testSecret = "api-test-secret"

var testNow = time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return testNow
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	memoryStore := store.NewMemoryStore()
	memoryStore.SetClock(fixedClock)
	memoryStore.Seed(&store.Seed{
		Trains: []railway.Train{
			{ID: 1001, Number: "1001", Name: "Udarata Menike", Status: railway.TrainStatusRunning, RouteID: 1},
		},
		Stations: []railway.Station{
			{ID: 11, Name: "Colombo Fort", Location: railway.Location{Latitude: 6.9344, Longitude: 79.8428}},
			{ID: 12, Name: "Kandy", Location: railway.Location{Latitude: 7.2906, Longitude: 80.6337}},
		},
		Routes: []railway.ScheduleEntry{
			{RouteID: 1, StationID: 11, StationName: "Colombo Fort", Sequence: 1, ArrivalTime: "06:00:00", DepartureTime: "06:05:00"},
			{RouteID: 1, StationID: 12, StationName: "Kandy", Sequence: 2, ArrivalTime: "08:30:00", DepartureTime: "08:35:00"},
		},
	})

	authenticator, err := broadcast.NewJWTAuthenticator(testSecret, "smartrail", []string{"smartrail-clients"})
	require.NoError(t, err)

	hub := broadcast.NewHub(authenticator, 8)
	hub.Now = fixedClock

	recorder := tracking.NewRecorder(memoryStore, 5*time.Minute)
	recorder.Now = fixedClock

	simulator := &tracking.Simulator{
		Trains: memoryStore,
		Config: tracking.SimulatorConfig{
			CentroidLatitude:     7.8731,
			CentroidLongitude:    80.7718,
			JitterDegrees:        0.005,
			ArrivalPadMaxMinutes: 15,
		},
		Random:   util.NewRandom(1),
		Now:      fixedClock,
		Location: time.UTC,
	}

	tracker := &tracking.Tracker{
		Source:      simulator,
		Recorder:    recorder,
		Broadcaster: hub,
		Trains:      memoryStore,
		Detector: &tracking.DelayDetector{
			Trains:      memoryStore,
			Broadcaster: hub,
			Thresholds:  tracking.DelayThresholds{EventMinutes: 5, EscalationMinutes: 15},
			Random:      util.NewRandom(2),
			Location:    time.UTC,
			Now:         fixedClock,
		},
	}

	engine := &prediction.Engine{
		Store:    memoryStore,
		ML:       prediction.DisabledMLClient{},
		Weather:  prediction.RandomWeather{Random: util.NewRandom(3)},
		Fallback: prediction.FallbackConfig{PadMaxMinutes: 10, Confidence: 0.6},
		Random:   util.NewRandom(4),
		Now:      fixedClock,
		Location: time.UTC,
	}

	server := &Server{
		Services: &routes.Services{
			Trains:   memoryStore,
			Stations: memoryStore,
			Recorder: recorder,
			Engine:   engine,
			Scheduler: &scheduler.Scheduler{
				Trains:      memoryStore,
				Tracker:     tracker,
				Engine:      engine,
				Broadcaster: hub,
				Retention:   memoryStore,
				Config:      scheduler.Config{Workers: 2},
				Now:         fixedClock,
			},
		},
		Hub:           hub,
		Authenticator: authenticator,
		HealthChecks: map[string]HealthCheck{
			"store": func(ctx context.Context) error { return nil },
		},
	}

	return server.App()
}

func bearerToken(t *testing.T) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "smartrail",
		Audience:  jwt.ClaimStrings{"smartrail-clients"},
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	return "Bearer " + token
}

func doRequest(t *testing.T, app *fiber.App, method string, target string, body string, authorization string) (*http.Response, []byte) {
	t.Helper()

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	request := httptest.NewRequest(method, target, bodyReader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		request.Header.Set("Authorization", authorization)
	}

	response, err := app.Test(request, -1)
	require.NoError(t, err)

	responseBody, err := io.ReadAll(response.Body)
	require.NoError(t, err)

	return response, responseBody
}

func decode(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))

	return decoded
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	response, body := doRequest(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, true, decode(t, body)["healthy"])
	assert.NotEmpty(t, response.Header.Get("X-Request-ID"))
}

func TestUnhealthyCheck(t *testing.T) {
	server := &Server{
		Hub: broadcast.NewHub(nil, 1),
		HealthChecks: map[string]HealthCheck{
			"mongodb": func(ctx context.Context) error { return errors.New("connection refused") },
		},
	}

	response, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode)
}

func TestTrainHistoryErrors(t *testing.T) {
	app := newTestApp(t)

	response, _ := doRequest(t, app, http.MethodGet, "/core/tracking/train/404", "", "")
	assert.Equal(t, http.StatusNotFound, response.StatusCode)

	response, _ = doRequest(t, app, http.MethodGet, "/core/tracking/train/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, _ = doRequest(t, app, http.MethodGet, "/core/tracking/train/1001?hours=many", "", "")
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestManualUpdateRequiresAuth(t *testing.T) {
	app := newTestApp(t)
	body := `{"latitude":7.2,"longitude":80.6,"speed":50,"heading":90}`

	response, _ := doRequest(t, app, http.MethodPost, "/core/tracking/update/1001", body, "")
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, _ = doRequest(t, app, http.MethodPost, "/core/tracking/update/1001", body, "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, _ = doRequest(t, app, http.MethodPost, "/core/tracking/update/1001", `{"latitude":120,"longitude":0}`, bearerToken(t))
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, responseBody := doRequest(t, app, http.MethodPost, "/core/tracking/update/1001", body, bearerToken(t))
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, true, decode(t, responseBody)["success"])

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/tracking/train/1001", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	history := decode(t, responseBody)["history"].([]interface{})
	assert.Len(t, history, 1)

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/tracking/live", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)

	var live []map[string]interface{}
	require.NoError(t, json.Unmarshal(responseBody, &live))
	require.Len(t, live, 1)
	assert.Equal(t, "1001", live[0]["trainNumber"])

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/tracking/train/number/1001", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.NotNil(t, decode(t, responseBody)["currentLocation"])
}

func TestAdvanceTrain(t *testing.T) {
	app := newTestApp(t)

	response, responseBody := doRequest(t, app, http.MethodPost, "/core/tracking/advance/1001", "", bearerToken(t))
	require.Equal(t, http.StatusOK, response.StatusCode)

	location := decode(t, responseBody)["location"].(map[string]interface{})
	assert.EqualValues(t, 12, location["stationId"])

	response, _ = doRequest(t, app, http.MethodPost, "/core/tracking/advance/404", "", bearerToken(t))
	assert.Equal(t, http.StatusNotFound, response.StatusCode)

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/tracking/stats", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.EqualValues(t, 1, decode(t, responseBody)["activeTrains"])
}

func TestRouteActivity(t *testing.T) {
	app := newTestApp(t)

	response, responseBody := doRequest(t, app, http.MethodGet, "/core/tracking/route/1", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Empty(t, decode(t, responseBody)["trains"])

	response, _ = doRequest(t, app, http.MethodPost, "/core/tracking/advance/1001", "", bearerToken(t))
	require.Equal(t, http.StatusOK, response.StatusCode)

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/tracking/route/1", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)

	activity := decode(t, responseBody)
	assert.EqualValues(t, 1, activity["routeId"])
	trains := activity["trains"].([]interface{})
	require.Len(t, trains, 1)
	assert.Equal(t, "1001", trains[0].(map[string]interface{})["trainNumber"])

	response, _ = doRequest(t, app, http.MethodGet, "/core/tracking/route/404", "", "")
	assert.Equal(t, http.StatusNotFound, response.StatusCode)

	response, _ = doRequest(t, app, http.MethodGet, "/core/tracking/route/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestVehiclePositionsFeed(t *testing.T) {
	app := newTestApp(t)

	response, _ := doRequest(t, app, http.MethodPost, "/core/tracking/advance/1001", "", bearerToken(t))
	require.Equal(t, http.StatusOK, response.StatusCode)

	response, responseBody := doRequest(t, app, http.MethodGet, "/core/tracking/gtfs-rt/vehicle-positions", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "application/x-protobuf", response.Header.Get("Content-Type"))

	var feed gtfsrt.FeedMessage
	require.NoError(t, proto.Unmarshal(responseBody, &feed))
	require.Len(t, feed.Entity, 1)
	assert.Equal(t, "1001", feed.Entity[0].GetVehicle().GetVehicle().GetId())
	assert.Equal(t, "12", feed.Entity[0].GetVehicle().GetStopId())
	assert.Equal(t, uint64(testNow.Unix()), feed.GetHeader().GetTimestamp())

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/tracking/gtfs-rt/vehicle-positions?format=text", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, string(responseBody), "gtfs_realtime_version")
}

func TestPredictionRoutes(t *testing.T) {
	app := newTestApp(t)

	response, responseBody := doRequest(t, app, http.MethodGet, "/core/predictions/train/1001/station/12", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)

	prediction := decode(t, responseBody)
	assert.Equal(t, "schedule_based", prediction["predictionMethod"])
	assert.Equal(t, 0.6, prediction["confidenceScore"])
	assert.Nil(t, prediction["factors"])

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/predictions/train/1001/station/12?detailed=true", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, []interface{}{"schedule_data"}, decode(t, responseBody)["factors"])

	response, _ = doRequest(t, app, http.MethodGet, "/core/predictions/train/1001/station/99", "", "")
	assert.Equal(t, http.StatusNotFound, response.StatusCode)

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/predictions/train/1001", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)

	var predictions []map[string]interface{}
	require.NoError(t, json.Unmarshal(responseBody, &predictions))
	require.Len(t, predictions, 1)

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/predictions/station/12?hours=24", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	require.NoError(t, json.Unmarshal(responseBody, &predictions))
	assert.Len(t, predictions, 1)

	id := prediction["id"].(string)
	actual := `{"actualArrivalTime":"2024-06-01T08:33:00Z"}`

	response, _ = doRequest(t, app, http.MethodPut, "/core/predictions/"+id+"/actual", actual, "")
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, _ = doRequest(t, app, http.MethodPut, "/core/predictions/"+id+"/actual", `{}`, bearerToken(t))
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, _ = doRequest(t, app, http.MethodPut, "/core/predictions/missing/actual", actual, bearerToken(t))
	assert.Equal(t, http.StatusNotFound, response.StatusCode)

	response, _ = doRequest(t, app, http.MethodPut, "/core/predictions/"+id+"/actual", actual, bearerToken(t))
	require.Equal(t, http.StatusOK, response.StatusCode)

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/predictions/accuracy/metrics?days=7", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.EqualValues(t, 1, decode(t, responseBody)["totalPredictions"])

	response, responseBody = doRequest(t, app, http.MethodGet, "/core/predictions/delays/stats", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.EqualValues(t, 1, decode(t, responseBody)["totalPredictions"])

	response, responseBody = doRequest(t, app, http.MethodPost, "/core/predictions/update/train/1001", "", bearerToken(t))
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, decode(t, responseBody)["predictions"], 1)
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	app := newTestApp(t)

	response, _ := doRequest(t, app, http.MethodGet, "/ws", "", "")
	assert.Equal(t, http.StatusUpgradeRequired, response.StatusCode)
}
