package broadcast

import (
	"time"

	"github.com/travigo/smartrail/pkg/railway"
)

const (
	EventConnected           = "connected"
	EventTrainLocation       = "train_location_update"
	EventTrainDelay          = "train_delay_alert"
	EventPrediction          = "prediction_update"
	EventStationAnnouncement = "station_announcement"
	EventBookingUpdate       = "booking_update"
	EventNotification        = "notification"
	EventSystemAnnouncement  = "system_announcement"
	EventError               = "error"
)

// Message is the envelope written to every connection
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type ConnectedMessage struct {
	Message   string    `json:"message"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type LocationPayload struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	StationID int64     `json:"stationId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type LocationMessage struct {
	TrainID   int64           `json:"trainId"`
	Location  LocationPayload `json:"location"`
	Timestamp time.Time       `json:"timestamp"`
}

type DelayMessage struct {
	TrainID   int64               `json:"trainId"`
	Delay     *railway.DelayEvent `json:"delay"`
	Timestamp time.Time           `json:"timestamp"`
}

type PredictionMessage struct {
	TrainID    int64               `json:"trainId"`
	StationID  int64               `json:"stationId"`
	Prediction *railway.Prediction `json:"prediction"`
	Timestamp  time.Time           `json:"timestamp"`
}

type StationAnnouncementMessage struct {
	StationID    int64     `json:"stationId"`
	Announcement string    `json:"announcement"`
	Timestamp    time.Time `json:"timestamp"`
}

type BookingMessage struct {
	Booking   interface{} `json:"booking"`
	Timestamp time.Time   `json:"timestamp"`
}

type NotificationMessage struct {
	railway.EventNotificationData
	Timestamp time.Time `json:"timestamp"`
}

type SystemAnnouncementMessage struct {
	Announcement string    `json:"announcement"`
	Timestamp    time.Time `json:"timestamp"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}
