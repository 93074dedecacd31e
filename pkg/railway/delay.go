package railway

import "time"

// DelayReasons are the causal categories attached to delay events
var DelayReasons = []string{
	"Signal failure",
	"Track maintenance",
	"Weather conditions",
	"Technical issues",
	"Heavy passenger traffic",
	"Operational delays",
}

// DelayEvent is transient and only ever broadcast or queued
type DelayEvent struct {
	TrainID     int64  `json:"trainId"`
	TrainNumber string `json:"trainNumber"`
	TrainName   string `json:"trainName"`

	StationID   int64  `json:"stationId"`
	StationName string `json:"stationName"`

	ScheduledArrival time.Time `json:"scheduledArrival"`
	EstimatedArrival time.Time `json:"estimatedArrival"`
	DelayMinutes     int       `json:"delayMinutes"`
	Reason           string    `json:"reason"`

	Escalated bool `json:"escalated"`
}
