package railway

import "time"

// TrackingSample is an immutable position record for a train
type TrackingSample struct {
	TrainID int64 `json:"trainId" groups:"basic"`

	Latitude  float64 `json:"latitude" groups:"basic"`
	Longitude float64 `json:"longitude" groups:"basic"`
	Speed     float64 `json:"speed" groups:"basic"`
	Heading   float64 `json:"heading" groups:"basic"`

	StationID        int64      `json:"stationId,omitempty" groups:"basic"`
	EstimatedArrival *time.Time `json:"estimatedArrival,omitempty" groups:"basic"`

	Accuracy float64 `json:"accuracy" groups:"detailed"`

	Timestamp time.Time `json:"timestamp" groups:"basic"`
}

func (s *TrackingSample) HasStation() bool {
	return s.StationID != 0
}

func (s *TrackingSample) Location() Location {
	return Location{Latitude: s.Latitude, Longitude: s.Longitude}
}

// LiveTrain is the latest sample of a train joined with its display data
type LiveTrain struct {
	TrackingSample `bson:",inline"`

	TrainNumber string      `json:"trainNumber" groups:"basic"`
	TrainName   string      `json:"trainName" groups:"basic"`
	Status      TrainStatus `json:"status" groups:"basic"`
	StationName string      `json:"stationName,omitempty" groups:"basic"`

	DistanceToStationKm *float64 `json:"distanceToStationKm,omitempty" groups:"detailed"`
}

type TrackingStats struct {
	ActiveTrains       int              `json:"activeTrains"`
	TotalTrackingPoint int              `json:"totalTrackingPoints"`
	AverageSpeed       float64          `json:"averageSpeed"`
	LastUpdate         *time.Time       `json:"lastUpdate,omitempty"`
	StatusCounts       map[string]int64 `json:"statusCounts"`
}
