package store

import (
	"context"
	"time"

	"github.com/travigo/smartrail/pkg/railway"
)

type TrainStore interface {
	FindActiveTrains(ctx context.Context) ([]*railway.Train, error)
	FindTrainsByRoute(ctx context.Context, routeID int64) ([]*railway.Train, error)
	GetTrain(ctx context.Context, trainID int64) (*railway.Train, error)
	GetTrainByNumber(ctx context.Context, number string) (*railway.Train, error)
	GetSchedule(ctx context.Context, trainID int64) ([]railway.ScheduleEntry, error)
	GetScheduleStop(ctx context.Context, trainID int64, stationID int64) (*railway.ScheduleEntry, error)
	UpdateStatus(ctx context.Context, trainID int64, status railway.TrainStatus) error
	CountTrainsByStatus(ctx context.Context) (map[string]int64, error)
}

type StationStore interface {
	GetStation(ctx context.Context, stationID int64) (*railway.Station, error)
}

type BookingStore interface {
	FindBookingsForTrain(ctx context.Context, trainID int64, status railway.BookingStatus) ([]*railway.Booking, error)
}

type TrackingStore interface {
	InsertSample(ctx context.Context, sample *railway.TrackingSample) error
	GetCurrentLocation(ctx context.Context, trainID int64) (*railway.TrackingSample, error)

	// SamplesSince returns samples newest first, limit <= 0 means unbounded
	SamplesSince(ctx context.Context, trainID int64, since time.Time, limit int) ([]*railway.TrackingSample, error)
	SamplesAtStation(ctx context.Context, trainID int64, stationID int64, since time.Time) ([]*railway.TrackingSample, error)
	StationSamplesSince(ctx context.Context, stationID int64, since time.Time) ([]*railway.TrackingSample, error)
	// LatestSamplesSince returns the newest sample of every train seen since the given time
	LatestSamplesSince(ctx context.Context, since time.Time) ([]*railway.TrackingSample, error)
	AllSamplesSince(ctx context.Context, since time.Time) ([]*railway.TrackingSample, error)
	DeleteSamplesBefore(ctx context.Context, before time.Time) (int64, error)
}

type PredictionStore interface {
	// UpsertPrediction replaces any prediction with the same train, station and prediction date
	UpsertPrediction(ctx context.Context, prediction *railway.Prediction) (*railway.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*railway.Prediction, error)
	GetPredictionFor(ctx context.Context, trainID int64, stationID int64, predictionDate string) (*railway.Prediction, error)
	FindTrainPredictions(ctx context.Context, trainID int64, predictionDate string) ([]*railway.Prediction, error)
	FindStationPredictions(ctx context.Context, stationID int64, from time.Time, to time.Time) ([]*railway.Prediction, error)
	FindPredictionsCreatedSince(ctx context.Context, since time.Time) ([]*railway.Prediction, error)
	SetActualArrival(ctx context.Context, id string, actual time.Time) (*railway.Prediction, error)
	DeletePredictionsBefore(ctx context.Context, before time.Time) (int64, error)
}

// EntityStore is everything the realtime pipeline reads and writes
type EntityStore interface {
	TrainStore
	StationStore
	BookingStore
	TrackingStore
	PredictionStore
}

var (
	_ EntityStore = (*MemoryStore)(nil)
	_ EntityStore = (*MongoStore)(nil)
)
