package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/store"
	"github.com/travigo/smartrail/pkg/util"
)

const (
	minHistoryHours     = 1
	maxHistoryHours     = 168
	DefaultHistoryHours = 24

	statsWindow = time.Hour
)

type RecorderStore interface {
	store.TrackingStore
	store.TrainStore
	store.StationStore
}

// Recorder persists tracking samples and answers history queries
type Recorder struct {
	Store      RecorderStore
	Now        func() time.Time
	LiveWindow time.Duration

	lastTimestampsMutex sync.Mutex
	lastTimestamps      map[int64]time.Time
}

func NewRecorder(recorderStore RecorderStore, liveWindow time.Duration) *Recorder {
	return &Recorder{
		Store:          recorderStore,
		Now:            time.Now,
		LiveWindow:     liveWindow,
		lastTimestamps: map[int64]time.Time{},
	}
}

// Record stamps the sample and appends it. Timestamps for a train always increase.
func (r *Recorder) Record(ctx context.Context, trainID int64, sample *railway.TrackingSample) (*railway.TrackingSample, error) {
	last, known := r.lastTimestamp(trainID)
	if !known {
		current, err := r.Store.GetCurrentLocation(ctx, trainID)
		if err != nil {
			return nil, fmt.Errorf("reading current location of train %d: %w: %w", trainID, railway.ErrPersistence, err)
		}
		if current != nil {
			last = current.Timestamp
		}
	}

	recorded := *sample
	recorded.TrainID = trainID
	recorded.Timestamp = r.reserveTimestamp(trainID, last)

	if err := r.Store.InsertSample(ctx, &recorded); err != nil {
		return nil, fmt.Errorf("recording sample for train %d: %w: %w", trainID, railway.ErrPersistence, err)
	}

	return &recorded, nil
}

func (r *Recorder) lastTimestamp(trainID int64) (time.Time, bool) {
	r.lastTimestampsMutex.Lock()
	defer r.lastTimestampsMutex.Unlock()

	last, known := r.lastTimestamps[trainID]
	return last, known
}

func (r *Recorder) reserveTimestamp(trainID int64, storedLast time.Time) time.Time {
	r.lastTimestampsMutex.Lock()
	defer r.lastTimestampsMutex.Unlock()

	last := storedLast
	if cached, known := r.lastTimestamps[trainID]; known && cached.After(last) {
		last = cached
	}

	timestamp := r.Now()
	if !timestamp.After(last) {
		timestamp = last.Add(time.Millisecond)
	}
	r.lastTimestamps[trainID] = timestamp

	return timestamp
}

// RecentHistory returns samples newest first, hours is clamped to a week
func (r *Recorder) RecentHistory(ctx context.Context, trainID int64, hours int) ([]*railway.TrackingSample, error) {
	hours = util.Clamp(hours, minHistoryHours, maxHistoryHours)

	return r.Store.SamplesSince(ctx, trainID, r.Now().Add(-time.Duration(hours)*time.Hour), 0)
}

// LiveSnapshot is the latest sample of every train seen inside the live window
func (r *Recorder) LiveSnapshot(ctx context.Context) ([]*railway.LiveTrain, error) {
	samples, err := r.Store.LatestSamplesSince(ctx, r.Now().Add(-r.LiveWindow))
	if err != nil {
		return nil, err
	}

	return r.joinSamples(ctx, samples)
}

// StationActivity lists the trains that reported a position at the station within the window
func (r *Recorder) StationActivity(ctx context.Context, stationID int64, window time.Duration) ([]*railway.LiveTrain, error) {
	samples, err := r.Store.StationSamplesSince(ctx, stationID, r.Now().Add(-window))
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{}
	var latest []*railway.TrackingSample
	for _, sample := range samples {
		if !seen[sample.TrainID] {
			seen[sample.TrainID] = true
			latest = append(latest, sample)
		}
	}

	return r.joinSamples(ctx, latest)
}

// RouteActivity is the latest sample within the window of every train serving the route
func (r *Recorder) RouteActivity(ctx context.Context, routeID int64, window time.Duration) ([]*railway.LiveTrain, error) {
	trains, err := r.Store.FindTrainsByRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if len(trains) == 0 {
		return nil, fmt.Errorf("route %d: %w", routeID, railway.ErrNotFound)
	}

	onRoute := map[int64]bool{}
	for _, train := range trains {
		onRoute[train.ID] = true
	}

	samples, err := r.Store.LatestSamplesSince(ctx, r.Now().Add(-window))
	if err != nil {
		return nil, err
	}

	var latest []*railway.TrackingSample
	for _, sample := range samples {
		if onRoute[sample.TrainID] {
			latest = append(latest, sample)
		}
	}

	return r.joinSamples(ctx, latest)
}

func (r *Recorder) joinSamples(ctx context.Context, samples []*railway.TrackingSample) ([]*railway.LiveTrain, error) {
	stations := map[int64]*railway.Station{}
	liveTrains := []*railway.LiveTrain{}

	for _, sample := range samples {
		train, err := r.Store.GetTrain(ctx, sample.TrainID)
		if errors.Is(err, railway.ErrNotFound) {
			log.Debug().Int64("train", sample.TrainID).Msg("Skipping sample for unknown train")
			continue
		} else if err != nil {
			return nil, err
		}

		liveTrain := &railway.LiveTrain{
			TrackingSample: *sample,
			TrainNumber:    train.Number,
			TrainName:      train.Name,
			Status:         train.Status,
		}

		if sample.HasStation() {
			station, cached := stations[sample.StationID]
			if !cached {
				station, err = r.Store.GetStation(ctx, sample.StationID)
				if err != nil && !errors.Is(err, railway.ErrNotFound) {
					return nil, err
				}
				stations[sample.StationID] = station
			}

			if station != nil {
				liveTrain.StationName = station.Name

				if !station.Location.IsZero() {
					distance := sample.Location().DistanceKm(station.Location)
					liveTrain.DistanceToStationKm = &distance
				}
			}
		}

		liveTrains = append(liveTrains, liveTrain)
	}

	return liveTrains, nil
}

func (r *Recorder) Stats(ctx context.Context) (*railway.TrackingStats, error) {
	samples, err := r.Store.AllSamplesSince(ctx, r.Now().Add(-statsWindow))
	if err != nil {
		return nil, err
	}

	statusCounts, err := r.Store.CountTrainsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &railway.TrackingStats{
		TotalTrackingPoint: len(samples),
		StatusCounts:       statusCounts,
	}

	trains := map[int64]bool{}
	var totalSpeed float64
	for _, sample := range samples {
		trains[sample.TrainID] = true
		totalSpeed += sample.Speed

		if stats.LastUpdate == nil || sample.Timestamp.After(*stats.LastUpdate) {
			timestamp := sample.Timestamp
			stats.LastUpdate = &timestamp
		}
	}

	stats.ActiveTrains = len(trains)
	if len(samples) > 0 {
		stats.AverageSpeed = totalSpeed / float64(len(samples))
	}

	return stats, nil
}
