package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/smartrail/pkg/prediction"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/store"
	"github.com/travigo/smartrail/pkg/tracking"
)

type PredictionBroadcaster interface {
	BroadcastPrediction(prediction *railway.Prediction)
}

type RetentionStore interface {
	DeleteSamplesBefore(ctx context.Context, before time.Time) (int64, error)
	DeletePredictionsBefore(ctx context.Context, before time.Time) (int64, error)
}

// QueueCleaner returns unacked deliveries of dead consumers to their queues
type QueueCleaner interface {
	Clean() (int64, error)
}

type Config struct {
	PositionInterval time.Duration
	RefreshInterval  time.Duration
	CleanupInterval  time.Duration

	SampleRetention     time.Duration
	PredictionRetention time.Duration

	Workers int
}

// Scheduler drives the position tick, the prediction refresh and retention cleanup
type Scheduler struct {
	Trains      store.TrainStore
	Tracker     *tracking.Tracker
	Engine      *prediction.Engine
	Broadcaster PredictionBroadcaster
	Retention   RetentionStore
	Queue       QueueCleaner

	Config Config
	Now    func() time.Time

	mutex   sync.Mutex
	stop    chan struct{}
	running sync.WaitGroup
}

// Start launches the three drivers, work keeps the values of ctx but is not cancelled by Stop
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})

	workCtx := context.WithoutCancel(ctx)

	s.startDriver(workCtx, "position", s.Config.PositionInterval, func(ctx context.Context) {
		s.PositionTick(ctx)
	})
	s.startDriver(workCtx, "prediction-refresh", s.Config.RefreshInterval, func(ctx context.Context) {
		s.RefreshTick(ctx)
	})
	s.startDriver(workCtx, "cleanup", s.Config.CleanupInterval, func(ctx context.Context) {
		if _, err := s.Cleanup(ctx); err != nil {
			log.Error().Err(err).Msg("Retention cleanup failed")
		}
	})

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops issuing ticks and waits for in-flight runs to finish
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if s.stop == nil {
		s.mutex.Unlock()
		return
	}

	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.mutex.Unlock()

	s.running.Wait()
}

func (s *Scheduler) startDriver(ctx context.Context, name string, refreshRate time.Duration, tick func(ctx context.Context)) {
	stop := s.stop

	s.running.Add(1)
	go func() {
		defer s.running.Done()

		log.Info().Str("driver", name).Dur("refresh", refreshRate).Msg("Starting scheduler driver")

		for {
			select {
			case <-stop:
				log.Info().Str("driver", name).Msg("Stopped scheduler driver")
				return
			case <-time.After(refreshRate):
			}

			startTime := time.Now()
			tick(ctx)
			log.Debug().Str("driver", name).Dur("took", time.Since(startTime)).Msg("Tick complete")
		}
	}()
}

func (s *Scheduler) newPool() *pool.Pool {
	workers := s.Config.Workers
	if workers < 1 {
		workers = 1
	}

	return pool.New().WithMaxGoroutines(workers)
}

// PositionTick advances every active train, a failing train never stops the others
func (s *Scheduler) PositionTick(ctx context.Context) int {
	trains, err := s.Trains.FindActiveTrains(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load active trains")
		return 0
	}

	var mutex sync.Mutex
	advanced := 0

	p := s.newPool()
	for _, train := range trains {
		train := train

		p.Go(func() {
			sample, err := s.Tracker.Advance(ctx, train)
			if err != nil {
				log.Error().Err(err).Int64("train", train.ID).Str("number", train.Number).Msg("Failed to advance train")
				return
			}

			if sample != nil {
				mutex.Lock()
				advanced++
				mutex.Unlock()
			}
		})
	}
	p.Wait()

	log.Debug().Int("trains", len(trains)).Int("advanced", advanced).Msg("Position tick")

	return advanced
}

func (s *Scheduler) AdvanceTrain(ctx context.Context, trainID int64) (*railway.TrackingSample, error) {
	train, err := s.Trains.GetTrain(ctx, trainID)
	if err != nil {
		return nil, err
	}

	return s.Tracker.Advance(ctx, train)
}

func (s *Scheduler) RecordManualSample(ctx context.Context, trainID int64, sample *railway.TrackingSample) (*railway.TrackingSample, error) {
	train, err := s.Trains.GetTrain(ctx, trainID)
	if err != nil {
		return nil, err
	}

	sample.TrainID = trainID

	return s.Tracker.RecordManual(ctx, train, sample)
}

// RefreshTick refreshes predictions for every active train
func (s *Scheduler) RefreshTick(ctx context.Context) int {
	trains, err := s.Trains.FindActiveTrains(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load active trains")
		return 0
	}

	var mutex sync.Mutex
	refreshed := 0

	p := s.newPool()
	for _, train := range trains {
		train := train

		p.Go(func() {
			predictions, err := s.refreshTrain(ctx, train.ID)
			if err != nil {
				log.Error().Err(err).Int64("train", train.ID).Msg("Failed to refresh predictions")
			}

			mutex.Lock()
			refreshed += len(predictions)
			mutex.Unlock()
		})
	}
	p.Wait()

	log.Info().Int("trains", len(trains)).Int("predictions", refreshed).Msg("Refreshed predictions")

	return refreshed
}

func (s *Scheduler) RefreshPredictions(ctx context.Context, trainID int64) ([]*railway.Prediction, error) {
	if _, err := s.Trains.GetTrain(ctx, trainID); err != nil {
		return nil, err
	}

	return s.refreshTrain(ctx, trainID)
}

func (s *Scheduler) refreshTrain(ctx context.Context, trainID int64) ([]*railway.Prediction, error) {
	predictions, err := s.Engine.RefreshTrain(ctx, trainID)

	for _, prediction := range predictions {
		s.Broadcaster.BroadcastPrediction(prediction)
	}

	return predictions, err
}

// AfterAdvance refreshes a train's predictions once its position moved
func (s *Scheduler) AfterAdvance(ctx context.Context, train *railway.Train) {
	predictions, err := s.refreshTrain(ctx, train.ID)
	if err != nil {
		log.Error().Err(err).Int64("train", train.ID).Msg("Failed to refresh predictions after advance")
		return
	}

	log.Debug().Int64("train", train.ID).Int("predictions", len(predictions)).Msg("Refreshed predictions after advance")
}

type CleanupResult struct {
	Samples     int64 `json:"samples"`
	Predictions int64 `json:"predictions"`
	Deliveries  int64 `json:"deliveries"`
}

// Cleanup removes samples and predictions past their retention windows
func (s *Scheduler) Cleanup(ctx context.Context) (*CleanupResult, error) {
	now := s.Now()
	result := &CleanupResult{}

	samples, err := s.Retention.DeleteSamplesBefore(ctx, now.Add(-s.Config.SampleRetention))
	if err != nil {
		return result, err
	}
	result.Samples = samples

	predictions, err := s.Retention.DeletePredictionsBefore(ctx, now.Add(-s.Config.PredictionRetention))
	if err != nil {
		return result, err
	}
	result.Predictions = predictions

	if s.Queue != nil {
		returned, err := s.Queue.Clean()
		if err != nil {
			log.Error().Err(err).Msg("Failed to clean event queue")
		}
		result.Deliveries = returned
	}

	log.Info().
		Int64("samples", result.Samples).
		Int64("predictions", result.Predictions).
		Int64("deliveries", result.Deliveries).
		Msg("Retention cleanup complete")

	return result, nil
}
