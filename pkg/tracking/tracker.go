package tracking

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/store"
)

// AdvanceHook runs after Advance recorded a sample for a train
type AdvanceHook interface {
	AfterAdvance(ctx context.Context, train *railway.Train)
}

// Tracker advances one train at a time: source, record, broadcast then delay detection
type Tracker struct {
	Source      PositionSource
	Recorder    *Recorder
	Broadcaster Broadcaster
	Detector    *DelayDetector
	Trains      store.TrainStore

	// PostAdvance is optional and is not called for manual samples
	PostAdvance AdvanceHook

	trainLocks sync.Map
}

func (t *Tracker) lockTrain(trainID int64) func() {
	lock, _ := t.trainLocks.LoadOrStore(trainID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	mutex.Lock()

	return mutex.Unlock
}

// Advance returns a nil sample when the source had nothing for the train
func (t *Tracker) Advance(ctx context.Context, train *railway.Train) (*railway.TrackingSample, error) {
	unlock := t.lockTrain(train.ID)
	defer unlock()

	sample, err := t.Source.NextSample(ctx, train)
	if err != nil {
		return nil, err
	}
	if sample == nil {
		log.Debug().Int64("train", train.ID).Msg("No position sample")
		return nil, nil
	}

	recorded, err := t.apply(ctx, train, sample)
	if recorded != nil && t.PostAdvance != nil {
		t.PostAdvance.AfterAdvance(ctx, train)
	}

	return recorded, err
}

// RecordManual takes an externally supplied sample through the same path as Advance
func (t *Tracker) RecordManual(ctx context.Context, train *railway.Train, sample *railway.TrackingSample) (*railway.TrackingSample, error) {
	unlock := t.lockTrain(train.ID)
	defer unlock()

	return t.apply(ctx, train, sample)
}

func (t *Tracker) apply(ctx context.Context, train *railway.Train, sample *railway.TrackingSample) (*railway.TrackingSample, error) {
	recorded, err := t.Recorder.Record(ctx, train.ID, sample)
	if err != nil {
		return nil, err
	}

	t.Broadcaster.BroadcastTrainLocation(train.ID, recorded)

	if !recorded.HasStation() || recorded.EstimatedArrival == nil {
		return recorded, nil
	}

	stop, err := t.Trains.GetScheduleStop(ctx, train.ID, recorded.StationID)
	if errors.Is(err, railway.ErrNotFound) {
		log.Debug().Int64("train", train.ID).Int64("station", recorded.StationID).Msg("Sample station not on route")
		return recorded, nil
	} else if err != nil {
		return recorded, err
	}

	if _, err := t.Detector.Evaluate(ctx, train, *stop, *recorded.EstimatedArrival); err != nil {
		return recorded, err
	}

	return recorded, nil
}
