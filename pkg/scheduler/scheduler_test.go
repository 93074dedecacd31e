package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/smartrail/pkg/prediction"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/store"
	"github.com/travigo/smartrail/pkg/tracking"
	"github.com/travigo/smartrail/pkg/util"
)

var testNow = time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return testNow
}

type recordingBroadcaster struct {
	mutex       sync.Mutex
	locations   map[int64]int
	delays      int
	predictions []*railway.Prediction
}

func (r *recordingBroadcaster) BroadcastTrainLocation(trainID int64, sample *railway.TrackingSample) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.locations == nil {
		r.locations = map[int64]int{}
	}
	r.locations[trainID]++
}

func (r *recordingBroadcaster) BroadcastTrainDelay(event *railway.DelayEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.delays++
}

func (r *recordingBroadcaster) BroadcastPrediction(prediction *railway.Prediction) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.predictions = append(r.predictions, prediction)
}

func (r *recordingBroadcaster) locationCount(trainID int64) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.locations[trainID]
}

type countingCleaner struct {
	calls atomic.Int32
}

func (c *countingCleaner) Clean() (int64, error) {
	c.calls.Add(1)
	return 2, nil
}

type fixture struct {
	store       *store.MemoryStore
	source      *tracking.DatasetSource
	broadcaster *recordingBroadcaster
	scheduler   *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	memoryStore := store.NewMemoryStore()
	memoryStore.SetClock(fixedClock)
	memoryStore.Seed(&store.Seed{
		Trains: []railway.Train{
			{ID: 1001, Number: "1001", Name: "Udarata Menike", Status: railway.TrainStatusRunning, RouteID: 1},
			{ID: 1002, Number: "1002", Name: "Podi Menike", Status: railway.TrainStatusDelayed, RouteID: 1},
			{ID: 1003, Number: "1003", Name: "Ruhunu Kumari", Status: railway.TrainStatusCancelled, RouteID: 1},
		},
		Stations: []railway.Station{
			{ID: 11, Name: "Colombo Fort"},
			{ID: 12, Name: "Kandy"},
		},
		Routes: []railway.ScheduleEntry{
			{RouteID: 1, StationID: 11, StationName: "Colombo Fort", Sequence: 1, ArrivalTime: "06:00:00", DepartureTime: "06:05:00"},
			{RouteID: 1, StationID: 12, StationName: "Kandy", Sequence: 2, ArrivalTime: "08:30:00", DepartureTime: "08:35:00"},
		},
	})

	dataset := tracking.Dataset{
		1001: {
			{Latitude: 6.93, Longitude: 79.84, Speed: 40},
			{Latitude: 7.00, Longitude: 80.00, Speed: 60},
			{Latitude: 7.29, Longitude: 80.63, Speed: 20},
		},
		1002: {
			{Latitude: 6.93, Longitude: 79.84, Speed: 40},
		},
		1003: {
			{Latitude: 6.93, Longitude: 79.84, Speed: 40},
		},
	}

	source := tracking.NewDatasetSource(dataset, time.UTC)
	source.Now = fixedClock

	broadcaster := &recordingBroadcaster{}
	recorder := tracking.NewRecorder(memoryStore, 5*time.Minute)
	recorder.Now = fixedClock

	tracker := &tracking.Tracker{
		Source:      source,
		Recorder:    recorder,
		Broadcaster: broadcaster,
		Trains:      memoryStore,
		Detector: &tracking.DelayDetector{
			Trains:      memoryStore,
			Broadcaster: broadcaster,
			Thresholds:  tracking.DelayThresholds{EventMinutes: 5, EscalationMinutes: 15},
			Random:      util.NewRandom(1),
			Location:    time.UTC,
			Now:         fixedClock,
		},
	}

	engine := &prediction.Engine{
		Store:    memoryStore,
		ML:       prediction.DisabledMLClient{},
		Weather:  prediction.RandomWeather{Random: util.NewRandom(2)},
		Fallback: prediction.FallbackConfig{PadMaxMinutes: 10, Confidence: 0.6},
		Random:   util.NewRandom(3),
		Now:      fixedClock,
		Location: time.UTC,
	}

	return &fixture{
		store:       memoryStore,
		source:      source,
		broadcaster: broadcaster,
		scheduler: &Scheduler{
			Trains:      memoryStore,
			Tracker:     tracker,
			Engine:      engine,
			Broadcaster: broadcaster,
			Retention:   memoryStore,
			Config: Config{
				PositionInterval:    10 * time.Millisecond,
				RefreshInterval:     time.Hour,
				CleanupInterval:     time.Hour,
				SampleRetention:     7 * 24 * time.Hour,
				PredictionRetention: 24 * time.Hour,
				Workers:             4,
			},
			Now: fixedClock,
		},
	}
}

func TestPositionTickAdvancesActiveTrains(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Equal(t, 2, f.scheduler.PositionTick(ctx))
	}

	samples, err := f.store.SamplesSince(ctx, 1001, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 7.29, samples[0].Latitude)
	assert.Equal(t, 6.93, samples[2].Latitude)

	assert.Equal(t, 3, f.broadcaster.locationCount(1001))
	assert.Equal(t, 0, f.broadcaster.locationCount(1003))
	assert.Equal(t, 0, f.source.Cursor(1001))

	sample, err := f.scheduler.AdvanceTrain(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, 6.93, sample.Latitude)
}

func TestPositionTickRefreshesPredictionsAfterAdvance(t *testing.T) {
	f := newFixture(t)
	f.scheduler.Tracker.PostAdvance = f.scheduler
	ctx := context.Background()

	assert.Equal(t, 2, f.scheduler.PositionTick(ctx))

	for _, trainID := range []int64{1001, 1002} {
		predictions, err := f.scheduler.Engine.TrainPredictions(ctx, trainID)
		require.NoError(t, err)
		require.Len(t, predictions, 1, "train %d", trainID)
		assert.EqualValues(t, 12, predictions[0].StationID)
	}

	predictions, err := f.scheduler.Engine.TrainPredictions(ctx, 1003)
	require.NoError(t, err)
	assert.Empty(t, predictions)

	f.broadcaster.mutex.Lock()
	assert.Len(t, f.broadcaster.predictions, 2)
	f.broadcaster.mutex.Unlock()

	_, err = f.scheduler.RecordManualSample(ctx, 1003, &railway.TrackingSample{Latitude: 7.1, Longitude: 80.1})
	require.NoError(t, err)

	f.broadcaster.mutex.Lock()
	assert.Len(t, f.broadcaster.predictions, 2)
	f.broadcaster.mutex.Unlock()
}

func TestManualTriggersUnknownTrain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.scheduler.AdvanceTrain(ctx, 404)
	assert.ErrorIs(t, err, railway.ErrNotFound)

	_, err = f.scheduler.RefreshPredictions(ctx, 404)
	assert.ErrorIs(t, err, railway.ErrNotFound)

	_, err = f.scheduler.RecordManualSample(ctx, 404, &railway.TrackingSample{})
	assert.ErrorIs(t, err, railway.ErrNotFound)
}

func TestRecordManualSample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	recorded, err := f.scheduler.RecordManualSample(ctx, 1003, &railway.TrackingSample{Latitude: 7.1, Longitude: 80.1})
	require.NoError(t, err)
	assert.EqualValues(t, 1003, recorded.TrainID)
	assert.Equal(t, testNow, recorded.Timestamp)
	assert.Equal(t, 1, f.broadcaster.locationCount(1003))
}

func TestRefreshBroadcastsPredictions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, 2, f.scheduler.RefreshTick(ctx))

	predictions, err := f.scheduler.RefreshPredictions(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, predictions, 1)
	assert.EqualValues(t, 12, predictions[0].StationID)
	assert.Equal(t, railway.PredictionMethodSchedule, predictions[0].Method)

	assert.Len(t, f.broadcaster.predictions, 3)
}

func TestCleanupAppliesRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.InsertSample(ctx, &railway.TrackingSample{TrainID: 1001, Timestamp: testNow.AddDate(0, 0, -8)}))
	require.NoError(t, f.store.InsertSample(ctx, &railway.TrackingSample{TrainID: 1001, Timestamp: testNow.AddDate(0, 0, -6)}))

	_, err := f.store.UpsertPrediction(ctx, &railway.Prediction{TrainID: 1001, StationID: 11, PredictionDate: "2024-05-30", PredictedTime: testNow.Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = f.store.UpsertPrediction(ctx, &railway.Prediction{TrainID: 1001, StationID: 12, PredictionDate: "2024-06-01", PredictedTime: testNow.Add(time.Hour)})
	require.NoError(t, err)

	cleaner := &countingCleaner{}
	f.scheduler.Queue = cleaner

	result, err := f.scheduler.Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Samples)
	assert.EqualValues(t, 1, result.Predictions)
	assert.EqualValues(t, 2, result.Deliveries)
	assert.EqualValues(t, 1, cleaner.calls.Load())

	samples, err := f.store.SamplesSince(ctx, 1001, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.scheduler.Start(ctx)

	assert.Eventually(t, func() bool {
		return f.broadcaster.locationCount(1001) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	f.scheduler.Stop()
	f.scheduler.Stop()

	stopped := f.broadcaster.locationCount(1001)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, f.broadcaster.locationCount(1001))
}
