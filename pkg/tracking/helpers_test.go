package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/store"
)

var testNow = time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return testNow
}

type recordingBroadcaster struct {
	mutex     sync.Mutex
	locations []*railway.TrackingSample
	delays    []*railway.DelayEvent
}

func (r *recordingBroadcaster) BroadcastTrainLocation(trainID int64, sample *railway.TrackingSample) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.locations = append(r.locations, sample)
}

func (r *recordingBroadcaster) BroadcastTrainDelay(event *railway.DelayEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.delays = append(r.delays, event)
}

type recordingPublisher struct {
	mutex  sync.Mutex
	events []*railway.Event
}

func (r *recordingPublisher) Publish(event *railway.Event) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.events = append(r.events, event)
	return nil
}

type countingStore struct {
	*store.MemoryStore

	mutex         sync.Mutex
	statusUpdates int
}

func (c *countingStore) UpdateStatus(ctx context.Context, trainID int64, status railway.TrainStatus) error {
	c.mutex.Lock()
	c.statusUpdates++
	c.mutex.Unlock()

	return c.MemoryStore.UpdateStatus(ctx, trainID, status)
}

func newSeededStore() *store.MemoryStore {
	memoryStore := store.NewMemoryStore()
	memoryStore.SetClock(fixedClock)
	memoryStore.Seed(&store.Seed{
		Trains: []railway.Train{
			{ID: 1001, Number: "1001", Name: "Udarata Menike", Status: railway.TrainStatusRunning, RouteID: 1},
			{ID: 7, Number: "1015", Name: "Yal Devi", Status: railway.TrainStatusRunning, RouteID: 2},
			{ID: 9, Number: "4077", Name: "Empty Route", Status: railway.TrainStatusRunning, RouteID: 99},
		},
		Stations: []railway.Station{
			{ID: 11, Name: "Colombo Fort", Location: railway.Location{Latitude: 6.9344, Longitude: 79.8428}},
			{ID: 12, Name: "Kandy", Location: railway.Location{Latitude: 7.2906, Longitude: 80.6337}},
		},
		Routes: []railway.ScheduleEntry{
			{RouteID: 1, StationID: 11, StationName: "Colombo Fort", Sequence: 1, ArrivalTime: "06:00:00", DepartureTime: "06:05:00"},
			{RouteID: 1, StationID: 12, StationName: "Kandy", Sequence: 2, ArrivalTime: "08:30:00", DepartureTime: "08:35:00"},
			{RouteID: 2, StationID: 11, StationName: "Colombo Fort", Sequence: 1, ArrivalTime: "05:00:00", DepartureTime: "05:10:00"},
		},
	})

	return memoryStore
}
