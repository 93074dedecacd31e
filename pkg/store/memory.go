package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/travigo/smartrail/pkg/railway"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML document used to populate a MemoryStore
type Seed struct {
	Trains   []railway.Train         `yaml:"trains"`
	Stations []railway.Station       `yaml:"stations"`
	Routes   []railway.ScheduleEntry `yaml:"routes"`
	Bookings []railway.Booking       `yaml:"bookings"`
}

type predictionKey struct {
	trainID        int64
	stationID      int64
	predictionDate string
}

// MemoryStore is a process local EntityStore used for demos and tests
type MemoryStore struct {
	mutex sync.RWMutex

	trains    map[int64]*railway.Train
	stations  map[int64]*railway.Station
	schedules map[int64][]railway.ScheduleEntry
	bookings  []*railway.Booking

	samples     []*railway.TrackingSample
	predictions map[predictionKey]*railway.Prediction

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trains:      map[int64]*railway.Train{},
		stations:    map[int64]*railway.Station{},
		schedules:   map[int64][]railway.ScheduleEntry{},
		predictions: map[predictionKey]*railway.Prediction{},
		now:         time.Now,
	}
}

func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed %s: %w", path, err)
	}

	return &seed, nil
}

func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.now = now
}

func (m *MemoryStore) Seed(seed *Seed) {
	for _, train := range seed.Trains {
		m.AddTrain(train)
	}
	for _, station := range seed.Stations {
		m.AddStation(station)
	}
	for _, entry := range seed.Routes {
		m.AddScheduleEntry(entry)
	}
	for _, booking := range seed.Bookings {
		m.AddBooking(booking)
	}
}

func (m *MemoryStore) AddTrain(train railway.Train) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.trains[train.ID] = &train
}

func (m *MemoryStore) AddStation(station railway.Station) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.stations[station.ID] = &station
}

func (m *MemoryStore) AddScheduleEntry(entry railway.ScheduleEntry) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	entries := append(m.schedules[entry.RouteID], entry)
	slices.SortFunc(entries, func(a, b railway.ScheduleEntry) int {
		return a.Sequence - b.Sequence
	})
	m.schedules[entry.RouteID] = entries
}

func (m *MemoryStore) AddBooking(booking railway.Booking) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.bookings = append(m.bookings, &booking)
}

func (m *MemoryStore) FindActiveTrains(ctx context.Context) ([]*railway.Train, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var trains []*railway.Train
	for _, train := range m.trains {
		if train.Status.IsActive() {
			trainCopy := *train
			trains = append(trains, &trainCopy)
		}
	}
	slices.SortFunc(trains, func(a, b *railway.Train) int {
		return compareInt64(a.ID, b.ID)
	})

	return trains, nil
}

func (m *MemoryStore) FindTrainsByRoute(ctx context.Context, routeID int64) ([]*railway.Train, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var trains []*railway.Train
	for _, train := range m.trains {
		if train.RouteID == routeID {
			trainCopy := *train
			trains = append(trains, &trainCopy)
		}
	}
	slices.SortFunc(trains, func(a, b *railway.Train) int {
		return compareInt64(a.ID, b.ID)
	})

	return trains, nil
}

func (m *MemoryStore) GetTrain(ctx context.Context, trainID int64) (*railway.Train, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	train, exists := m.trains[trainID]
	if !exists {
		return nil, fmt.Errorf("train %d: %w", trainID, railway.ErrNotFound)
	}

	trainCopy := *train
	return &trainCopy, nil
}

func (m *MemoryStore) GetTrainByNumber(ctx context.Context, number string) (*railway.Train, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, train := range m.trains {
		if train.Number == number {
			trainCopy := *train
			return &trainCopy, nil
		}
	}

	return nil, fmt.Errorf("train number %s: %w", number, railway.ErrNotFound)
}

func (m *MemoryStore) GetSchedule(ctx context.Context, trainID int64) ([]railway.ScheduleEntry, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	train, exists := m.trains[trainID]
	if !exists {
		return nil, fmt.Errorf("train %d: %w", trainID, railway.ErrNotFound)
	}

	return slices.Clone(m.schedules[train.RouteID]), nil
}

func (m *MemoryStore) GetScheduleStop(ctx context.Context, trainID int64, stationID int64) (*railway.ScheduleEntry, error) {
	schedule, err := m.GetSchedule(ctx, trainID)
	if err != nil {
		return nil, err
	}

	for _, entry := range schedule {
		if entry.StationID == stationID {
			entryCopy := entry
			return &entryCopy, nil
		}
	}

	return nil, fmt.Errorf("train %d has no stop at station %d: %w", trainID, stationID, railway.ErrNotFound)
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, trainID int64, status railway.TrainStatus) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	train, exists := m.trains[trainID]
	if !exists {
		return fmt.Errorf("train %d: %w", trainID, railway.ErrNotFound)
	}

	train.Status = status
	return nil
}

func (m *MemoryStore) CountTrainsByStatus(ctx context.Context) (map[string]int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	counts := map[string]int64{}
	for _, train := range m.trains {
		counts[string(train.Status)]++
	}

	return counts, nil
}

func (m *MemoryStore) GetStation(ctx context.Context, stationID int64) (*railway.Station, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	station, exists := m.stations[stationID]
	if !exists {
		return nil, fmt.Errorf("station %d: %w", stationID, railway.ErrNotFound)
	}

	stationCopy := *station
	return &stationCopy, nil
}

func (m *MemoryStore) FindBookingsForTrain(ctx context.Context, trainID int64, status railway.BookingStatus) ([]*railway.Booking, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var bookings []*railway.Booking
	for _, booking := range m.bookings {
		if booking.TrainID == trainID && (status == "" || booking.Status == status) {
			bookingCopy := *booking
			bookings = append(bookings, &bookingCopy)
		}
	}

	return bookings, nil
}

func (m *MemoryStore) InsertSample(ctx context.Context, sample *railway.TrackingSample) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	sampleCopy := *sample
	m.samples = append(m.samples, &sampleCopy)

	return nil
}

func (m *MemoryStore) GetCurrentLocation(ctx context.Context, trainID int64) (*railway.TrackingSample, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var latest *railway.TrackingSample
	for _, sample := range m.samples {
		if sample.TrainID == trainID && (latest == nil || sample.Timestamp.After(latest.Timestamp)) {
			latest = sample
		}
	}

	if latest == nil {
		return nil, nil
	}

	latestCopy := *latest
	return &latestCopy, nil
}

func (m *MemoryStore) filterSamples(filter func(*railway.TrackingSample) bool) []*railway.TrackingSample {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var samples []*railway.TrackingSample
	for _, sample := range m.samples {
		if filter(sample) {
			sampleCopy := *sample
			samples = append(samples, &sampleCopy)
		}
	}

	slices.SortStableFunc(samples, newestFirst)

	return samples
}

func (m *MemoryStore) SamplesSince(ctx context.Context, trainID int64, since time.Time, limit int) ([]*railway.TrackingSample, error) {
	samples := m.filterSamples(func(s *railway.TrackingSample) bool {
		return s.TrainID == trainID && !s.Timestamp.Before(since)
	})

	if limit > 0 && len(samples) > limit {
		samples = samples[:limit]
	}

	return samples, nil
}

func (m *MemoryStore) SamplesAtStation(ctx context.Context, trainID int64, stationID int64, since time.Time) ([]*railway.TrackingSample, error) {
	return m.filterSamples(func(s *railway.TrackingSample) bool {
		return s.TrainID == trainID && s.StationID == stationID && !s.Timestamp.Before(since)
	}), nil
}

func (m *MemoryStore) StationSamplesSince(ctx context.Context, stationID int64, since time.Time) ([]*railway.TrackingSample, error) {
	return m.filterSamples(func(s *railway.TrackingSample) bool {
		return s.StationID == stationID && !s.Timestamp.Before(since)
	}), nil
}

func (m *MemoryStore) AllSamplesSince(ctx context.Context, since time.Time) ([]*railway.TrackingSample, error) {
	return m.filterSamples(func(s *railway.TrackingSample) bool {
		return !s.Timestamp.Before(since)
	}), nil
}

func (m *MemoryStore) LatestSamplesSince(ctx context.Context, since time.Time) ([]*railway.TrackingSample, error) {
	samples, _ := m.AllSamplesSince(ctx, since)

	seen := map[int64]bool{}
	var latest []*railway.TrackingSample
	for _, sample := range samples {
		if !seen[sample.TrainID] {
			seen[sample.TrainID] = true
			latest = append(latest, sample)
		}
	}

	return latest, nil
}

func (m *MemoryStore) DeleteSamplesBefore(ctx context.Context, before time.Time) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var deleted int64
	kept := m.samples[:0]
	for _, sample := range m.samples {
		if sample.Timestamp.Before(before) {
			deleted++
		} else {
			kept = append(kept, sample)
		}
	}
	m.samples = kept

	return deleted, nil
}

func (m *MemoryStore) UpsertPrediction(ctx context.Context, prediction *railway.Prediction) (*railway.Prediction, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := predictionKey{
		trainID:        prediction.TrainID,
		stationID:      prediction.StationID,
		predictionDate: prediction.PredictionDate,
	}

	now := m.now()
	stored := *prediction
	stored.Factors = slices.Clone(prediction.Factors)
	stored.UpdatedAt = now

	if existing, exists := m.predictions[key]; exists {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		stored.CreatedAt = now
	}

	m.predictions[key] = &stored

	result := stored
	return &result, nil
}

func (m *MemoryStore) filterPredictions(filter func(*railway.Prediction) bool) []*railway.Prediction {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var predictions []*railway.Prediction
	for _, prediction := range m.predictions {
		if filter(prediction) {
			predictionCopy := *prediction
			predictions = append(predictions, &predictionCopy)
		}
	}

	slices.SortFunc(predictions, func(a, b *railway.Prediction) int {
		return a.PredictedTime.Compare(b.PredictedTime)
	})

	return predictions
}

func (m *MemoryStore) GetPrediction(ctx context.Context, id string) (*railway.Prediction, error) {
	predictions := m.filterPredictions(func(p *railway.Prediction) bool {
		return p.ID == id
	})
	if len(predictions) == 0 {
		return nil, fmt.Errorf("prediction %s: %w", id, railway.ErrNotFound)
	}

	return predictions[0], nil
}

func (m *MemoryStore) GetPredictionFor(ctx context.Context, trainID int64, stationID int64, predictionDate string) (*railway.Prediction, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	prediction, exists := m.predictions[predictionKey{trainID, stationID, predictionDate}]
	if !exists {
		return nil, nil
	}

	predictionCopy := *prediction
	return &predictionCopy, nil
}

func (m *MemoryStore) FindTrainPredictions(ctx context.Context, trainID int64, predictionDate string) ([]*railway.Prediction, error) {
	return m.filterPredictions(func(p *railway.Prediction) bool {
		return p.TrainID == trainID && p.PredictionDate == predictionDate
	}), nil
}

func (m *MemoryStore) FindStationPredictions(ctx context.Context, stationID int64, from time.Time, to time.Time) ([]*railway.Prediction, error) {
	return m.filterPredictions(func(p *railway.Prediction) bool {
		return p.StationID == stationID && !p.PredictedTime.Before(from) && !p.PredictedTime.After(to)
	}), nil
}

func (m *MemoryStore) FindPredictionsCreatedSince(ctx context.Context, since time.Time) ([]*railway.Prediction, error) {
	return m.filterPredictions(func(p *railway.Prediction) bool {
		return !p.CreatedAt.Before(since)
	}), nil
}

func (m *MemoryStore) SetActualArrival(ctx context.Context, id string, actual time.Time) (*railway.Prediction, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, prediction := range m.predictions {
		if prediction.ID == id {
			actualCopy := actual
			prediction.ActualArrivalTime = &actualCopy
			prediction.UpdatedAt = m.now()

			predictionCopy := *prediction
			return &predictionCopy, nil
		}
	}

	return nil, fmt.Errorf("prediction %s: %w", id, railway.ErrNotFound)
}

func (m *MemoryStore) DeletePredictionsBefore(ctx context.Context, before time.Time) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var deleted int64
	for key, prediction := range m.predictions {
		if prediction.PredictedTime.Before(before) {
			delete(m.predictions, key)
			deleted++
		}
	}

	return deleted, nil
}

func newestFirst(a, b *railway.TrackingSample) int {
	return b.Timestamp.Compare(a.Timestamp)
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
