package tracking

import (
	"context"
	"time"

	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/store"
	"github.com/travigo/smartrail/pkg/util"
)

type SimulatorConfig struct {
	CentroidLatitude  float64
	CentroidLongitude float64
	JitterDegrees     float64

	ArrivalPadMaxMinutes int
}

// Simulator synthesises samples around a fixed centroid for trains that have
// a stop still to depart today
type Simulator struct {
	Trains store.TrainStore
	Config SimulatorConfig

	Random   *util.Random
	Now      func() time.Time
	Location *time.Location
}

func (s *Simulator) NextSample(ctx context.Context, train *railway.Train) (*railway.TrackingSample, error) {
	schedule, err := s.Trains.GetSchedule(ctx, train.ID)
	if err != nil {
		return nil, err
	}

	now := s.Now().In(s.Location)

	nextStop := FindNextStop(schedule, now)
	if nextStop == nil {
		return nil, nil
	}

	scheduledArrival, err := util.AddClockToDate(now, nextStop.ScheduledArrival())
	if err != nil {
		return nil, err
	}
	estimatedArrival := scheduledArrival.Add(time.Duration(s.Random.IntN(s.Config.ArrivalPadMaxMinutes+1)) * time.Minute)

	return &railway.TrackingSample{
		TrainID:          train.ID,
		Latitude:         s.Config.CentroidLatitude + (s.Random.Float64()*2-1)*s.Config.JitterDegrees,
		Longitude:        s.Config.CentroidLongitude + (s.Random.Float64()*2-1)*s.Config.JitterDegrees,
		Speed:            float64(40 + s.Random.IntN(60)),
		Heading:          float64(s.Random.IntN(360)),
		StationID:        nextStop.StationID,
		EstimatedArrival: &estimatedArrival,
		Accuracy:         float64(5 + s.Random.IntN(11)),
	}, nil
}

// FindNextStop is the first stop whose departure clock time is after now
func FindNextStop(schedule []railway.ScheduleEntry, now time.Time) *railway.ScheduleEntry {
	clock := util.FormatClock(now)

	for i := range schedule {
		if schedule[i].ScheduledDeparture() > clock {
			return &schedule[i]
		}
	}

	return nil
}

// FutureStops are every stop whose arrival clock time is after now, origins use their departure
func FutureStops(schedule []railway.ScheduleEntry, now time.Time) []railway.ScheduleEntry {
	clock := util.FormatClock(now)

	var stops []railway.ScheduleEntry
	for _, entry := range schedule {
		if entry.ScheduledArrival() > clock {
			stops = append(stops, entry)
		}
	}

	return stops
}
