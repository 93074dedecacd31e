package tracking

import (
	"context"

	"github.com/travigo/smartrail/pkg/railway"
)

// PositionSource yields the next raw sample for a train.
// A nil sample with a nil error means there is nothing to record this tick.
type PositionSource interface {
	NextSample(ctx context.Context, train *railway.Train) (*railway.TrackingSample, error)
}

type Broadcaster interface {
	BroadcastTrainLocation(trainID int64, sample *railway.TrackingSample)
	BroadcastTrainDelay(event *railway.DelayEvent)
}

type EventPublisher interface {
	Publish(event *railway.Event) error
}
