package tracking

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/store"
	"github.com/travigo/smartrail/pkg/util"
)

type DelayThresholds struct {
	EventMinutes      int
	EscalationMinutes int
}

type DelayDetector struct {
	Trains      store.TrainStore
	Broadcaster Broadcaster
	Events      EventPublisher

	Thresholds DelayThresholds
	Random     *util.Random
	Location   *time.Location
	Now        func() time.Time
}

// DelayMinutes compares the estimate with the stop's scheduled arrival on the estimate's calendar day
func (d *DelayDetector) DelayMinutes(stop railway.ScheduleEntry, estimatedArrival time.Time) (float64, time.Time, error) {
	estimatedArrival = estimatedArrival.In(d.Location)

	scheduledArrival, err := util.AddClockToDate(estimatedArrival, stop.ScheduledArrival())
	if err != nil {
		return 0, time.Time{}, err
	}

	return util.MinutesBetween(scheduledArrival, estimatedArrival), scheduledArrival, nil
}

// Evaluate raises a delay event past the event threshold and escalates the
// train to delayed past the escalation threshold. train.Status is updated in place.
func (d *DelayDetector) Evaluate(ctx context.Context, train *railway.Train, stop railway.ScheduleEntry, estimatedArrival time.Time) (*railway.DelayEvent, error) {
	delayMinutes, scheduledArrival, err := d.DelayMinutes(stop, estimatedArrival)
	if err != nil {
		return nil, err
	}

	if delayMinutes <= float64(d.Thresholds.EventMinutes) {
		return nil, nil
	}

	event := &railway.DelayEvent{
		TrainID:          train.ID,
		TrainNumber:      train.Number,
		TrainName:        train.Name,
		StationID:        stop.StationID,
		StationName:      stop.StationName,
		ScheduledArrival: scheduledArrival,
		EstimatedArrival: estimatedArrival.In(d.Location),
		DelayMinutes:     int(math.Round(delayMinutes)),
		Reason:           util.Pick(d.Random, railway.DelayReasons),
	}

	if delayMinutes > float64(d.Thresholds.EscalationMinutes) && train.Status != railway.TrainStatusDelayed {
		if err := d.Trains.UpdateStatus(ctx, train.ID, railway.TrainStatusDelayed); err != nil {
			return nil, fmt.Errorf("escalating train %d: %w: %w", train.ID, railway.ErrPersistence, err)
		}
		train.Status = railway.TrainStatusDelayed
		event.Escalated = true

		d.publish(railway.EventTypeTrainStatusChanged, railway.TrainStatusChange{
			TrainID:     train.ID,
			TrainNumber: train.Number,
			Status:      railway.TrainStatusDelayed,
		})
	}

	d.Broadcaster.BroadcastTrainDelay(event)
	d.publish(railway.EventTypeTrainDelayed, event)

	log.Info().
		Int64("train", train.ID).
		Str("number", train.Number).
		Int64("station", stop.StationID).
		Int("delay", event.DelayMinutes).
		Bool("escalated", event.Escalated).
		Msg("Delay alert")

	return event, nil
}

func (d *DelayDetector) publish(eventType railway.EventType, body interface{}) {
	if d.Events == nil {
		return
	}

	event, err := railway.NewEvent(eventType, body, d.Now())
	if err != nil {
		log.Error().Err(err).Str("type", string(eventType)).Msg("Failed to build event")
		return
	}

	if err := d.Events.Publish(event); err != nil {
		log.Error().Err(err).Str("type", string(eventType)).Msg("Failed to publish event")
	}
}
