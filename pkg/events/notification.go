package events

import (
	"context"
	"encoding/json"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/store"
)

type Notifier interface {
	SendUserNotification(userID int64, notification railway.EventNotificationData)
}

// NotifyBatchConsumer tells every user with a confirmed booking on the train about delays and status changes
type NotifyBatchConsumer struct {
	Bookings store.BookingStore
	Notifier Notifier
}

func NewNotifyBatchConsumer(bookings store.BookingStore, notifier Notifier) *NotifyBatchConsumer {
	return &NotifyBatchConsumer{
		Bookings: bookings,
		Notifier: notifier,
	}
}

func (c *NotifyBatchConsumer) Consume(batch rmq.Deliveries) {
	payloads := batch.Payloads()

	for _, payload := range payloads {
		var event railway.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Error().Err(err).Msg("Failed to decode event")
			continue
		}

		if err := c.handleEvent(context.Background(), &event); err != nil {
			log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to handle event")
		}
	}

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack event")
		}
	}
}

func (c *NotifyBatchConsumer) handleEvent(ctx context.Context, event *railway.Event) error {
	var trainID int64

	switch event.Type {
	case railway.EventTypeTrainDelayed, railway.EventTypeTrainStatusChanged:
		var body struct {
			TrainID int64 `json:"trainId"`
		}
		if err := json.Unmarshal(event.Body, &body); err != nil {
			return err
		}
		trainID = body.TrainID
	default:
		log.Debug().Str("type", string(event.Type)).Msg("Ignoring event")
		return nil
	}

	notificationData, err := event.GetNotificationData()
	if err != nil {
		return err
	}

	bookings, err := c.Bookings.FindBookingsForTrain(ctx, trainID, railway.BookingStatusConfirmed)
	if err != nil {
		return err
	}

	notified := map[int64]bool{}
	for _, booking := range bookings {
		if notified[booking.UserID] {
			continue
		}
		notified[booking.UserID] = true

		c.Notifier.SendUserNotification(booking.UserID, notificationData)
	}

	log.Info().Int64("train", trainID).Int("users", len(notified)).Str("type", string(event.Type)).Msg("Sent notifications")

	return nil
}
