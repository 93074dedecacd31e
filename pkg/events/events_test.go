package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/store"
)

type recordingNotifier struct {
	mutex         sync.Mutex
	notifications map[int64][]railway.EventNotificationData
}

func (r *recordingNotifier) SendUserNotification(userID int64, notification railway.EventNotificationData) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.notifications == nil {
		r.notifications = map[int64][]railway.EventNotificationData{}
	}
	r.notifications[userID] = append(r.notifications[userID], notification)
}

func newBookingStore() *store.MemoryStore {
	memoryStore := store.NewMemoryStore()
	memoryStore.AddBooking(railway.Booking{ID: 1, UserID: 10, TrainID: 7, Status: railway.BookingStatusConfirmed})
	memoryStore.AddBooking(railway.Booking{ID: 2, UserID: 10, TrainID: 7, Status: railway.BookingStatusConfirmed})
	memoryStore.AddBooking(railway.Booking{ID: 3, UserID: 11, TrainID: 7, Status: railway.BookingStatusCancelled})
	memoryStore.AddBooking(railway.Booking{ID: 4, UserID: 12, TrainID: 8, Status: railway.BookingStatusConfirmed})

	return memoryStore
}

func delivery(t *testing.T, eventType railway.EventType, body interface{}) *rmq.TestDelivery {
	t.Helper()

	event, err := railway.NewEvent(eventType, body, time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	eventBytes, err := json.Marshal(event)
	require.NoError(t, err)

	return rmq.NewTestDeliveryString(string(eventBytes))
}

func TestNotifyConsumerNotifiesConfirmedBookings(t *testing.T) {
	notifier := &recordingNotifier{}
	consumer := NewNotifyBatchConsumer(newBookingStore(), notifier)

	delayed := delivery(t, railway.EventTypeTrainDelayed, railway.DelayEvent{
		TrainID:      7,
		TrainNumber:  "1015",
		TrainName:    "Yal Devi",
		StationName:  "Kandy",
		DelayMinutes: 12,
		Reason:       "Signal failure",
	})
	refreshed := delivery(t, railway.EventTypePredictionRefreshed, map[string]int{"trainId": 7})
	garbage := rmq.NewTestDeliveryString("not json")

	consumer.Consume(rmq.Deliveries{delayed, refreshed, garbage})

	require.Len(t, notifier.notifications, 1)
	require.Len(t, notifier.notifications[10], 1)
	assert.Equal(t, "Train delayed", notifier.notifications[10][0].Title)
	assert.Equal(t, "Train 1015 Yal Devi is running 12 minutes late at Kandy (Signal failure).", notifier.notifications[10][0].Message)

	assert.Equal(t, rmq.Acked, delayed.State)
	assert.Equal(t, rmq.Acked, refreshed.State)
	assert.Equal(t, rmq.Acked, garbage.State)
}

func TestNotifyConsumerStatusChange(t *testing.T) {
	notifier := &recordingNotifier{}
	consumer := NewNotifyBatchConsumer(newBookingStore(), notifier)

	consumer.Consume(rmq.Deliveries{delivery(t, railway.EventTypeTrainStatusChanged, railway.TrainStatusChange{
		TrainID:     8,
		TrainNumber: "4077",
		Status:      railway.TrainStatusDelayed,
	})})

	require.Len(t, notifier.notifications[12], 1)
	assert.Equal(t, "Train 4077 is now delayed.", notifier.notifications[12][0].Message)
}

func TestPublisherQueuesEvents(t *testing.T) {
	connection := rmq.NewTestConnection()

	publisher, err := NewPublisher(connection, "smartrail-events")
	require.NoError(t, err)

	event, err := railway.NewEvent(railway.EventTypeTrainDelayed, railway.DelayEvent{TrainID: 7}, time.Now())
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(event))

	deliveries := connection.GetDeliveries("smartrail-events")
	require.Len(t, deliveries, 1)

	var queued railway.Event
	require.NoError(t, json.Unmarshal([]byte(deliveries[0]), &queued))
	assert.Equal(t, railway.EventTypeTrainDelayed, queued.Type)
}
