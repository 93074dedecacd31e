package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/smartrail/pkg/railway"
)

func connect(t *testing.T, hub *Hub, token string) (*Connection, *recordingSender) {
	t.Helper()

	sender := newRecordingSender()
	connection, err := hub.Connect(context.Background(), token, sender)
	require.NoError(t, err)

	welcome := sender.next(t)
	require.Equal(t, EventConnected, welcome.Event)

	return connection, sender
}

type blockingSender struct {
	release chan struct{}
}

func (s *blockingSender) Send(payload []byte) error {
	<-s.release
	return nil
}

func (s *blockingSender) Close() error {
	return nil
}

func TestConnectRejectsInvalidToken(t *testing.T) {
	hub := newTestHub()

	_, err := hub.Connect(context.Background(), "", newRecordingSender())
	assert.ErrorIs(t, err, railway.ErrAuthentication)

	_, err = hub.Connect(context.Background(), "forged", newRecordingSender())
	assert.ErrorIs(t, err, railway.ErrAuthentication)

	assert.Equal(t, 0, hub.ConnectedUsers())
	assert.Equal(t, 0, hub.TopicCount())
}

func TestConnectSubscribesUserTopic(t *testing.T) {
	hub := newTestHub()

	connection, _ := connect(t, hub, "alice-token")

	assert.Equal(t, StateAuthenticated, connection.State())
	assert.Equal(t, "alice", connection.UserID)
	assert.True(t, hub.IsUserConnected("alice"))
	assert.False(t, hub.IsUserConnected("bob"))
	assert.Equal(t, 1, hub.TopicSize(UserTopic("alice")))
}

func TestPublishOnlyReachesTopicSubscribers(t *testing.T) {
	hub := newTestHub()
	connection, sender := connect(t, hub, "alice-token")

	require.NoError(t, hub.Subscribe(connection, TrainTopic(5)))
	require.NoError(t, hub.Subscribe(connection, TrainTopic(5)))
	assert.Equal(t, 1, hub.TopicSize(TrainTopic(5)))

	hub.BroadcastTrainLocation(6, &railway.TrackingSample{TrainID: 6, Latitude: 1})
	hub.BroadcastTrainLocation(5, &railway.TrackingSample{TrainID: 5, Latitude: 2})

	message := sender.next(t)
	assert.Equal(t, EventTrainLocation, message.Event)
	assert.EqualValues(t, 5, message.Data.(map[string]interface{})["trainId"])

	require.NoError(t, hub.Unsubscribe(connection, TrainTopic(5)))
	require.NoError(t, hub.Unsubscribe(connection, TrainTopic(5)))
	assert.Equal(t, 0, hub.TopicSize(TrainTopic(5)))

	hub.BroadcastTrainLocation(5, &railway.TrackingSample{TrainID: 5})
	hub.Publish(UserTopic("alice"), EventNotification, NotificationMessage{
		EventNotificationData: railway.EventNotificationData{Title: "marker"},
	})

	message = sender.next(t)
	assert.Equal(t, EventNotification, message.Event)
}

func TestDisconnectRemovesEveryMembership(t *testing.T) {
	hub := newTestHub()
	connection, sender := connect(t, hub, "alice-token")

	require.NoError(t, hub.Subscribe(connection, TrainTopic(5)))
	require.NoError(t, hub.Subscribe(connection, StationTopic(12)))

	hub.Disconnect(connection)
	hub.Disconnect(connection)

	<-connection.Done()

	assert.Equal(t, StateDisconnected, connection.State())
	assert.Equal(t, 0, hub.TopicCount())
	assert.False(t, hub.IsUserConnected("alice"))
	assert.True(t, sender.isClosed())

	assert.Equal(t, 0, hub.DeliverLocal(TrainTopic(5), []byte(`{}`), false))

	assert.ErrorIs(t, hub.Subscribe(connection, TrainTopic(5)), railway.ErrAuthentication)
	assert.ErrorIs(t, hub.Unsubscribe(connection, TrainTopic(5)), railway.ErrAuthentication)
}

func TestFailingSenderIsDisconnected(t *testing.T) {
	hub := newTestHub()
	connection, sender := connect(t, hub, "alice-token")
	other, otherSender := connect(t, hub, "bob-token")

	require.NoError(t, hub.Subscribe(connection, TrainTopic(5)))
	require.NoError(t, hub.Subscribe(other, TrainTopic(5)))

	sender.mutex.Lock()
	sender.fail = true
	sender.mutex.Unlock()

	hub.BroadcastTrainLocation(5, &railway.TrackingSample{TrainID: 5})

	assert.Equal(t, EventTrainLocation, otherSender.next(t).Event)

	<-connection.Done()
	assert.Eventually(t, func() bool {
		return hub.TopicSize(TrainTopic(5)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestFullBufferDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(staticAuthenticator{"alice-token": "alice"}, 1)

	blocked := &blockingSender{release: make(chan struct{})}
	connection, err := hub.Connect(context.Background(), "alice-token", blocked)
	require.NoError(t, err)
	require.NoError(t, hub.Subscribe(connection, TrainTopic(5)))

	for i := 0; i < 10; i++ {
		hub.BroadcastTrainLocation(5, &railway.TrackingSample{TrainID: 5})
	}

	assert.Greater(t, hub.Dropped(), int64(0))

	close(blocked.release)
	hub.Disconnect(connection)
	<-connection.Done()
}

func TestBroadcastHelpersUseTopics(t *testing.T) {
	hub := newTestHub()
	connection, sender := connect(t, hub, "alice-token")

	require.NoError(t, hub.Subscribe(connection, StationTopic(12)))
	require.NoError(t, hub.Subscribe(connection, BookingTopic(3)))

	hub.BroadcastStationAnnouncement(12, "Platform 2")
	message := sender.next(t)
	assert.Equal(t, EventStationAnnouncement, message.Event)
	assert.Equal(t, "Platform 2", message.Data.(map[string]interface{})["announcement"])

	hub.BroadcastPrediction(&railway.Prediction{TrainID: 7, StationID: 12})
	assert.Equal(t, EventPrediction, sender.next(t).Event)

	hub.SendBookingUpdate(&railway.Booking{ID: 3, UserID: 99})
	assert.Equal(t, EventBookingUpdate, sender.next(t).Event)

	hub.BroadcastSystemAnnouncement("maintenance tonight")
	assert.Equal(t, EventSystemAnnouncement, sender.next(t).Event)

	hub.BroadcastTrainDelay(&railway.DelayEvent{TrainID: 7, DelayMinutes: 9})
	hub.SendUserNotification(99, railway.EventNotificationData{Title: "not for alice"})
	hub.Publish(UserTopic("alice"), EventNotification, nil)
	assert.Equal(t, EventNotification, sender.next(t).Event)
}

func TestHandleClientMessage(t *testing.T) {
	hub := newTestHub()
	connection, _ := connect(t, hub, "alice-token")

	require.NoError(t, hub.HandleClientMessage(connection, []byte(`{"event":"subscribe_train_tracking","data":5}`)))
	require.NoError(t, hub.HandleClientMessage(connection, []byte(`{"event":"subscribe_station_alerts","data":"12"}`)))
	require.NoError(t, hub.HandleClientMessage(connection, []byte(`{"event":"subscribe_booking_updates","data":3}`)))

	assert.Equal(t, 1, hub.TopicSize(TrainTopic(5)))
	assert.Equal(t, 1, hub.TopicSize(StationTopic(12)))
	assert.Equal(t, 1, hub.TopicSize(BookingTopic(3)))

	require.NoError(t, hub.HandleClientMessage(connection, []byte(`{"event":"unsubscribe_train_tracking","data":5}`)))
	assert.Equal(t, 0, hub.TopicSize(TrainTopic(5)))

	assert.Error(t, hub.HandleClientMessage(connection, []byte(`{"event":"dance","data":5}`)))
	assert.Error(t, hub.HandleClientMessage(connection, []byte(`{"event":"subscribe_train_tracking","data":"five"}`)))
	assert.Error(t, hub.HandleClientMessage(connection, []byte(`not json`)))
}

func TestCloseDisconnectsEveryone(t *testing.T) {
	hub := newTestHub()
	first, _ := connect(t, hub, "alice-token")
	second, _ := connect(t, hub, "bob-token")

	hub.Close()

	<-first.Done()
	<-second.Done()
	assert.Equal(t, 0, hub.ConnectedUsers())
}
