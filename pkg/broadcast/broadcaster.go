package broadcast

import (
	"strconv"

	"github.com/travigo/smartrail/pkg/railway"
)

func (h *Hub) BroadcastTrainLocation(trainID int64, sample *railway.TrackingSample) {
	h.Publish(TrainTopic(trainID), EventTrainLocation, LocationMessage{
		TrainID: trainID,
		Location: LocationPayload{
			Latitude:  sample.Latitude,
			Longitude: sample.Longitude,
			Speed:     sample.Speed,
			Heading:   sample.Heading,
			StationID: sample.StationID,
			Timestamp: sample.Timestamp,
		},
		Timestamp: h.Now(),
	})
}

func (h *Hub) BroadcastTrainDelay(event *railway.DelayEvent) {
	h.Publish(TrainTopic(event.TrainID), EventTrainDelay, DelayMessage{
		TrainID:   event.TrainID,
		Delay:     event,
		Timestamp: h.Now(),
	})
}

// BroadcastPrediction goes to both the train and the station topic
func (h *Hub) BroadcastPrediction(prediction *railway.Prediction) {
	message := PredictionMessage{
		TrainID:    prediction.TrainID,
		StationID:  prediction.StationID,
		Prediction: prediction,
		Timestamp:  h.Now(),
	}

	h.Publish(TrainTopic(prediction.TrainID), EventPrediction, message)
	h.Publish(StationTopic(prediction.StationID), EventPrediction, message)
}

func (h *Hub) BroadcastStationAnnouncement(stationID int64, announcement string) {
	h.Publish(StationTopic(stationID), EventStationAnnouncement, StationAnnouncementMessage{
		StationID:    stationID,
		Announcement: announcement,
		Timestamp:    h.Now(),
	})
}

func (h *Hub) SendBookingUpdate(booking *railway.Booking) {
	message := BookingMessage{
		Booking:   booking,
		Timestamp: h.Now(),
	}

	h.Publish(BookingUserTopic(booking.UserID), EventBookingUpdate, message)
	h.Publish(BookingTopic(booking.ID), EventBookingUpdate, message)
}

func (h *Hub) SendUserNotification(userID int64, notification railway.EventNotificationData) {
	h.Publish(UserTopic(strconv.FormatInt(userID, 10)), EventNotification, NotificationMessage{
		EventNotificationData: notification,
		Timestamp:             h.Now(),
	})
}

func (h *Hub) BroadcastSystemAnnouncement(announcement string) {
	h.PublishAll(EventSystemAnnouncement, SystemAnnouncementMessage{
		Announcement: announcement,
		Timestamp:    h.Now(),
	})
}
