package railway

import (
	"encoding/json"
	"fmt"
	"time"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Body      json.RawMessage
}

type EventType string

const (
	EventTypeTrainDelayed        EventType = "TrainDelayed"
	EventTypeTrainStatusChanged  EventType = "TrainStatusChanged"
	EventTypePredictionRefreshed EventType = "PredictionRefreshed"
)

func NewEvent(eventType EventType, body interface{}, timestamp time.Time) (*Event, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	return &Event{
		Type:      eventType,
		Timestamp: timestamp,
		Body:      bodyBytes,
	}, nil
}

func (e *Event) GetNotificationData() (EventNotificationData, error) {
	eventNotificationData := EventNotificationData{}

	switch e.Type {
	case EventTypeTrainDelayed:
		var delay DelayEvent
		if err := json.Unmarshal(e.Body, &delay); err != nil {
			return eventNotificationData, err
		}

		eventNotificationData.Title = "Train delayed"
		eventNotificationData.Message = fmt.Sprintf(
			"Train %s %s is running %d minutes late at %s (%s).",
			delay.TrainNumber, delay.TrainName, delay.DelayMinutes, delay.StationName, delay.Reason,
		)
	case EventTypeTrainStatusChanged:
		var change TrainStatusChange
		if err := json.Unmarshal(e.Body, &change); err != nil {
			return eventNotificationData, err
		}

		eventNotificationData.Title = "Train status update"
		eventNotificationData.Message = fmt.Sprintf("Train %s is now %s.", change.TrainNumber, change.Status)
	default:
		return eventNotificationData, fmt.Errorf("no notification for event type %s", e.Type)
	}

	return eventNotificationData, nil
}

type TrainStatusChange struct {
	TrainID     int64       `json:"trainId"`
	TrainNumber string      `json:"trainNumber"`
	Status      TrainStatus `json:"status"`
}

type EventNotificationData struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
