package broadcast

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ClientMessage is what clients send, data carries the train, station or booking id
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type clientAction struct {
	topic     func(int64) Topic
	subscribe bool
}

var clientActions = map[string]clientAction{
	"subscribe_train_tracking":    {topic: TrainTopic, subscribe: true},
	"unsubscribe_train_tracking":  {topic: TrainTopic, subscribe: false},
	"subscribe_station_alerts":    {topic: StationTopic, subscribe: true},
	"unsubscribe_station_alerts":  {topic: StationTopic, subscribe: false},
	"subscribe_booking_updates":   {topic: BookingTopic, subscribe: true},
	"unsubscribe_booking_updates": {topic: BookingTopic, subscribe: false},
}

// HandleClientMessage applies a raw client frame to the connection's subscriptions
func (h *Hub) HandleClientMessage(connection *Connection, raw []byte) error {
	var message ClientMessage
	if err := json.Unmarshal(raw, &message); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	action, exists := clientActions[message.Event]
	if !exists {
		return fmt.Errorf("unknown event %q", message.Event)
	}

	id, err := parseID(message.Data)
	if err != nil {
		return err
	}

	if action.subscribe {
		return h.Subscribe(connection, action.topic(id))
	}
	return h.Unsubscribe(connection, action.topic(id))
}

// parseID accepts both 5 and "5"
func parseID(data json.RawMessage) (int64, error) {
	value := strings.Trim(strings.TrimSpace(string(data)), `"`)

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", value)
	}

	return id, nil
}
