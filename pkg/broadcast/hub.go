package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/smartrail/pkg/railway"
)

const welcomeMessage = "Connected to SmartRail real-time service"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Forwarder carries locally published payloads to other processes
type Forwarder interface {
	Forward(topic Topic, payload []byte, everyone bool)
}

// Hub owns topic membership. Membership changes happen under the write lock,
// publishes snapshot subscribers under the read lock and deliver outside it.
type Hub struct {
	Authenticator Authenticator
	Forwarder     Forwarder
	SendBuffer    int
	Now           func() time.Time

	mutex       sync.RWMutex
	topics      map[Topic]map[*Connection]struct{}
	memberships map[*Connection]map[Topic]struct{}
	users       map[string]int

	dropped atomic.Int64
}

func NewHub(authenticator Authenticator, sendBuffer int) *Hub {
	if sendBuffer < 1 {
		sendBuffer = 1
	}

	return &Hub{
		Authenticator: authenticator,
		SendBuffer:    sendBuffer,
		Now:           time.Now,

		topics:      map[Topic]map[*Connection]struct{}{},
		memberships: map[*Connection]map[Topic]struct{}{},
		users:       map[string]int{},
	}
}

// Connect authenticates the token and registers the connection subscribed to its user topic.
// A rejected token registers nothing.
func (h *Hub) Connect(ctx context.Context, token string, sender Sender) (*Connection, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: no token provided", railway.ErrAuthentication)
	}

	userID, err := h.Authenticator.Authenticate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", railway.ErrAuthentication, err)
	}

	connection := newConnection(h, userID, sender, h.SendBuffer)
	go connection.writeLoop()

	h.mutex.Lock()
	connection.setState(StateAuthenticated)
	h.memberships[connection] = map[Topic]struct{}{}
	h.users[userID]++
	h.subscribeLocked(connection, UserTopic(userID))
	h.mutex.Unlock()

	log.Info().Str("user", userID).Str("connection", connection.ID).Msg("User connected")

	h.sendTo(connection, EventConnected, ConnectedMessage{
		Message:   welcomeMessage,
		UserID:    userID,
		Timestamp: h.Now(),
	})

	return connection, nil
}

func (h *Hub) Subscribe(connection *Connection, topic Topic) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.memberships[connection]; !exists {
		return fmt.Errorf("%w: connection is not authenticated", railway.ErrAuthentication)
	}

	h.subscribeLocked(connection, topic)

	log.Debug().Str("user", connection.UserID).Str("topic", string(topic)).Msg("Subscribed")
	return nil
}

func (h *Hub) subscribeLocked(connection *Connection, topic Topic) {
	subscribers, exists := h.topics[topic]
	if !exists {
		subscribers = map[*Connection]struct{}{}
		h.topics[topic] = subscribers
	}

	subscribers[connection] = struct{}{}
	h.memberships[connection][topic] = struct{}{}
}

func (h *Hub) Unsubscribe(connection *Connection, topic Topic) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.memberships[connection]; !exists {
		return fmt.Errorf("%w: connection is not authenticated", railway.ErrAuthentication)
	}

	h.unsubscribeLocked(connection, topic)

	log.Debug().Str("user", connection.UserID).Str("topic", string(topic)).Msg("Unsubscribed")
	return nil
}

func (h *Hub) unsubscribeLocked(connection *Connection, topic Topic) {
	if subscribers, exists := h.topics[topic]; exists {
		delete(subscribers, connection)
		if len(subscribers) == 0 {
			delete(h.topics, topic)
		}
	}

	delete(h.memberships[connection], topic)
}

// Disconnect removes the connection from every topic, calling it twice is a no-op
func (h *Hub) Disconnect(connection *Connection) {
	h.mutex.Lock()

	topics, exists := h.memberships[connection]
	if exists {
		for topic := range topics {
			h.unsubscribeLocked(connection, topic)
		}
		delete(h.memberships, connection)

		h.users[connection.UserID]--
		if h.users[connection.UserID] <= 0 {
			delete(h.users, connection.UserID)
		}
	}

	h.mutex.Unlock()

	if connection.close() {
		log.Info().Str("user", connection.UserID).Str("connection", connection.ID).Msg("User disconnected")
	}
}

// Close disconnects every connection
func (h *Hub) Close() {
	h.mutex.RLock()
	connections := make([]*Connection, 0, len(h.memberships))
	for connection := range h.memberships {
		connections = append(connections, connection)
	}
	h.mutex.RUnlock()

	for _, connection := range connections {
		h.Disconnect(connection)
	}
}

// Publish delivers to local subscribers of the topic and forwards to other processes
func (h *Hub) Publish(topic Topic, event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("topic", string(topic)).Str("event", event).Msg("Failed to encode broadcast")
		return
	}

	h.DeliverLocal(topic, payload, false)

	if h.Forwarder != nil {
		h.Forwarder.Forward(topic, payload, false)
	}
}

// PublishAll delivers to every connected client
func (h *Hub) PublishAll(event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to encode broadcast")
		return
	}

	h.DeliverLocal("", payload, true)

	if h.Forwarder != nil {
		h.Forwarder.Forward("", payload, true)
	}
}

// DeliverLocal writes an encoded payload to this process's subscribers only
func (h *Hub) DeliverLocal(topic Topic, payload []byte, everyone bool) int {
	h.mutex.RLock()
	var subscribers []*Connection
	if everyone {
		subscribers = make([]*Connection, 0, len(h.memberships))
		for connection := range h.memberships {
			subscribers = append(subscribers, connection)
		}
	} else {
		subscribers = make([]*Connection, 0, len(h.topics[topic]))
		for connection := range h.topics[topic] {
			subscribers = append(subscribers, connection)
		}
	}
	h.mutex.RUnlock()

	delivered := 0
	for _, connection := range subscribers {
		if connection.enqueue(payload) {
			delivered++
		} else {
			h.dropped.Add(1)
			log.Warn().Str("connection", connection.ID).Str("topic", string(topic)).Msg("Dropped broadcast for slow connection")
		}
	}

	return delivered
}

func (h *Hub) sendTo(connection *Connection, event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to encode message")
		return
	}

	if !connection.enqueue(payload) {
		h.dropped.Add(1)
	}
}

func (h *Hub) ConnectedUsers() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.users)
}

func (h *Hub) IsUserConnected(userID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.users[userID] > 0
}

func (h *Hub) TopicSize(topic Topic) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.topics[topic])
}

func (h *Hub) TopicCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.topics)
}

// Dropped counts payloads not delivered because a buffer was full or the connection closed
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
