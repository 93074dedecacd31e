package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	relayPublishTimeout = 2 * time.Second
	relayBufferSize     = 256
)

type relayMessage struct {
	Origin   string          `json:"origin"`
	Topic    Topic           `json:"topic"`
	Everyone bool            `json:"everyone"`
	Payload  json.RawMessage `json:"payload"`
}

// Relay shares broadcasts between processes over a redis pub/sub channel.
// Messages carry an origin id so a process never re-delivers its own publishes.
type Relay struct {
	Client  *redis.Client
	Channel string
	Hub     *Hub

	origin   string
	outbound chan []byte
	stop     chan struct{}
	stopOnce sync.Once

	pubsub        *redis.PubSub
	done          chan struct{}
	publisherDone chan struct{}
}

func NewRelay(client *redis.Client, channel string, hub *Hub) *Relay {
	return &Relay{
		Client:   client,
		Channel:  channel,
		Hub:      hub,
		origin:   uuid.NewString(),
		outbound: make(chan []byte, relayBufferSize),
		stop:     make(chan struct{}),
	}
}

// Forward queues the message for the publisher and never blocks the broadcasting caller.
// Messages are dropped while the queue is full.

func (r *Relay) Forward(topic Topic, payload []byte, everyone bool) {
	message, err := json.Marshal(relayMessage{
		Origin:   r.origin,
		Topic:    topic,
		Everyone: everyone,
		Payload:  payload,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode relay message")
		return
	}

	select {
	case r.outbound <- message:
	default:
		log.Warn().Str("channel", r.Channel).Str("topic", string(topic)).Msg("Relay queue full, dropping broadcast")
	}
}

func (r *Relay) publish() {
	defer close(r.publisherDone)

	for {
		select {
		case <-r.stop:
			return
		case message := <-r.outbound:
			ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
			if err := r.Client.Publish(ctx, r.Channel, message).Err(); err != nil {
				log.Error().Err(err).Str("channel", r.Channel).Msg("Failed to relay broadcast")
			}
			cancel()
		}
	}
}

// Start subscribes and returns once the subscription is confirmed
func (r *Relay) Start(ctx context.Context) error {
	r.pubsub = r.Client.Subscribe(ctx, r.Channel)
	if _, err := r.pubsub.Receive(ctx); err != nil {
		r.pubsub.Close()
		return err
	}

	r.done = make(chan struct{})
	go r.run()

	r.publisherDone = make(chan struct{})
	go r.publish()

	log.Info().Str("channel", r.Channel).Msg("Broadcast relay started")
	return nil
}

func (r *Relay) run() {
	defer close(r.done)

	for received := range r.pubsub.Channel() {
		var message relayMessage
		if err := json.Unmarshal([]byte(received.Payload), &message); err != nil {
			log.Error().Err(err).Msg("Failed to decode relay message")
			continue
		}

		if message.Origin == r.origin {
			continue
		}

		r.Hub.DeliverLocal(message.Topic, message.Payload, message.Everyone)
	}
}

func (r *Relay) Stop() error {
	if r.pubsub == nil {
		return nil
	}

	r.stopOnce.Do(func() { close(r.stop) })
	<-r.publisherDone

	err := r.pubsub.Close()
	<-r.done

	return err
}
