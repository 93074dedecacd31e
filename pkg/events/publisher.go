package events

import (
	"encoding/json"

	"github.com/adjust/rmq/v5"
	"github.com/travigo/smartrail/pkg/railway"
)

// Publisher queues events for the notification consumers
type Publisher struct {
	Queue rmq.Queue
}

func NewPublisher(connection rmq.Connection, queueName string) (*Publisher, error) {
	queue, err := connection.OpenQueue(queueName)
	if err != nil {
		return nil, err
	}

	return &Publisher{Queue: queue}, nil
}

func (p *Publisher) Publish(event *railway.Event) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Queue.PublishBytes(eventBytes)
}

// DiscardPublisher is used when no queue is configured
type DiscardPublisher struct{}

func (DiscardPublisher) Publish(event *railway.Event) error {
	return nil
}
