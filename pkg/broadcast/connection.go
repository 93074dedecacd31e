package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sender is the transport side of a connection
type Sender interface {
	Send(payload []byte) error
	Close() error
}

type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateAuthenticated
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Connection is one subscriber. Payloads are queued on a bounded buffer and
// written by a single goroutine so a slow client never blocks a publish.
type Connection struct {
	ID     string
	UserID string

	hub    *Hub
	sender Sender

	mutex sync.RWMutex
	state ConnectionState
	send  chan []byte

	done chan struct{}
}

func newConnection(hub *Hub, userID string, sender Sender, bufferSize int) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    hub,
		sender: sender,
		state:  StateConnecting,
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Connection) State() ConnectionState {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.state
}

func (c *Connection) setState(state ConnectionState) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.state = state
}

// Done is closed once the writer has flushed and closed the transport
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// enqueue never blocks, a full buffer or closed connection drops the payload
func (c *Connection) enqueue(payload []byte) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.state == StateDisconnected {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close returns false when the connection was already closed
func (c *Connection) close() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state == StateDisconnected {
		return false
	}

	c.state = StateDisconnected
	close(c.send)

	return true
}

func (c *Connection) writeLoop() {
	defer close(c.done)

	failed := false
	for payload := range c.send {
		if failed {
			continue
		}

		if err := c.sender.Send(payload); err != nil {
			log.Debug().Err(err).Str("connection", c.ID).Msg("Failed to write to connection")
			failed = true

			go c.hub.Disconnect(c)
		}
	}

	if err := c.sender.Close(); err != nil {
		log.Debug().Err(err).Str("connection", c.ID).Msg("Failed to close connection")
	}
}
