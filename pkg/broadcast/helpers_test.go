package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC)

type staticAuthenticator map[string]string

func (a staticAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	userID, exists := a[token]
	if !exists {
		return "", errors.New("invalid token")
	}

	return userID, nil
}

type recordingSender struct {
	received chan []byte

	mutex  sync.Mutex
	closed bool
	fail   bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{received: make(chan []byte, 64)}
}

func (s *recordingSender) Send(payload []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.fail {
		return errors.New("broken pipe")
	}

	s.received <- payload
	return nil
}

func (s *recordingSender) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.closed = true
	return nil
}

func (s *recordingSender) isClosed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.closed
}

func (s *recordingSender) next(t *testing.T) Message {
	t.Helper()

	select {
	case payload := <-s.received:
		var message Message
		require.NoError(t, json.Unmarshal(payload, &message))
		return message
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func newTestHub() *Hub {
	hub := NewHub(staticAuthenticator{"alice-token": "alice", "bob-token": "bob"}, 16)
	hub.Now = func() time.Time { return testNow }

	return hub
}
