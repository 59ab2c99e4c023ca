package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// Message is one publish recorded by MockBroker.
type Message struct {
	Topic   string
	Payload string
	Retain  bool
}

// MockBroker is an in-memory broker that records every publish. It matches
// the Publish signature of the relay's broker clients. Safe for concurrent use.
type MockBroker struct {
	mu       sync.RWMutex
	messages []Message
	failures map[string]error
	failAll  error
	closed   bool
}

// NewMockBroker creates an empty mock broker.
func NewMockBroker() *MockBroker {
	return &MockBroker{
		failures: make(map[string]error),
	}
}

// Publish records the message or returns the injected failure.
func (b *MockBroker) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("broker is closed")
	}
	if b.failAll != nil {
		return b.failAll
	}
	if err, ok := b.failures[topic]; ok {
		return err
	}

	b.messages = append(b.messages, Message{Topic: topic, Payload: string(payload), Retain: retain})
	return nil
}

// FailWith makes every publish return err. A nil err clears it.
func (b *MockBroker) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAll = err
}

// FailTopic makes publishes to topic return err.
func (b *MockBroker) FailTopic(topic string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[topic] = err
}

// Messages returns a copy of every recorded publish in order.
func (b *MockBroker) Messages() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Message, len(b.messages))
	copy(result, b.messages)
	return result
}

// GetMessagesByTopic returns the recorded publishes to topic.
func (b *MockBroker) GetMessagesByTopic(topic string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Message
	for _, m := range b.messages {
		if m.Topic == topic {
			result = append(result, m)
		}
	}
	return result
}

// Last returns the most recent payload published to topic.
func (b *MockBroker) Last(topic string) (Message, bool) {
	msgs := b.GetMessagesByTopic(topic)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Count returns the number of recorded publishes.
func (b *MockBroker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// Clear drops all recorded publishes.
func (b *MockBroker) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

// Close makes further publishes fail.
func (b *MockBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// WaitForMessages waits until at least count publishes were recorded.
func (b *MockBroker) WaitForMessages(t *testing.T, count int, timeout time.Duration) []Message {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if msgs := b.Messages(); len(msgs) >= count {
			return msgs
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs := b.Messages()
	t.Fatalf("timeout waiting for %d messages, got %d", count, len(msgs))
	return msgs
}
