// Package queue provides a small persistent FIFO used to defer
// notification sending. Messages survive in the backing store until a
// worker drains them; the Redis implementation is used in production
// and the in-memory one in tests and single-process setups.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one queued unit of work
type Message struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewMessage wraps a payload into a Message with a fresh id
func NewMessage(kind string, payload interface{}) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Queue is a persistent FIFO keyed by message id
type Queue interface {
	Enqueue(ctx context.Context, msg *Message) error
	// Dequeue pops the oldest message, returning (nil, nil) when empty
	Dequeue(ctx context.Context) (*Message, error)
	// Peek returns a queued message by id without removing it
	Peek(ctx context.Context, id string) (*Message, error)
	Len(ctx context.Context) (int64, error)
}

// Memory is an in-process Queue
type Memory struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*Message
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]*Message)}
}

func (m *Memory) Enqueue(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = append(m.order, msg.ID)
	m.byID[msg.ID] = msg
	return nil
}

func (m *Memory) Dequeue(_ context.Context) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.order) > 0 {
		id := m.order[0]
		m.order = m.order[1:]
		if msg, ok := m.byID[id]; ok {
			delete(m.byID, id)
			return msg, nil
		}
	}
	return nil, nil
}

func (m *Memory) Peek(_ context.Context, id string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id], nil
}

func (m *Memory) Len(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.order)), nil
}
