package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	payload []byte
	readyAt time.Time
}

// MemoryQueue is an in-memory queue for standalone nodes and tests.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string][]memoryEntry
	now    func() time.Time
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		queues: make(map[string][]memoryEntry),
		now:    time.Now,
	}
}

// Put places one message on the named queue
func (q *MemoryQueue) Put(ctx context.Context, queueName string, msg interface{}, delay time.Duration) error {
	return q.PutRange(ctx, queueName, []interface{}{msg}, delay)
}

// PutRange places many messages on the named queue
func (q *MemoryQueue) PutRange(ctx context.Context, queueName string, msgs []interface{}, delay time.Duration) error {
	entries := make([]memoryEntry, 0, len(msgs))
	readyAt := q.now().Add(delay)
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message for %s: %w", queueName, err)
		}
		entries = append(entries, memoryEntry{payload: data, readyAt: readyAt})
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[queueName] = append(q.queues[queueName], entries...)
	return nil
}

// Pop removes and returns the oldest visible message, or nil when the
// queue is empty. Used by tests and local consumers only.
func (q *MemoryQueue) Pop(queueName string) []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.queues[queueName]
	now := q.now()
	for i, e := range entries {
		if !e.readyAt.After(now) {
			q.queues[queueName] = append(entries[:i:i], entries[i+1:]...)
			return e.payload
		}
	}
	return nil
}

// Len returns the number of messages (visible or not) on the queue
func (q *MemoryQueue) Len(queueName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queueName])
}

// Close is a no-op
func (q *MemoryQueue) Close() error { return nil }
