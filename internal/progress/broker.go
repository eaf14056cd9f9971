// Package progress fans out per-task progress events to WebSocket
// subscribers. It is best-effort: a slow or absent subscriber never blocks
// the worker publishing an event (spec.md §4.9).
package progress

import (
	"sync"

	"github.com/docengine/itdoc/internal/domain"
)

// bufferSize bounds how many events a subscriber channel holds before the
// broker starts dropping the oldest to keep publishing non-blocking.
const bufferSize = 16

type topic struct {
	mu       sync.Mutex
	subs     map[int]chan domain.ProgressEvent
	nextSub  int
	lastSeen domain.ProgressEvent
	hasLast  bool
}

// Broker holds one topic per task_id and implements views.ProgressPublisher.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

// New returns an empty Broker.
func New() *Broker {
	return &Broker{topics: make(map[string]*topic)}
}

// Publish pushes an event to every current subscriber of event.TaskID,
// dropping the oldest buffered event for a subscriber that is falling
// behind rather than blocking the caller.
func (b *Broker) Publish(event domain.ProgressEvent) {
	t := b.topicFor(event.TaskID)

	t.mu.Lock()
	t.lastSeen = event
	t.hasLast = true
	for _, ch := range t.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	t.mu.Unlock()
}

// Subscribe registers a new listener for taskID and returns a channel of
// events plus an unsubscribe function. A late subscriber immediately
// receives the most recent event for that task, if any, so it is never
// left without state (spec.md §4.9).
func (b *Broker) Subscribe(taskID string) (<-chan domain.ProgressEvent, func()) {
	t := b.topicFor(taskID)

	ch := make(chan domain.ProgressEvent, bufferSize)

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	if t.hasLast {
		ch <- t.lastSeen
	}
	t.mu.Unlock()

	unsubscribe := func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
	return ch, unsubscribe
}

func (b *Broker) topicFor(taskID string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[taskID]
	if !ok {
		t = &topic{subs: make(map[int]chan domain.ProgressEvent)}
		b.topics[taskID] = t
	}
	return t
}

// DropTopic removes a task's topic once its processing is terminal, so the
// broker does not grow unbounded across the document's lifetime.
func (b *Broker) DropTopic(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, taskID)
}
