// Package notify carries "data changed" signals between the persistence
// layer and the views that render derived data. A signal never describes
// what changed beyond a hint; receivers always refetch everything.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DataUpdated is the only event type on the channel.
const DataUpdated = "dataUpdated"

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpImport = "import"
)

// Event is the change signal. Kind and Op are hints for logging only.
type Event struct {
	Type   string    `json:"type"`
	Kind   string    `json:"kind,omitempty"`
	Op     string    `json:"op,omitempty"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	if e.Type == "" {
		e.Type = DataUpdated
	}
	return e, nil
}

// Handler receives events. It runs on the publisher's goroutine.
type Handler func(ctx context.Context, e Event)

// Remote forwards local events to other running instances.
type Remote interface {
	Broadcast(ctx context.Context, e Event) error
}

// Bus keeps an explicit list of subscribers and an optional remote.
type Bus struct {
	mu     sync.RWMutex
	source string
	nextID int
	subs   map[int]Handler
	order  []int
	remote Remote
}

// NewBus returns a bus tagged with a fresh instance id.
func NewBus() *Bus {
	return &Bus{
		source: uuid.NewString(),
		subs:   make(map[int]Handler),
	}
}

// Source identifies this instance on the remote channel.
func (b *Bus) Source() string {
	return b.source
}

// SetRemote attaches (or with nil detaches) the cross-instance broadcaster.
func (b *Bus) SetRemote(r Remote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remote = r
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish stamps e as coming from this instance, delivers it locally and
// forwards it to the remote. Remote failures are logged, never returned:
// the local write has already happened.
func (b *Bus) Publish(ctx context.Context, e Event) {
	e.Type = DataUpdated
	e.Source = b.source
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.deliver(ctx, e)

	b.mu.RLock()
	remote := b.remote
	b.mu.RUnlock()
	if remote == nil {
		return
	}
	if err := remote.Broadcast(ctx, e); err != nil {
		slog.WarnContext(ctx, "Failed to broadcast change to other instances",
			"error", err, "kind", e.Kind, "op", e.Op)
	}
}

// Deliver hands an event that arrived from another instance to the local
// subscribers. Events carrying this instance's own source are dropped.
func (b *Bus) Deliver(ctx context.Context, e Event) bool {
	if e.Source == b.source {
		return false
	}
	b.deliver(ctx, e)
	return true
}

func (b *Bus) deliver(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
}
