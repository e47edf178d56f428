package store

import (
	"context"
	"sync"

	"github.com/realitylog/realitylog/pkg/models"
)

// Collection names a stored collection. Values match table names in every backend.
type Collection string

const (
	CollectionUsers            Collection = "users"
	CollectionParticipants     Collection = "participants"
	CollectionLocations        Collection = "locations"
	CollectionActionCategories Collection = "action_categories"
	CollectionTags             Collection = "tags"
	CollectionLogEntries       Collection = "log_entries"
)

// Collections lists every collection, in dependency order.
var Collections = []Collection{
	CollectionUsers,
	CollectionParticipants,
	CollectionLocations,
	CollectionActionCategories,
	CollectionTags,
	CollectionLogEntries,
}

// Change reports that a record in a collection was written.
// It carries no payload: consumers re-read what they need.
type Change struct {
	Collection Collection             `json:"collection"`
	Operation  models.ChangeOperation `json:"operation"`
	ID         string                 `json:"id,omitempty"`
}

// Watcher streams change notifications for a collection.
//
// The returned channel is closed when ctx is done or the underlying stream ends;
// callers that need a continuous feed call Watch again. Notifications may be
// coalesced, so a receiver must treat each one as "something changed".
type Watcher interface {
	Watch(ctx context.Context, c Collection) (<-chan Change, error)
}

// Broker fans changes out to in-process watchers.
type Broker struct {
	mu     sync.Mutex
	subs   map[Collection]map[int]chan Change
	nextID int
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[Collection]map[int]chan Change)}
}

// Publish delivers change to every watcher of its collection without blocking.
// A watcher that has not drained its previous notification keeps that one.
func (b *Broker) Publish(change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[change.Collection] {
		select {
		case ch <- change:
		default:
		}
	}
}

func (b *Broker) Watch(ctx context.Context, c Collection) (<-chan Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan Change, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[c] == nil {
		b.subs[c] = make(map[int]chan Change)
	}
	b.subs[c][id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[c], id)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
