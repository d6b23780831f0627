package services

import (
	"sync"

	"github.com/goldengai/venuesync/internal/models"
)

// SyncEvents fans SyncState snapshots out to subscribers.
// Publishing never blocks: a full subscriber loses its oldest queued state.
type SyncEvents struct {
	mu     sync.RWMutex
	subs   map[int]chan models.SyncState
	nextID int
}

// NewSyncEvents creates an empty broadcaster
func NewSyncEvents() *SyncEvents {
	return &SyncEvents{subs: make(map[int]chan models.SyncState)}
}

// Subscribe returns a channel of states and a cancel func that closes it
func (e *SyncEvents) Subscribe(buffer int) (<-chan models.SyncState, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.SyncState, buffer)

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers state to every subscriber
func (e *SyncEvents) Publish(state models.SyncState) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.subs {
		for {
			select {
			case ch <- state:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Count returns the number of subscribers
func (e *SyncEvents) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}
