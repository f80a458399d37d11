package fusion

import (
	"sync"
	"time"

	"github.com/banshee-data/yard.fusion/internal/monitoring"
)

// EventType identifies what happened to an asset.
type EventType string

const (
	EventAssetDetected EventType = "asset_detected"
	EventAssetLost     EventType = "asset_lost"
	EventStateChange   EventType = "state_change"
)

// Event is delivered to every subscriber. Asset is a copy taken when the
// event was produced. OldState is set for state_change and asset_lost,
// NewState for state_change and asset_detected.
type Event struct {
	Type      EventType     `json:"type"`
	AssetID   string        `json:"asset_id"`
	AssetType AssetType     `json:"asset_type"`
	Asset     *TrackedAsset `json:"asset,omitempty"`
	OldState  AssetState    `json:"old_state,omitempty"`
	NewState  AssetState    `json:"new_state,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// EventHandler receives engine events. A returned error is logged and does
// not affect other handlers.
type EventHandler func(Event) error

type subscriber struct {
	id      uint64
	handler EventHandler
}

// Subscribe registers h and returns a function that removes it. The
// returned function is safe to call more than once.
func (e *Engine) Subscribe(h EventHandler) (unsubscribe func()) {
	e.subMu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.subscribers = append(e.subscribers, subscriber{id: id, handler: h})
	e.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.subMu.Lock()
			defer e.subMu.Unlock()
			for i, s := range e.subscribers {
				if s.id == id {
					e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// reserveTicket takes the next delivery slot for a non-empty batch. Caller
// holds e.mu, so slots follow commit order. Zero means nothing to deliver.
func (e *Engine) reserveTicket(events []Event) uint64 {
	if len(events) == 0 {
		return 0
	}
	e.nextTicket++
	return e.nextTicket
}

// dispatchInOrder waits until every earlier batch has been delivered, then
// dispatches this one. Handlers may query the engine but must not ingest:
// an ingest from inside a handler would wait on its own batch.
func (e *Engine) dispatchInOrder(ticket uint64, events []Event) {
	if ticket == 0 {
		return
	}
	e.deliverMu.Lock()
	for e.servedTicket+1 != ticket {
		e.deliverCond.Wait()
	}
	e.deliverMu.Unlock()

	e.dispatch(events)

	e.deliverMu.Lock()
	e.servedTicket = ticket
	e.deliverCond.Broadcast()
	e.deliverMu.Unlock()
}

// dispatch delivers events in order to a snapshot of the current
// subscribers. It must be called without e.mu held so handlers can query
// the engine.
func (e *Engine) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	e.subMu.RLock()
	subs := make([]subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.subMu.RUnlock()

	for _, ev := range events {
		for _, s := range subs {
			deliver(s, ev)
		}
	}
}

func deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Warnf("event handler %d panicked on %s for %s: %v", s.id, ev.Type, ev.AssetID, r)
		}
	}()
	if err := s.handler(ev); err != nil {
		monitoring.Warnf("event handler %d failed on %s for %s: %v", s.id, ev.Type, ev.AssetID, err)
	}
}
