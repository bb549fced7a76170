// Package events defines the billing engine's event stream (spec.md §6
// "Events") and a small in-process bus that fans events out to subscribers
// such as pkg/notify's websocket hub — the same role neo-go's notification
// subsystem plays for block/execution events.
package events

import (
	"sync"

	ojson "github.com/nspcc-dev/go-ordered-json"
)

// Kind names an event type. Names are bit-exact with spec.md §6.
type Kind string

const (
	ContractCreated              Kind = "ContractCreated"
	ContractUpdated              Kind = "ContractUpdated"
	NodeContractCanceled         Kind = "NodeContractCanceled"
	NameContractCanceled         Kind = "NameContractCanceled"
	RentContractCanceled         Kind = "RentContractCanceled"
	IPsReserved                  Kind = "IPsReserved"
	IPsFreed                     Kind = "IPsFreed"
	ContractBilled                Kind = "ContractBilled"
	TokensBurned                 Kind = "TokensBurned"
	ContractGracePeriodStarted   Kind = "ContractGracePeriodStarted"
	ContractGracePeriodEnded     Kind = "ContractGracePeriodEnded"
	NruConsumptionReportReceived Kind = "NruConsumptionReportReceived"
	UpdatedUsedResources         Kind = "UpdatedUsedResources"
	SolutionProviderCreated      Kind = "SolutionProviderCreated"
	SolutionProviderApproved     Kind = "SolutionProviderApproved"
	BillingFrequencyChanged      Kind = "BillingFrequencyChanged"
)

// Event is one entry of the engine's observable event stream. Sequence is a
// monotonically increasing per-bus counter, so a downstream indexer can
// detect gaps/reconnect precisely the way neo-go's notification clients do.
type Event struct {
	Kind     Kind  `json:"kind"`
	Sequence uint64 `json:"sequence"`
	Data     any   `json:"data"`
}

// Encode renders the event as deterministically ordered JSON. The fields are
// marshaled through nspcc-dev/go-ordered-json instead of the standard
// library so that, as with neo-go's stack-item-to-JSON conversion, the
// wire output has a stable byte-for-byte representation regardless of Go's
// struct field reflection order.
func (e Event) Encode() ([]byte, error) {
	return ojson.Marshal(e)
}

// Bus is an in-memory, synchronous fan-out publisher. Registry, billing and
// scheduler components hold a *Bus and call Emit on every state transition;
// pkg/notify.Hub (and tests) Subscribe to observe them.
type Bus struct {
	mu   sync.Mutex
	seq  uint64
	subs map[int]chan Event
	next int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Emit publishes an event to every current subscriber. Subscribers that
// cannot keep up (full channel) are skipped for this event rather than
// blocking the caller — billing must never stall waiting on an observer.
func (b *Bus) Emit(kind Kind, data any) {
	b.mu.Lock()
	b.seq++
	ev := Event{Kind: kind, Sequence: b.seq, Data: data}
	subs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}
