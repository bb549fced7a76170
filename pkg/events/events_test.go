package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusEmitDeliversToSubscribers(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Emit(ContractCreated, map[string]any{"contract_id": uint64(1)})

	select {
	case ev := <-ch:
		require.Equal(t, ContractCreated, ev.Kind)
		require.Equal(t, uint64(1), ev.Sequence)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusSequenceIsMonotonic(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Emit(ContractCreated, nil)
	b.Emit(ContractUpdated, nil)

	first := <-ch
	second := <-ch
	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, uint64(2), second.Sequence)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok, "channel must be closed after unsubscribe")
}

func TestBusEmitWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := NewBus()
	require.NotPanics(t, func() {
		b.Emit(ContractCreated, nil)
	})
}

func TestBusEmitSkipsFullSubscriberRatherThanBlocking(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	// The subscriber channel buffers 64 events; flood past that without ever
	// draining it, and Emit must still return instead of blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Emit(ContractCreated, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber channel")
	}
	require.NotEmpty(t, ch)
}

func TestEventEncode(t *testing.T) {
	ev := Event{Kind: ContractBilled, Sequence: 5, Data: map[string]any{"contract_id": uint64(42)}}
	raw, err := ev.Encode()
	require.NoError(t, err)
	require.Contains(t, string(raw), `"kind":"ContractBilled"`)
	require.Contains(t, string(raw), `"sequence":5`)
}
