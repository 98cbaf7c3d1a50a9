package srt

import (
	"testing"

	"github.com/zsiec/reflect/internal/option"
)

type fakeConsumer struct {
	received [][]byte
	result   bool
	disconnected bool
}

func (f *fakeConsumer) OnReceive(opt *option.Map, data []byte, discrete bool) bool {
	cp := append([]byte(nil), data...)
	f.received = append(f.received, cp)
	return f.result
}

func (f *fakeConsumer) OnDisconnected(opt *option.Map) { f.disconnected = true }

func newTestReceiver() *Receiver {
	return &Receiver{
		ID:     "test",
		opt:    option.New(),
		stream: option.ParseStreamID("#!::r=stream1"),
	}
}

func TestReceiverFanOutDeliversIdenticalBytesToAllConsumers(t *testing.T) {
	r := newTestReceiver()
	c1 := &fakeConsumer{result: true}
	c2 := &fakeConsumer{result: true}
	c3 := &fakeConsumer{result: true}
	r.AddConsumer(c1, 0, false)
	r.AddConsumer(c2, 0, false)
	r.AddConsumer(c3, 0, false)

	payload := []byte("packet-data")
	r.deliver(payload, false)

	for i, c := range []*fakeConsumer{c1, c2, c3} {
		if len(c.received) != 1 || string(c.received[0]) != string(payload) {
			t.Fatalf("consumer %d received %v, want exactly one copy of %q", i, c.received, payload)
		}
	}
}

func TestReceiverFailedOwnedConsumerRemovedOnce(t *testing.T) {
	r := newTestReceiver()
	c := &fakeConsumer{result: false}
	r.AddConsumer(c, 0, true)

	r.deliver([]byte("a"), false)
	r.deliver([]byte("b"), false)

	r.mu.Lock()
	n := len(r.consumers)
	r.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected the failed owned consumer to be removed, got %d remaining", n)
	}
	if len(c.received) != 1 {
		t.Fatalf("expected the removed consumer to receive exactly one delivery, got %d", len(c.received))
	}
}

func TestReceiverFailedUnownedConsumerNotRemoved(t *testing.T) {
	r := newTestReceiver()
	c := &fakeConsumer{result: false}
	r.AddConsumer(c, 0, false)

	r.deliver([]byte("a"), false)

	r.mu.Lock()
	n := len(r.consumers)
	r.mu.Unlock()
	if n != 1 {
		t.Fatal("expected an unowned consumer to stay attached even after returning false")
	}
}

func TestReceiverAddConsumerPriorityOrder(t *testing.T) {
	r := newTestReceiver()
	low := &fakeConsumer{result: true}
	high := &fakeConsumer{result: true}
	mid := &fakeConsumer{result: true}
	r.AddConsumer(low, 0, false)
	r.AddConsumer(high, 10, false)
	r.AddConsumer(mid, 5, false)

	r.mu.Lock()
	order := make([]Consumer, len(r.consumers))
	for i, e := range r.consumers {
		order[i] = e.consumer
	}
	r.mu.Unlock()

	if order[0] != Consumer(high) || order[1] != Consumer(mid) || order[2] != Consumer(low) {
		t.Fatalf("expected priority order [high, mid, low], got %v", order)
	}
}

func TestReceiverAddConsumerInsertionOrderWithinPriority(t *testing.T) {
	r := newTestReceiver()
	first := &fakeConsumer{result: true}
	second := &fakeConsumer{result: true}
	r.AddConsumer(first, 5, false)
	r.AddConsumer(second, 5, false)

	r.mu.Lock()
	order := make([]Consumer, len(r.consumers))
	for i, e := range r.consumers {
		order[i] = e.consumer
	}
	r.mu.Unlock()

	if order[0] != Consumer(first) || order[1] != Consumer(second) {
		t.Fatal("expected insertion order preserved within the same priority")
	}
}

func TestReceiverRemoveConsumer(t *testing.T) {
	r := newTestReceiver()
	c := &fakeConsumer{result: true}
	r.AddConsumer(c, 0, false)
	r.RemoveConsumer(c)

	r.mu.Lock()
	n := len(r.consumers)
	r.mu.Unlock()
	if n != 0 {
		t.Fatal("expected RemoveConsumer to detach regardless of ownership")
	}
}
