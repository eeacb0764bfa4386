package bus

import (
	"testing"

	"github.com/pearlgull/pearlgull/internal/schema"
)

func TestPublishReachesThreadSubscribersOnly(t *testing.T) {
	b := New()
	a := b.Subscribe("t1")
	other := b.Subscribe("t2")
	defer a.Close()
	defer other.Close()

	b.Publish("t1", schema.TurnEvent{Type: schema.EventDelta, Delta: "hi"})

	select {
	case ev := <-a.C:
		if ev.Delta != "hi" {
			t.Errorf("delta = %q", ev.Delta)
		}
	default:
		t.Fatal("subscriber on t1 got nothing")
	}
	select {
	case ev := <-other.C:
		t.Errorf("subscriber on t2 got %+v", ev)
	default:
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	sub := b.Subscribe("t1")
	defer sub.Close()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish("t1", schema.TurnEvent{Type: schema.EventDelta, Delta: "x"})
	}
	// Publish never blocked; the buffer holds at most its capacity.
	if n := len(sub.C); n != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", n, subscriberBuffer)
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	b := New()
	sub := b.Subscribe("t1")
	sub.Close()
	sub.Close() // idempotent

	// Publishing after close must not panic on the closed channel.
	b.Publish("t1", schema.TurnEvent{Type: schema.EventDelta})
}
