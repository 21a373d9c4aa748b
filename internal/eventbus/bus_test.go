package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TypeJobStarted, Data: "x"})

	select {
	case ev := <-ch:
		if ev.Type != TypeJobStarted {
			t.Fatalf("type = %s", ev.Type)
		}
		if ev.Time.IsZero() {
			t.Fatal("time not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	// Fill the buffer, then keep publishing; the bus must drop, not stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: TypeSweepClaimed})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	_ = ch

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(Event{Type: TypeJobFinished})
		}
		close(done)
	}()
	unsub()
	// Double unsubscribe is safe.
	unsub()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish deadlocked with concurrent unsubscribe")
	}
}
