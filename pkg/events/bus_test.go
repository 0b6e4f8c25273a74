package events

import (
	"sync"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func testObject(namespace, name string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "crownlabs.polito.it/v1alpha2",
		"kind":       "Instance",
	}}
	obj.SetNamespace(namespace)
	obj.SetName(name)
	return obj
}

func testEvent(label string) ResourceEvent {
	return ResourceEvent{
		Label:      label,
		Type:       Modified,
		Object:     testObject("tenant-alice", "inst-1"),
		ObservedAt: time.Now(),
	}
}

func receiveOne(t *testing.T, sub *Subscription) ResourceEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return ResourceEvent{}
}

func TestBus_PublishSubscribe(t *testing.T) {
	t.Parallel()
	bus := NewBus(100)

	sub, err := bus.Subscribe(10, "instance")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	delivered := bus.Publish("instance", testEvent("instance"))
	if delivered != 1 {
		t.Errorf("expected 1 delivery, got %d", delivered)
	}

	ev := receiveOne(t, sub)
	if ev.Type != Modified {
		t.Errorf("expected MODIFIED, got %s", ev.Type)
	}
	if ev.Object.GetName() != "inst-1" {
		t.Errorf("unexpected object name %q", ev.Object.GetName())
	}
}

func TestBus_FanOut(t *testing.T) {
	t.Parallel()
	bus := NewBus(100)

	subs := make([]*Subscription, 5)
	for i := range subs {
		sub, err := bus.Subscribe(10, "instance")
		if err != nil {
			t.Fatalf("subscribe %d failed: %v", i, err)
		}
		defer sub.Close()
		subs[i] = sub
	}

	if delivered := bus.Publish("instance", testEvent("instance")); delivered != 5 {
		t.Errorf("expected 5 deliveries, got %d", delivered)
	}

	for i, sub := range subs {
		ev := receiveOne(t, sub)
		if ev.Label != "instance" {
			t.Errorf("subscriber %d: unexpected label %q", i, ev.Label)
		}
	}
}

func TestBus_LabelIsolation(t *testing.T) {
	t.Parallel()
	bus := NewBus(100)

	instSub, err := bus.Subscribe(10, "instance")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer instSub.Close()

	tmplSub, err := bus.Subscribe(10, "template")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer tmplSub.Close()

	if delivered := bus.Publish("instance", testEvent("instance")); delivered != 1 {
		t.Errorf("expected 1 delivery, got %d", delivered)
	}

	receiveOne(t, instSub)

	select {
	case ev := <-tmplSub.Events():
		t.Errorf("template subscriber received unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_LateSubscriberMissesEarlierEvents(t *testing.T) {
	t.Parallel()
	bus := NewBus(100)

	if delivered := bus.Publish("instance", testEvent("instance")); delivered != 0 {
		t.Errorf("expected 0 deliveries with no subscribers, got %d", delivered)
	}

	sub, err := bus.Subscribe(10, "instance")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	select {
	case ev := <-sub.Events():
		t.Errorf("late subscriber received replayed event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_MultiLabelSubscription(t *testing.T) {
	t.Parallel()
	bus := NewBus(100)

	sub, err := bus.Subscribe(10, "instance", "template")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	bus.Publish("instance", testEvent("instance"))
	bus.Publish("template", testEvent("template"))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[receiveOne(t, sub).Label] = true
	}
	if !seen["instance"] || !seen["template"] {
		t.Errorf("expected events from both labels, saw %v", seen)
	}
}

func TestBus_OrderPreservedPerSubscriber(t *testing.T) {
	t.Parallel()
	bus := NewBus(100)

	sub, err := bus.Subscribe(20, "instance")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	names := []string{"a", "b", "c", "d", "e"}
	for _, name := range names {
		ev := testEvent("instance")
		ev.Object.SetName(name)
		bus.Publish("instance", ev)
	}

	for _, want := range names {
		if got := receiveOne(t, sub).Object.GetName(); got != want {
			t.Fatalf("out-of-order delivery: got %q, want %q", got, want)
		}
	}
}

func TestBus_SubscriberCap(t *testing.T) {
	t.Parallel()
	bus := NewBus(2)

	s1, err := bus.Subscribe(1, "instance")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer s1.Close()

	s2, err := bus.Subscribe(1, "instance")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if _, err := bus.Subscribe(1, "instance"); err != ErrTooManySubscribers {
		t.Errorf("expected ErrTooManySubscribers, got %v", err)
	}

	// Closing releases the slot.
	s2.Close()
	s3, err := bus.Subscribe(1, "instance")
	if err != nil {
		t.Errorf("expected subscribe to succeed after close, got %v", err)
	} else {
		s3.Close()
	}
}

func TestBus_CloseUnregisters(t *testing.T) {
	t.Parallel()
	bus := NewBus(100)

	sub, err := bus.Subscribe(10, "instance")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	sub.Close()
	sub.Close() // idempotent

	if n := bus.SubscriberCount("instance"); n != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", n)
	}
	if delivered := bus.Publish("instance", testEvent("instance")); delivered != 0 {
		t.Errorf("expected 0 deliveries after close, got %d", delivered)
	}

	// Channel drains and closes.
	if _, ok := <-sub.Events(); ok {
		t.Error("expected closed events channel")
	}
}

func TestBus_PublishBlocksInsteadOfDropping(t *testing.T) {
	t.Parallel()
	bus := NewBus(100)

	sub, err := bus.Subscribe(1, "instance")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	bus.Publish("instance", testEvent("instance")) // fills the buffer

	published := make(chan int, 1)
	go func() {
		published <- bus.Publish("instance", testEvent("instance"))
	}()

	select {
	case <-published:
		t.Fatal("publish should block on a full subscriber buffer")
	case <-time.After(50 * time.Millisecond):
	}

	receiveOne(t, sub) // drain one slot

	select {
	case delivered := <-published:
		if delivered != 1 {
			t.Errorf("expected 1 delivery, got %d", delivered)
		}
	case <-time.After(time.Second):
		t.Fatal("publish did not resume after drain")
	}
}

func TestBus_CloseUnblocksPendingPublish(t *testing.T) {
	t.Parallel()
	bus := NewBus(100)

	sub, err := bus.Subscribe(1, "instance")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	bus.Publish("instance", testEvent("instance")) // fills the buffer

	published := make(chan int, 1)
	go func() {
		published <- bus.Publish("instance", testEvent("instance"))
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Close()

	select {
	case delivered := <-published:
		if delivered != 0 {
			t.Errorf("expected 0 deliveries to a closed subscription, got %d", delivered)
		}
	case <-time.After(time.Second):
		t.Fatal("publish did not resolve after subscription close")
	}
}

func TestBus_ConcurrentPublishSubscribe(t *testing.T) {
	t.Parallel()
	bus := NewBus(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := bus.Subscribe(100, "instance")
			if err != nil {
				t.Errorf("subscribe failed: %v", err)
				return
			}
			defer sub.Close()
			for range sub.Events() {
			}
		}()
	}

	for i := 0; i < 50; i++ {
		bus.Publish("instance", testEvent("instance"))
	}

	bus.Close()
	wg.Wait()

	if _, err := bus.Subscribe(1, "instance"); err != ErrBusClosed {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
}
