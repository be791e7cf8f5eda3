package broadcast

import (
	"errors"
	"testing"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
)

type collector struct {
	events []brainstorm.Event
}

func (c *collector) Deliver(evt brainstorm.Event) error {
	c.events = append(c.events, evt)
	return nil
}

func chunk(text string) brainstorm.Event {
	evt := brainstorm.NewEvent(brainstorm.EventStreamChunk, "s1")
	evt.Text = text
	return evt
}

func TestPublishReachesOnlyTopicMembers(t *testing.T) {
	hub := NewHub()
	a, b, other := &collector{}, &collector{}, &collector{}
	hub.Join("s1", "a", a)
	hub.Join("s1", "b", b)
	hub.Join("s2", "other", other)

	if got := hub.Publish("s1", chunk("hi")); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatal("expected both members to receive the event")
	}
	if len(other.events) != 0 {
		t.Fatal("events must not cross session topics")
	}
}

func TestLateJoinerGetsNoReplay(t *testing.T) {
	hub := NewHub()
	early, late := &collector{}, &collector{}
	hub.Join("s1", "early", early)

	hub.Publish("s1", chunk("first"))
	hub.Join("s1", "late", late)
	hub.Publish("s1", chunk("second"))

	if len(late.events) != 1 || late.events[0].Text != "second" {
		t.Fatalf("late joiner should only see later events, got %+v", late.events)
	}
	if len(early.events) != 2 || early.events[0].Text != "first" || early.events[1].Text != "second" {
		t.Fatalf("expected in-order delivery, got %+v", early.events)
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub := NewHub()
	c := &collector{}
	hub.Join("s1", "c", c)

	if !hub.Leave("s1", "c") {
		t.Fatal("expected Leave to report membership")
	}
	if hub.Leave("s1", "c") {
		t.Fatal("second Leave must report false")
	}
	if got := hub.Publish("s1", chunk("x")); got != 0 {
		t.Fatalf("expected no deliveries, got %d", got)
	}
}

func TestLeaveAllDetachesEverywhere(t *testing.T) {
	hub := NewHub()
	c := &collector{}
	hub.Join("s1", "conn", c)
	hub.Join("s2", "conn", c)
	hub.Join("s2", "keep", &collector{})

	if got := hub.LeaveAll("conn"); got != 2 {
		t.Fatalf("expected to leave 2 topics, got %d", got)
	}
	if ids := hub.Subscribers("s2"); len(ids) != 1 || ids[0] != "keep" {
		t.Fatalf("unexpected remaining subscribers %v", ids)
	}
}

func TestFailingSubscriberIsDropped(t *testing.T) {
	hub := NewHub()
	good := &collector{}
	hub.Join("s1", "good", good)
	hub.Join("s1", "bad", SubscriberFunc(func(brainstorm.Event) error {
		return errors.New("write: broken pipe")
	}))
	hub.Join("s1", "panicky", SubscriberFunc(func(brainstorm.Event) error {
		panic("boom")
	}))

	if got := hub.Publish("s1", chunk("x")); got != 1 {
		t.Fatalf("expected 1 successful delivery, got %d", got)
	}
	if ids := hub.Subscribers("s1"); len(ids) != 1 || ids[0] != "good" {
		t.Fatalf("expected failing subscribers to be dropped, got %v", ids)
	}
}
