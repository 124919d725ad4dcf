package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"onboardline/internal/domain"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
}

func recv(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return domain.Event{}
}

func TestSubscribeReceivesOnlyNewEventsInOrder(t *testing.T) {
	bus := NewBus(Options{Now: fixedNow})
	bus.Publish("CASE-1", "system.case_created", nil)

	sub := bus.Subscribe(context.Background(), "CASE-1")
	defer sub.Close()
	bus.Publish("CASE-2", "ui.step_saved", nil)
	bus.Publish("CASE-1", "agent.compliance_start", nil)
	bus.Publish("CASE-1", "agent.compliance_done", map[string]any{"ok": true})

	first := recv(t, sub.Events)
	second := recv(t, sub.Events)
	if first.Type != "agent.compliance_start" || second.Type != "agent.compliance_done" {
		t.Fatalf("unexpected order %s, %s", first.Type, second.Type)
	}
	if first.Seq != 2 || second.Seq != 3 {
		t.Fatalf("unexpected seq %d, %d", first.Seq, second.Seq)
	}
	if first.TS != "2026-03-02T09:00:00Z" {
		t.Fatalf("unexpected ts %s", first.TS)
	}
	select {
	case evt := <-sub.Events:
		t.Fatalf("unexpected extra event %+v", evt)
	default:
	}
}

func TestRecentIsBounded(t *testing.T) {
	bus := NewBus(Options{Capacity: 80})
	for i := 0; i < 100; i++ {
		bus.Publish("CASE-1", "ui.tick", map[string]any{"i": i})
	}
	all := bus.Recent("CASE-1", 0)
	if len(all) != 80 {
		t.Fatalf("expected 80 buffered events, got %d", len(all))
	}
	if all[0].Seq != 21 || all[79].Seq != 100 {
		t.Fatalf("unexpected window %d..%d", all[0].Seq, all[79].Seq)
	}
	last := bus.Recent("CASE-1", 5)
	if len(last) != 5 || last[0].Seq != 96 {
		t.Fatalf("unexpected tail %+v", last)
	}
	if got := bus.Recent("CASE-404", 5); len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus(Options{SubscriberBuffer: 2})
	sub := bus.Subscribe(context.Background(), "CASE-1")
	defer sub.Close()
	for i := 0; i < 5; i++ {
		bus.Publish("CASE-1", "ui.tick", nil)
	}
	a := recv(t, sub.Events)
	b := recv(t, sub.Events)
	if a.Seq != 4 || b.Seq != 5 {
		t.Fatalf("expected newest two events, got %d and %d", a.Seq, b.Seq)
	}
}

func TestContextCancelEndsSubscription(t *testing.T) {
	bus := NewBus(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(ctx, "CASE-1")
	cancel()
	select {
	case _, ok := <-sub.Events:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription not closed on cancel")
	}
	sub.Close()
	if n := bus.Subscribers("CASE-1"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	bus.Publish("CASE-1", "ui.tick", nil)
}

func TestForgetClosesSubscribers(t *testing.T) {
	bus := NewBus(Options{})
	sub := bus.Subscribe(context.Background(), "CASE-1")
	bus.Publish("CASE-1", "ui.tick", nil)
	bus.Forget("CASE-1")
	recv(t, sub.Events)
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected closed channel after forget")
	}
	sub.Close()
	if len(bus.Recent("CASE-1", 0)) != 0 {
		t.Fatalf("history kept after forget")
	}
}

func TestMirrorPublishesToWatermill(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := pubSub.Subscribe(ctx, MirrorTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	bus := NewBus(Options{Mirror: pubSub})
	bus.Publish("CASE-1", "email.sent", map[string]any{"to": "it@example.com"})

	select {
	case msg := <-msgs:
		msg.Ack()
		if msg.Metadata.Get("event_type") != "email.sent" {
			t.Fatalf("unexpected metadata %+v", msg.Metadata)
		}
		var evt domain.Event
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if evt.CaseID != "CASE-1" || evt.Payload["to"] != "it@example.com" {
			t.Fatalf("unexpected mirrored event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("mirror message not delivered")
	}
}
