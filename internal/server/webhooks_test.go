package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"onboardline/internal/config"
	"onboardline/internal/events"
)

func TestEventFilter(t *testing.T) {
	tests := []struct {
		types []string
		evt   string
		want  bool
	}{
		{nil, "email.sent", true},
		{[]string{" "}, "email.sent", true},
		{[]string{"email.sent"}, "email.sent", true},
		{[]string{"email.sent"}, "email.error", false},
		{[]string{"agent.*"}, "agent.assets_assigned", true},
		{[]string{"agent.*"}, "system.case_created", false},
		{[]string{"ui.step_saved", "*"}, "system.case_created", true},
	}
	for _, tt := range tests {
		if got := newEventFilter(tt.types).match(tt.evt); got != tt.want {
			t.Fatalf("filter %v match %s = %v, want %v", tt.types, tt.evt, got, tt.want)
		}
	}
}

func TestWebhooksReceiveMirroredEvents(t *testing.T) {
	type delivery struct {
		secret string
		evt    webhookEvent
	}
	var mu sync.Mutex
	var got []delivery
	received := make(chan struct{}, 8)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, delivery{secret: r.Header.Get("X-Onboardline-Secret"), evt: evt})
		mu.Unlock()
		received <- struct{}{}
	}))
	defer hook.Close()

	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	defer ps.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	disabled := false
	err := StartWebhooks(ctx, ps, []config.WebhookConfig{
		{URL: hook.URL, Events: []string{"email.*"}, Secret: "s3cret"},
		{URL: hook.URL, Enabled: &disabled},
	}, nil)
	if err != nil {
		t.Fatalf("start webhooks: %v", err)
	}

	bus := events.NewBus(events.Options{Mirror: ps})
	bus.Publish("CASE-1", "ui.step_saved", map[string]any{"step_key": "welcome"})
	bus.Publish("CASE-1", "email.sent", map[string]any{"kind": "low_stock"})

	select {
	case <-received:
	case <-time.After(3 * time.Second):
		t.Fatalf("webhook not called")
	}
	// Give a stray unfiltered delivery a chance to show up.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	if got[0].secret != "s3cret" || got[0].evt.Type != "email.sent" || got[0].evt.CaseID != "CASE-1" || got[0].evt.Seq != 2 {
		t.Fatalf("unexpected delivery %+v", got[0])
	}
}
