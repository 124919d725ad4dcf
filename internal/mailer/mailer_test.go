package mailer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"onboardline/internal/domain"
	"onboardline/internal/logging"
)

func sampleCase() domain.Case {
	return domain.Case{
		ID:            "CASE-0A1B2C3D",
		CandidateName: "Sara Ahmed",
		Role:          "Software Engineer",
		StartDate:     "2026-04-01",
		Steps: map[domain.StepKey]map[string]any{
			domain.StepOffer:   {"decision": "accept", "candidateEmail": "offer@example.com"},
			domain.StepProfile: {"personalEmail": "sara@example.com"},
		},
	}
}

func TestLowStockTemplate(t *testing.T) {
	email := LowStock(sampleCase(), "it@example.com", "qwen2.5 laptop bundle", []string{" usb-c dock ", ""})
	if email.Subject != "IT support needed: low stock for qwen2.5 laptop bundle (Case CASE-0A1B2C3D)" {
		t.Fatalf("unexpected subject %q", email.Subject)
	}
	for _, want := range []string{"Sara Ahmed", "2026-04-01", "usb-c dock."} {
		if !strings.Contains(email.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, email.Body)
		}
	}
}

func TestCandidateEmailPrefersProfile(t *testing.T) {
	if got := CandidateEmail(sampleCase()); got != "sara@example.com" {
		t.Fatalf("expected profile email, got %q", got)
	}
	c := sampleCase()
	delete(c.Steps, domain.StepProfile)
	if got := CandidateEmail(c); got != "offer@example.com" {
		t.Fatalf("expected fallback to any step, got %q", got)
	}
}

func TestOutboxTransportAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.jsonl")
	tr := NewOutboxTransport(path)
	msg := Message{Kind: KindWelcome, CaseID: "CASE-1", From: "hr@example.com", Email: Welcome(sampleCase(), "sara@example.com")}
	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	entries, err := logging.ReadEntries(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Message != KindWelcome || entries[0].Details["to"] != "sara@example.com" {
		t.Fatalf("unexpected outbox %+v", entries)
	}
}

func TestQueueDeliversAndReports(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()
	tr := &MemoryTransport{}
	q := NewQueue(pubSub, pubSub, tr, nil)
	results := make(chan error, 2)
	q.OnResult(func(msg Message, err error) { results <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Consume(ctx); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := q.Enqueue(ctx, Message{Kind: KindLowStock, CaseID: "CASE-1", Email: domain.Email{To: "it@example.com"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case err := <-results:
		if err != nil {
			t.Fatalf("unexpected delivery error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no delivery result")
	}
	if len(tr.Sent()) != 1 {
		t.Fatalf("expected one sent message")
	}

	tr.Fail(errors.New("smtp down"))
	if err := q.Enqueue(ctx, Message{Kind: KindLowStock, CaseID: "CASE-1"}); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-results:
		if err == nil {
			t.Fatalf("expected delivery error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no failure result")
	}
}
