package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"onboardline/internal/config"
	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/logging"
)

func openApp(t *testing.T, tweak func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Redis.URL = ""
	if tweak != nil {
		tweak(cfg)
	}
	a, err := Open(context.Background(), Options{Workspace: t.TempDir(), Config: cfg, Quiet: true})
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func waitFor(t *testing.T, events <-chan domain.Event, evtType string) domain.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatalf("feed closed before %s", evtType)
			}
			if evt.Type == evtType {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", evtType)
		}
	}
}

func TestOpenFallsBackWithoutRedis(t *testing.T) {
	a := openApp(t, nil)
	if a.Redis != nil {
		t.Fatalf("expected no redis client")
	}
	if a.Engine.Locks == nil || a.Engine.Guard == nil || a.Engine.Bus == nil {
		t.Fatalf("engine collaborators not wired: %+v", a.Engine)
	}
	if got := a.Engine.Mail; got == nil {
		t.Fatalf("mail transport not wired")
	}
}

func TestQueuedMailReachesOutbox(t *testing.T) {
	a := openApp(t, func(cfg *config.Config) {
		cfg.Mail.Async = true
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	c, err := a.Engine.CreateCase(ctx, engine.CaseInput{
		CandidateName: "Ines Duarte",
		Role:          "Support Engineer",
		Nationality:   "PT",
		WorkLocation:  "Lisbon",
	}, "hr-1")
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	sub := a.Engine.Bus.Subscribe(ctx, c.ID)
	defer sub.Close()

	out, err := a.Engine.SendLowStockEmail(ctx, engine.LowStockRequest{CaseID: c.ID, Model: "MacBook Pro 16", MissingItems: []string{"charger"}})
	if err != nil {
		t.Fatalf("low stock email: %v", err)
	}
	if out.Result != domain.EmailQueued {
		t.Fatalf("expected queued, got %+v", out)
	}
	waitFor(t, sub.Events, "email.queued")
	sent := waitFor(t, sub.Events, "email.sent")
	if sent.Payload["to"] != a.Config.Mail.ITDefaultEmail {
		t.Fatalf("unexpected recipient %v", sent.Payload["to"])
	}

	entries, err := logging.ReadEntries(filepath.Join(a.Workspace, a.Config.Mail.OutboxPath))
	if err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "IT_LOW_STOCK" || entries[0].Details["case_id"] != c.ID {
		t.Fatalf("unexpected outbox %+v", entries)
	}
}

func TestAsyncOrchestrationRunsOnWorker(t *testing.T) {
	a := openApp(t, func(cfg *config.Config) {
		cfg.Orchestrator.AsyncWorkers = 1
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	c, err := a.Engine.CreateCase(ctx, engine.CaseInput{
		CandidateName: "Ines Duarte",
		Role:          "Support Engineer",
		Nationality:   "PT",
		WorkLocation:  "Lisbon",
		StartDate:     time.Now().AddDate(0, 2, 0).Format("2006-01-02"),
	}, "hr-1")
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	steps := []struct {
		key     string
		payload map[string]any
	}{
		{"welcome", map[string]any{}},
		{"offer", map[string]any{"decision": "accept"}},
		{"identity", map[string]any{"email": "ines@example.com"}},
		{"documents", map[string]any{"passport": true}},
		{"workAuth", map[string]any{"status": "citizen"}},
		{"profile", map[string]any{"workMode": "hybrid"}},
		{"review", map[string]any{"attested": true}},
	}
	for i, s := range steps {
		next := i + 1
		if _, err := a.Engine.SubmitStep(ctx, engine.StepSubmission{CaseID: c.ID, StepKey: s.key, Payload: s.payload, NextStepIndex: &next, ActorID: "candidate"}); err != nil {
			t.Fatalf("submit %s: %v", s.key, err)
		}
	}

	sub := a.Engine.Bus.Subscribe(ctx, c.ID)
	defer sub.Close()
	if _, err := a.Engine.Orchestrate(ctx, engine.OrchestrateRequest{CaseID: c.ID, ActorID: "hr-1", Async: true}); err != nil {
		t.Fatalf("orchestrate: %v", err)
	}
	waitFor(t, sub.Events, "system.orchestration_queued")
	waitFor(t, sub.Events, "agent.orchestrator_done")

	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := a.Engine.GetCase(ctx, c.ID)
		if err != nil {
			t.Fatalf("get case: %v", err)
		}
		if got.AgentRun.Status == domain.AgentRunSucceeded && got.AgentPlan != nil && got.Status != domain.StatusSubmittedForHRReview {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("plan not merged: status=%s run=%+v", got.Status, got.AgentRun)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
