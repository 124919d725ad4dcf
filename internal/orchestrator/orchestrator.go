// Package orchestrator turns a case snapshot into a Day 1 readiness plan by
// running the compliance, logistics, workplace and IT planners and folding
// their findings into conflicts and a recommendation.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"onboardline/internal/domain"
)

// Snapshot is the case data a run works from. It is taken under the case lock
// and never refreshed during the run.
type Snapshot struct {
	CaseID        string
	CandidateName string
	Role          string
	Nationality   string
	WorkLocation  string
	StartDate     string
	Steps         map[domain.StepKey]map[string]any
	EmployeeID    string
	// Assignment is the workplace assignment of a previous run, if any.
	Assignment *domain.WorkplaceAssignment
}

// SnapshotOf copies the planning inputs out of a case.
func SnapshotOf(c domain.Case) Snapshot {
	steps := make(map[domain.StepKey]map[string]any, len(c.Steps))
	for k, v := range c.Steps {
		steps[k] = v
	}
	return Snapshot{
		CaseID:        c.ID,
		CandidateName: c.CandidateName,
		Role:          c.Role,
		Nationality:   c.Nationality,
		WorkLocation:  c.WorkLocation,
		StartDate:     c.StartDate,
		Steps:         steps,
	}
}

// EmitFunc publishes one progress event of the run.
type EmitFunc func(evtType string, payload map[string]any)

type Runner interface {
	Run(ctx context.Context, snap Snapshot, notes string, emit EmitFunc) (domain.AgentPlan, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, snap Snapshot, notes string, emit EmitFunc) (domain.AgentPlan, error)

func (f RunnerFunc) Run(ctx context.Context, snap Snapshot, notes string, emit EmitFunc) (domain.AgentPlan, error) {
	return f(ctx, snap, notes, emit)
}

// Rules is the built-in deterministic runner.
type Rules struct {
	Now func() time.Time
}

func (r Rules) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r Rules) Run(ctx context.Context, snap Snapshot, notes string, emit EmitFunc) (domain.AgentPlan, error) {
	if emit == nil {
		emit = func(string, map[string]any) {}
	}
	now := r.now()
	daysToStart, hasStart := daysUntil(snap.StartDate, now)

	emit("agent.orchestrator_start", map[string]any{"msg": "Orchestrator starting agents..."})
	emit("agent.compliance_start", map[string]any{"msg": "Compliance agent running..."})
	emit("agent.logistics_start", map[string]any{"msg": "Logistics agent running..."})

	var (
		comp complianceResult
		logi logisticsResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		comp = runCompliance(snap)
		return gctx.Err()
	})
	g.Go(func() error {
		logi = runLogistics(snap)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return domain.AgentPlan{}, fmt.Errorf("compliance/logistics: %w", err)
	}
	emit("agent.compliance_done", map[string]any{"summary": comp.Summary, "risks": comp.Risks})
	emit("agent.logistics_done", map[string]any{"summary": logi.Summary, "risks": logi.Risks})

	if err := ctx.Err(); err != nil {
		return domain.AgentPlan{}, err
	}
	work := runWorkplace(snap)
	emit("agent.workplace_done", map[string]any{"summary": work.Summary, "risks": work.Risks})

	if err := ctx.Err(); err != nil {
		return domain.AgentPlan{}, err
	}
	it := runIT(snap, work, daysToStart, hasStart)
	emit("agent.it_done", map[string]any{"summary": it.Summary, "risks": it.Risks})

	conflicts := detectConflicts(comp, logi, it, daysToStart, hasStart)
	if len(conflicts) > 0 {
		emit("agent.orchestrator_conflict", map[string]any{"conflicts": conflicts})
	}

	plan := domain.AgentPlan{
		CaseID:        snap.CaseID,
		OverallStatus: domain.PlanOnTrack,
		AgentSummaries: map[string]string{
			"compliance": comp.Summary,
			"logistics":  logi.Summary,
			"workplace":  work.Summary,
			"it":         it.Summary,
		},
		Conflicts:   conflicts,
		Decision:    decide(conflicts, comp.VisaWeeks, daysToStart, hasStart),
		NextActions: nextActions(notes),
		Day1Readiness: domain.Day1Readiness{
			EmployeeID:         snap.EmployeeID,
			DeviceRequest:      it.Device,
			Seating:            work.Seating,
			ITTickets:          it.Tickets,
			WorkplaceEquipment: work.Equipment,
		},
		GeneratedAt: now.Format(time.RFC3339),
	}
	if len(conflicts) > 0 {
		plan.OverallStatus = domain.PlanAtRisk
	}
	emit("agent.orchestrator_done", map[string]any{"msg": "Orchestrator finished. Plan generated.", "plan": plan})
	return plan, nil
}

func nextActions(notes string) []domain.NextAction {
	actions := []domain.NextAction{
		{Owner: "Candidate", Action: "Upload required documents (passport, photo, address proof, any role-specific docs)."},
		{Owner: "HR", Action: "Review decision recommendation; choose expedite/delay/remote start and confirm policy."},
		{Owner: "Workplace", Action: "Confirm seating and equipment bundle; adjust for role/work-mode changes."},
		{Owner: "IT", Action: "Track tickets and provisioning SLAs; apply mitigation if risks flagged."},
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		actions = append(actions, domain.NextAction{Owner: "HR", Action: "Follow up on notes: " + notes})
	}
	return actions
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006-01-02T15:04:05"}

// daysUntil counts whole calendar days from now to the start date.
func daysUntil(start string, now time.Time) (int, bool) {
	start = strings.TrimSpace(start)
	if start == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, start)
		if err != nil {
			continue
		}
		startDay := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return int(startDay.Sub(today).Hours() / 24), true
	}
	return 0, false
}

func isUAE(location string) bool {
	switch strings.ToUpper(strings.TrimSpace(location)) {
	case "AE", "UAE":
		return true
	}
	return false
}

func roleHas(role string, words ...string) bool {
	r := strings.ToLower(role)
	for _, w := range words {
		if strings.Contains(r, w) {
			return true
		}
	}
	return false
}
