package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"onboardline/internal/domain"
)

// ensureStatusTransition checks the case lifecycle. Terminal statuses are
// never left, force or not.
func ensureStatusTransition(oldStatus, newStatus domain.Status, force bool) error {
	if oldStatus.Terminal() && oldStatus != newStatus {
		return fmt.Errorf("case status %s is terminal", oldStatus)
	}
	if force {
		return nil
	}
	switch oldStatus {
	case domain.StatusDraft:
		if newStatus == domain.StatusOnHoldHR || newStatus == domain.StatusDeclined || newStatus == domain.StatusSubmittedForHRReview {
			return nil
		}
	case domain.StatusOnHoldHR:
		if newStatus == domain.StatusDraft || newStatus == domain.StatusDeclined {
			return nil
		}
	case domain.StatusSubmittedForHRReview:
		if newStatus == domain.StatusOnboardingInProgress || newStatus == domain.StatusDeclined {
			return nil
		}
	case domain.StatusOnboardingInProgress:
		if newStatus == domain.StatusReadyForDay1 || newStatus == domain.StatusDeclined {
			return nil
		}
	case domain.StatusReadyForDay1:
		if newStatus == domain.StatusOnboardingComplete || newStatus == domain.StatusOnboardingInProgress {
			return nil
		}
	}
	return fmt.Errorf("invalid case status transition %s -> %s", oldStatus, newStatus)
}

// StatusOverride is an HR request to move a case to another status.
type StatusOverride struct {
	CaseID  string
	Status  string
	Reason  string
	Force   bool
	ActorID string
}

// OverrideStatus moves a case along the lifecycle on HR's behalf. Force skips
// the transition table but not the terminal rule. Accepting a submitted case
// into ONBOARDING_IN_PROGRESS runs the orchestrator like Orchestrate does.
func (e Engine) OverrideStatus(ctx context.Context, req StatusOverride) (domain.Case, error) {
	target, ok := domain.ParseStatus(req.Status)
	if !ok {
		return domain.Case{}, domain.InvalidInput("unknown status %q", req.Status)
	}
	reason := strings.TrimSpace(req.Reason)
	if target == domain.StatusOnboardingInProgress {
		cur, err := e.GetCase(ctx, req.CaseID)
		if err != nil {
			return cur, err
		}
		if cur.Status == domain.StatusSubmittedForHRReview {
			return e.Orchestrate(ctx, OrchestrateRequest{CaseID: cur.ID, Notes: reason, ActorID: req.ActorID})
		}
	}
	return e.mutateCase(ctx, req.CaseID, func(_ *sql.Tx, c *domain.Case) ([]pendingEvent, error) {
		from := c.Status
		if from.Terminal() {
			return nil, domain.CaseTerminal(c.ID, from)
		}
		if from == target {
			return nil, nil
		}
		// onboarding only starts through the orchestrator
		if target == domain.StatusOnboardingInProgress && from != domain.StatusReadyForDay1 {
			return nil, domain.ConflictError("case %s is %s; onboarding starts from a submitted case via orchestrate", c.ID, from).
				With("from", from).With("to", target)
		}
		if err := ensureStatusTransition(from, target, req.Force); err != nil {
			return nil, domain.ConflictError("%s", err.Error()).With("from", from).With("to", target)
		}
		switch {
		case target == domain.StatusOnHoldHR:
			if reason == "" {
				return nil, domain.InvalidInput("a reason is required to put a case on hold")
			}
			c.CandidateConcerns = reason
			c.SalaryAppeal = ""
			c.ConcernsResolvedAt = nil
			c.ConcernsResolvedBy = nil
		case from == domain.StatusOnHoldHR:
			c.ConcernsResolvedAt = optionalString(e.ts())
			c.ConcernsResolvedBy = optionalString(req.ActorID)
		}
		c.Status = target
		e.logger().Info("engine", "case status overridden", map[string]any{
			"case_id": c.ID, "from": from, "to": target, "actor_id": req.ActorID, "forced": req.Force,
		})
		return []pendingEvent{statusChanged(from, target, req.ActorID, reason, req.Force)}, nil
	})
}

// Resume returns a paused case to DRAFT. The step index stays where the pause
// left it and the concerns are kept, marked resolved.
func (e Engine) Resume(ctx context.Context, caseID, note, actorID string) (domain.Case, error) {
	return e.mutateCase(ctx, caseID, func(_ *sql.Tx, c *domain.Case) ([]pendingEvent, error) {
		if c.Status.Terminal() {
			return nil, domain.CaseTerminal(c.ID, c.Status)
		}
		if !c.Status.Paused() {
			return nil, domain.ConflictError("case %s is %s, not on hold", c.ID, c.Status)
		}
		from := c.Status
		c.Status = domain.StatusDraft
		c.ConcernsResolvedAt = optionalString(e.ts())
		c.ConcernsResolvedBy = optionalString(actorID)
		payload := map[string]any{"resolved_by": actorID, "step_index": c.CurrentStepIndex}
		if note = strings.TrimSpace(note); note != "" {
			payload["note"] = note
		}
		return []pendingEvent{
			statusChanged(from, c.Status, actorID, "", false),
			{Type: "system.case_resumed", Payload: payload},
		}, nil
	})
}
