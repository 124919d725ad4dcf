package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"onboardline/internal/domain"
	"onboardline/internal/mailer"
	"onboardline/internal/orchestrator"
	"onboardline/internal/repo"
)

// OrchestrateRequest is the HR action that starts or re-runs planning.
type OrchestrateRequest struct {
	CaseID  string
	Notes   string
	ActorID string
	Async   bool
}

// Orchestrate accepts a submitted case into onboarding and runs the
// orchestrator, inline or through the job queue.
func (e Engine) Orchestrate(ctx context.Context, req OrchestrateRequest) (domain.Case, error) {
	if req.Async && e.Jobs == nil {
		return domain.Case{}, domain.InvalidInput("async orchestration is not enabled")
	}
	c, err := e.mutateCase(ctx, req.CaseID, func(_ *sql.Tx, c *domain.Case) ([]pendingEvent, error) {
		switch c.Status {
		case domain.StatusSubmittedForHRReview:
			from := c.Status
			c.Status = domain.StatusOnboardingInProgress
			return []pendingEvent{statusChanged(from, c.Status, req.ActorID, "", false)}, nil
		case domain.StatusOnboardingInProgress, domain.StatusReadyForDay1:
			return nil, nil
		}
		if c.Status.Terminal() {
			return nil, domain.CaseTerminal(c.ID, c.Status)
		}
		return nil, domain.ConflictError("case %s is %s; the candidate has not submitted yet", c.ID, c.Status)
	})
	if err != nil {
		return c, err
	}
	if req.Async {
		if err := e.Jobs.Enqueue(ctx, OrchestrationJob{CaseID: c.ID, Notes: req.Notes, ActorID: req.ActorID}); err != nil {
			return c, domain.Upstream("orchestration queue", err)
		}
		e.publish(c.ID, "system.orchestration_queued", map[string]any{"actor_id": req.ActorID})
		return c, nil
	}
	return e.runOrchestration(ctx, c.ID, req.Notes, req.ActorID)
}

// runOrchestration snapshots the case under the lock, runs the orchestrator
// without it and merges the plan back under the lock.
func (e Engine) runOrchestration(ctx context.Context, caseID, notes, actorID string) (domain.Case, error) {
	snap, err := e.prepareRun(ctx, caseID)
	if err != nil {
		return domain.Case{}, err
	}

	timeout := 20 * time.Second
	if e.Config != nil && e.Config.Orchestrator.Timeout > 0 {
		timeout = e.Config.Orchestrator.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	emit := func(evtType string, payload map[string]any) {
		e.publish(caseID, evtType, payload)
	}
	plan, runErr := e.runner().Run(runCtx, snap, notes, emit)
	if runErr == nil && runCtx.Err() != nil {
		runErr = runCtx.Err()
	}
	if errors.Is(runErr, context.DeadlineExceeded) {
		runErr = fmt.Errorf("orchestrator timed out after %s: %w", timeout, runErr)
	}

	// the merge must land even if the caller went away mid-run
	mergeCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		return e.failRun(mergeCtx, caseID, runErr)
	}
	return e.mergePlan(mergeCtx, caseID, snap, plan, actorID)
}

// prepareRun ensures the employee record, marks the run and returns the snapshot.
func (e Engine) prepareRun(ctx context.Context, caseID string) (orchestrator.Snapshot, error) {
	var snap orchestrator.Snapshot
	_, err := e.mutateCase(ctx, caseID, func(tx *sql.Tx, c *domain.Case) ([]pendingEvent, error) {
		if c.Status.Terminal() {
			return nil, domain.CaseTerminal(c.ID, c.Status)
		}
		rec, err := e.ensureEmployeeRecord(ctx, tx, *c)
		if err != nil {
			return nil, err
		}
		snap = orchestrator.SnapshotOf(*c)
		snap.EmployeeID = rec.EmployeeID
		a, err := e.Repo.GetWorkplaceAssignment(ctx, tx, c.ID)
		switch {
		case err == nil:
			snap.Assignment = &a
		case !errors.Is(err, repo.ErrNotFound):
			return nil, err
		}
		started := e.ts()
		c.AgentRun = domain.AgentRun{Status: domain.AgentRunRunning, StartedAt: &started}
		return nil, nil
	})
	return snap, err
}

// ensureEmployeeRecord inserts the case's employee record once and returns
// whichever record exists.
func (e Engine) ensureEmployeeRecord(ctx context.Context, tx *sql.Tx, c domain.Case) (domain.EmployeeRecord, error) {
	rec, err := e.Repo.GetEmployeeRecordByCase(ctx, tx, c.ID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return rec, err
	}
	email := mailer.CandidateEmail(c)
	if email == "" {
		email = "unknown@example.com"
	}
	department := "General"
	if d, ok := c.Benefits["department"].(string); ok && d != "" {
		department = d
	}
	rec = domain.EmployeeRecord{
		EmployeeID: fmt.Sprintf("EMP-%s-%s", c.ID, e.now().UTC().Format("20060102150405")),
		CaseID:     c.ID,
		FullName:   c.CandidateName,
		Email:      email,
		Department: department,
		CreatedAt:  e.ts(),
	}
	inserted, err := e.Repo.InsertEmployeeRecord(ctx, tx, rec)
	if err != nil {
		return rec, fmt.Errorf("insert employee record: %w", err)
	}
	if !inserted {
		return e.Repo.GetEmployeeRecordByCase(ctx, tx, c.ID)
	}
	e.logger().Info("engine", "employee record created", map[string]any{"case_id": c.ID, "employee_id": rec.EmployeeID})
	return rec, nil
}

func (e Engine) failRun(ctx context.Context, caseID string, runErr error) (domain.Case, error) {
	e.logger().Error("engine", "orchestrator failed", map[string]any{"case_id": caseID, "error": runErr})
	c, err := e.mutateCase(ctx, caseID, func(_ *sql.Tx, c *domain.Case) ([]pendingEvent, error) {
		if c.Status.Terminal() {
			return nil, domain.CaseTerminal(c.ID, c.Status)
		}
		finished := e.ts()
		c.AgentRun.Status = domain.AgentRunFailed
		c.AgentRun.Error = runErr.Error()
		c.AgentRun.FinishedAt = &finished
		return []pendingEvent{{Type: "agent.orchestrator_error", Payload: map[string]any{"error": runErr.Error()}}}, nil
	})
	if err != nil {
		e.discardRun(c, err)
		return c, err
	}
	return c, domain.Upstream("orchestrator", runErr)
}

// mergePlan stores the plan, assigns assets on the first successful run and
// moves the case between IN_PROGRESS and READY_FOR_DAY1.
func (e Engine) mergePlan(ctx context.Context, caseID string, snap orchestrator.Snapshot, plan domain.AgentPlan, actorID string) (domain.Case, error) {
	c, err := e.mutateCase(ctx, caseID, func(tx *sql.Tx, c *domain.Case) ([]pendingEvent, error) {
		if c.Status.Terminal() {
			return nil, domain.CaseTerminal(c.ID, c.Status)
		}
		var evts []pendingEvent
		finished := e.ts()
		c.AgentPlan = &plan
		c.AgentRun.Status = domain.AgentRunSucceeded
		c.AgentRun.Error = ""
		c.AgentRun.FinishedAt = &finished
		c.RiskStatus = domain.RiskGreen
		if plan.OverallStatus == domain.PlanAtRisk {
			c.RiskStatus = domain.RiskAtRisk
		}

		assigned := snap.Assignment != nil
		if !assigned && snap.EmployeeID != "" {
			d := plan.Day1Readiness
			a := domain.WorkplaceAssignment{
				CaseID:      c.ID,
				EmployeeID:  snap.EmployeeID,
				SeatID:      d.Seating.SeatID,
				BundleName:  d.WorkplaceEquipment.BundleName,
				DeviceModel: firstNonEmpty(d.WorkplaceEquipment.DeviceModel, d.DeviceRequest.Model),
				UpdatedAt:   finished,
			}
			if err := e.Repo.UpsertWorkplaceAssignment(ctx, tx, a); err != nil {
				return nil, fmt.Errorf("assign workplace: %w", err)
			}
			assigned = true
			evts = append(evts, pendingEvent{Type: "agent.assets_assigned", Payload: map[string]any{
				"employee_id":  a.EmployeeID,
				"seat_id":      a.SeatID,
				"bundle_name":  a.BundleName,
				"device_model": a.DeviceModel,
				"source":       "orchestrator",
			}})
		}

		from := c.Status
		switch {
		case from == domain.StatusOnboardingInProgress && plan.OverallStatus == domain.PlanOnTrack && assigned:
			c.Status = domain.StatusReadyForDay1
		case from == domain.StatusReadyForDay1 && plan.OverallStatus == domain.PlanAtRisk:
			c.Status = domain.StatusOnboardingInProgress
		}
		if c.Status != from {
			evts = append(evts, statusChanged(from, c.Status, actorID, "orchestrator "+plan.OverallStatus, false))
		}
		return evts, nil
	})
	if err != nil {
		e.discardRun(c, err)
	}
	return c, err
}

// discardRun reports a run whose result was dropped because the case ended
// while the orchestrator was running.
func (e Engine) discardRun(c domain.Case, err error) {
	if !errors.Is(err, domain.ErrCaseTerminal) {
		return
	}
	e.logger().Warn("engine", "orchestrator result discarded", map[string]any{"case_id": c.ID, "status": c.Status})
	e.publish(c.ID, "agent.plan_discarded", map[string]any{"status": c.Status})
}
