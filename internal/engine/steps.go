package engine

import (
	"context"
	"database/sql"
	"strings"

	"onboardline/internal/domain"
)

// StepSubmission is one wizard step posted by the candidate.
type StepSubmission struct {
	CaseID  string
	StepKey string
	Payload map[string]any
	// NextStepIndex is where the wizard resumes; nil keeps the current index.
	NextStepIndex *int
	ActorID       string
}

// SubmitStep saves a step payload, applies the offer and review side effects
// and, once the case is submitted, runs the orchestrator. On an orchestrator
// failure the saved case is returned alongside the error.
func (e Engine) SubmitStep(ctx context.Context, sub StepSubmission) (domain.Case, error) {
	key, ok := domain.ParseStepKey(sub.StepKey)
	if !ok {
		return domain.Case{}, domain.InvalidStep("unknown step %q", sub.StepKey)
	}
	if sub.NextStepIndex != nil && !domain.ValidStepIndex(*sub.NextStepIndex) {
		return domain.Case{}, domain.InvalidStep("step index %d out of range 0..%d", *sub.NextStepIndex, domain.StepDone)
	}
	payload := sub.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	runOrchestrator := false
	c, err := e.mutateCase(ctx, sub.CaseID, func(_ *sql.Tx, c *domain.Case) ([]pendingEvent, error) {
		if c.Status.Terminal() {
			return nil, domain.CaseTerminal(c.ID, c.Status)
		}
		if c.Status.Paused() && key != domain.StepOffer {
			return nil, domain.CasePaused(c.ID)
		}
		from := c.Status
		nextIndex := sub.NextStepIndex
		var evts []pendingEvent

		switch key {
		case domain.StepOffer:
			pinned, err := e.applyOffer(c, payload)
			if err != nil {
				return nil, err
			}
			if pinned != nil {
				nextIndex = pinned
			}
		case domain.StepReview:
			if attested, _ := payload["attested"].(bool); !attested {
				return nil, domain.InvalidStep("review requires attested=true")
			}
			if c.Status == domain.StatusDraft {
				c.Status = domain.StatusSubmittedForHRReview
			}
			runOrchestrator = c.Status == domain.StatusSubmittedForHRReview
		}

		if c.Steps == nil {
			c.Steps = map[domain.StepKey]map[string]any{}
		}
		c.Steps[key] = payload
		c.CompletedSteps = addCompleted(c.CompletedSteps, key)
		if nextIndex != nil {
			c.CurrentStepIndex = *nextIndex
		}

		evts = append(evts, pendingEvent{Type: "ui.step_saved", Payload: map[string]any{
			"step_key":           key,
			"current_step_index": c.CurrentStepIndex,
		}})
		if c.Status != from {
			reason := ""
			if c.Status.Paused() {
				reason = firstNonEmpty(c.CandidateConcerns, c.SalaryAppeal)
			}
			evts = append(evts, statusChanged(from, c.Status, sub.ActorID, reason, false))
		}
		return evts, nil
	})
	if err != nil || !runOrchestrator {
		return c, err
	}
	return e.runOrchestration(ctx, c.ID, "", sub.ActorID)
}

// applyOffer folds the offer decision into the case. A pause returns the
// pinned offer index.
func (e Engine) applyOffer(c *domain.Case, payload map[string]any) (*int, error) {
	decision, _ := payload["decision"].(string)
	decision = strings.ToLower(strings.TrimSpace(decision))
	if decision != "" {
		payload["decision"] = decision
	}
	concerns := stringField(payload, "concerns")
	appeal := stringField(payload, "salaryAppeal")
	offerIndex := domain.StepIndex(domain.StepOffer)

	switch decision {
	case domain.OfferAccept:
		// HR resolves a pause; the concern payload stays on the case
		if c.Status.Paused() {
			return nil, domain.CasePaused(c.ID)
		}
		return nil, nil
	case domain.OfferDecline:
		if err := ensureStatusTransition(c.Status, domain.StatusDeclined, false); err != nil {
			return nil, domain.InvalidStep("offer cannot be declined while case is %s", c.Status)
		}
		c.Status = domain.StatusDeclined
		idx := c.CurrentStepIndex
		return &idx, nil
	case domain.OfferConcern, domain.OfferAppeal:
		if decision == domain.OfferAppeal && appeal == "" {
			return nil, domain.InvalidStep("an appeal requires salaryAppeal")
		}
		if concerns == "" && appeal == "" {
			return nil, domain.InvalidStep("a concern requires concerns or salaryAppeal")
		}
		if !c.Status.Paused() {
			if err := ensureStatusTransition(c.Status, domain.StatusOnHoldHR, false); err != nil {
				return nil, domain.InvalidStep("offer cannot be reopened while case is %s", c.Status)
			}
		}
		c.Status = domain.StatusOnHoldHR
		c.CandidateConcerns = concerns
		c.SalaryAppeal = appeal
		c.ConcernsResolvedAt = nil
		c.ConcernsResolvedBy = nil
		return &offerIndex, nil
	case "":
		return nil, domain.InvalidStep("offer requires a decision")
	}
	return nil, domain.InvalidStep("unknown offer decision %q", decision)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// addCompleted appends key once, keeping wizard order.
func addCompleted(done []domain.StepKey, key domain.StepKey) []domain.StepKey {
	seen := map[domain.StepKey]bool{key: true}
	for _, k := range done {
		seen[k] = true
	}
	out := make([]domain.StepKey, 0, len(seen))
	for _, k := range domain.StepSequence {
		if seen[k] {
			out = append(out, k)
		}
	}
	return out
}
