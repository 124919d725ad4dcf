package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseStatusFoldsAlias(t *testing.T) {
	cases := map[string]Status{
		"DRAFT":               StatusDraft,
		"negotiation_pending": StatusOnHoldHR,
		" ON_HOLD_HR ":        StatusOnHoldHR,
		"READY_FOR_DAY1":      StatusReadyForDay1,
	}
	for in, want := range cases {
		got, ok := ParseStatus(in)
		if !ok || got != want {
			t.Fatalf("ParseStatus(%q) = %q,%v want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseStatus("SUBMITTED"); ok {
		t.Fatalf("expected unknown status to be rejected")
	}
}

func TestStepSequence(t *testing.T) {
	if StepDone != 7 {
		t.Fatalf("expected 7 steps, got %d", StepDone)
	}
	if StepIndex(StepOffer) != 1 || StepIndex(StepReview) != 6 {
		t.Fatalf("unexpected step indices")
	}
	if _, ok := ParseStepKey("workauth"); ok {
		t.Fatalf("step keys are case sensitive")
	}
	if ValidStepIndex(-1) || ValidStepIndex(8) || !ValidStepIndex(7) {
		t.Fatalf("step index bounds wrong")
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("submit: %w", CaseTerminal("CASE-1", StatusDeclined))
	if !errors.Is(err, ErrCaseTerminal) {
		t.Fatalf("expected CaseTerminal to match sentinel")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("kinds must not cross-match")
	}
	if KindOf(err) != KindCaseTerminal {
		t.Fatalf("KindOf = %s", KindOf(err))
	}
	conflict := ConflictError("case %s is %s", "CASE-1", StatusDraft)
	if !errors.Is(conflict, ErrConflict) || KindOf(conflict) != KindConflict {
		t.Fatalf("conflict kind = %s", KindOf(conflict))
	}
	plan := AgentPlan{Conflicts: []Conflict{{Type: "VISA_BEFORE_START_RISK", Severity: 9}}}
	if plan.Conflicts[0].Severity != 9 {
		t.Fatalf("plan conflict lost")
	}
	up := Upstream("orchestrator", errors.New("boom"))
	if up.Error() != "orchestrator failed: boom" {
		t.Fatalf("unexpected message %q", up.Error())
	}
}
