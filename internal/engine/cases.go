package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"onboardline/internal/domain"
	"onboardline/internal/repo"
)

// CaseInput seeds a new onboarding case.
type CaseInput struct {
	CandidateName string         `validate:"required,max=200"`
	Role          string         `validate:"required,max=200"`
	Nationality   string         `validate:"required,max=100"`
	WorkLocation  string         `validate:"required,max=200"`
	StartDate     string         `validate:"omitempty,datetime=2006-01-02"`
	Salary        float64        `validate:"gte=0"`
	PriorNotes    string         `validate:"max=4000"`
	Benefits      map[string]any `validate:"-"`
}

// CasePatch edits the HR-owned seed fields; nil fields are left alone.
type CasePatch struct {
	CandidateName *string         `validate:"omitempty,min=1,max=200"`
	Role          *string         `validate:"omitempty,min=1,max=200"`
	Nationality   *string         `validate:"omitempty,min=1,max=100"`
	WorkLocation  *string         `validate:"omitempty,min=1,max=200"`
	StartDate     *string         `validate:"omitempty,datetime=2006-01-02"`
	Salary        *float64        `validate:"omitempty,gte=0"`
	PriorNotes    *string         `validate:"omitempty,max=4000"`
	Benefits      *map[string]any `validate:"-"`
}

const codeAttempts = 5

func newCaseID() string {
	return "CASE-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func newApplicationCode() string {
	return "APP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

func trimInput(in CaseInput) CaseInput {
	in.CandidateName = strings.TrimSpace(in.CandidateName)
	in.Role = strings.TrimSpace(in.Role)
	in.Nationality = strings.TrimSpace(in.Nationality)
	in.WorkLocation = strings.TrimSpace(in.WorkLocation)
	in.StartDate = strings.TrimSpace(in.StartDate)
	in.PriorNotes = strings.TrimSpace(in.PriorNotes)
	return in
}

// CreateCase opens a DRAFT case at step 0. The application code is issued separately.
func (e Engine) CreateCase(ctx context.Context, in CaseInput, actorID string) (domain.Case, error) {
	in = trimInput(in)
	if err := e.check(in); err != nil {
		return domain.Case{}, err
	}
	now := e.ts()
	c := domain.Case{
		ID:             newCaseID(),
		CandidateName:  in.CandidateName,
		Role:           in.Role,
		Nationality:    in.Nationality,
		WorkLocation:   in.WorkLocation,
		StartDate:      in.StartDate,
		Salary:         in.Salary,
		PriorNotes:     in.PriorNotes,
		Benefits:       in.Benefits,
		Status:         domain.StatusDraft,
		Steps:          map[domain.StepKey]map[string]any{},
		CompletedSteps: []domain.StepKey{},
		AgentRun:       domain.AgentRun{Status: domain.AgentRunIdle},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCase(ctx, tx, c); err != nil {
		return domain.Case{}, fmt.Errorf("insert case: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	e.logger().Info("engine", "case created", map[string]any{"case_id": c.ID, "actor_id": actorID})
	e.publish(c.ID, "system.case_created", map[string]any{"actor_id": actorID, "status": c.Status})
	return c, nil
}

// issueCode inserts a new active code, retrying on the rare collision.
func (e Engine) issueCode(ctx context.Context, tx *sql.Tx, caseID string) (string, error) {
	var lastErr error
	for i := 0; i < codeAttempts; i++ {
		code := newApplicationCode()
		err := e.Repo.InsertApplicationCode(ctx, tx, domain.ApplicationCode{Code: code, CaseID: caseID, Active: true, CreatedAt: e.ts()})
		if err == nil {
			return code, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("issue application code: %w", lastErr)
}

// GenerateApplicationCode returns the case's active code, issuing one when
// none exists.
func (e Engine) GenerateApplicationCode(ctx context.Context, caseID, actorID string) (domain.ApplicationCode, error) {
	unlock, err := e.lock(ctx, caseID)
	if err != nil {
		return domain.ApplicationCode{}, err
	}
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ApplicationCode{}, err
	}
	defer tx.Rollback()
	if _, err := e.loadCase(ctx, tx, caseID); err != nil {
		return domain.ApplicationCode{}, err
	}
	ac, err := e.Repo.ActiveApplicationCode(ctx, tx, caseID)
	if err == nil {
		return ac, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return ac, err
	}
	code, err := e.issueCode(ctx, tx, caseID)
	if err != nil {
		return ac, err
	}
	if err := tx.Commit(); err != nil {
		return ac, err
	}
	e.publish(caseID, "system.application_code_issued", map[string]any{"actor_id": actorID})
	return domain.ApplicationCode{Code: code, CaseID: caseID, Active: true, CreatedAt: e.ts()}, nil
}

// CaseForApplicationCode resolves a candidate's code. Unknown codes are
// reported as Unauthorized so codes cannot be probed.
func (e Engine) CaseForApplicationCode(ctx context.Context, code string) (domain.Case, error) {
	caseID, err := e.Repo.CaseIDByApplicationCode(ctx, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Case{}, domain.Unauthorized("invalid application code")
		}
		return domain.Case{}, err
	}
	return e.GetCase(ctx, caseID)
}

func (e Engine) GetCase(ctx context.Context, caseID string) (domain.Case, error) {
	c, err := e.Repo.GetCase(ctx, caseID)
	if err != nil {
		return c, notFoundCase(caseID, err)
	}
	return c, nil
}

// ListCases returns case summaries, newest first, optionally for one status.
func (e Engine) ListCases(ctx context.Context, status string, limit int) ([]domain.CaseSummary, error) {
	var f repo.CaseFilters
	if strings.TrimSpace(status) != "" {
		st, ok := domain.ParseStatus(status)
		if !ok {
			return nil, domain.InvalidInput("unknown status %q", status)
		}
		f.Status = st
	}
	f.Limit = limit
	cases, err := e.Repo.ListCases(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CaseSummary, 0, len(cases))
	for _, c := range cases {
		out = append(out, c.Summary())
	}
	return out, nil
}

// EditCase applies an HR patch to the seed fields of a live case.
func (e Engine) EditCase(ctx context.Context, caseID string, patch CasePatch, actorID string) (domain.Case, error) {
	if err := e.check(patch); err != nil {
		return domain.Case{}, err
	}
	return e.mutateCase(ctx, caseID, func(_ *sql.Tx, c *domain.Case) ([]pendingEvent, error) {
		if c.Status.Terminal() {
			return nil, domain.CaseTerminal(c.ID, c.Status)
		}
		var changed []string
		set := func(field string, dst *string, v *string) {
			if v == nil {
				return
			}
			nv := strings.TrimSpace(*v)
			if nv != *dst {
				*dst = nv
				changed = append(changed, field)
			}
		}
		set("candidate_name", &c.CandidateName, patch.CandidateName)
		set("role", &c.Role, patch.Role)
		set("nationality", &c.Nationality, patch.Nationality)
		set("work_location", &c.WorkLocation, patch.WorkLocation)
		set("start_date", &c.StartDate, patch.StartDate)
		set("prior_notes", &c.PriorNotes, patch.PriorNotes)
		if patch.Salary != nil && *patch.Salary != c.Salary {
			c.Salary = *patch.Salary
			changed = append(changed, "salary")
		}
		if patch.Benefits != nil {
			c.Benefits = *patch.Benefits
			changed = append(changed, "benefits")
		}
		if len(changed) == 0 {
			return nil, nil
		}
		return []pendingEvent{{Type: "system.case_updated", Payload: map[string]any{"actor_id": actorID, "fields": changed}}}, nil
	})
}

// DeleteCase removes a case and everything hanging off it, then closes its feed.
func (e Engine) DeleteCase(ctx context.Context, caseID, actorID string) error {
	unlock, err := e.lock(ctx, caseID)
	if err != nil {
		return err
	}
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCase(ctx, tx, caseID); err != nil {
		return notFoundCase(caseID, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.logger().Info("engine", "case deleted", map[string]any{"case_id": caseID, "actor_id": actorID})
	e.publish(caseID, "system.case_deleted", map[string]any{"actor_id": actorID})
	if e.Bus != nil {
		e.Bus.Forget(caseID)
	}
	return nil
}
