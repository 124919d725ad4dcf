package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"onboardline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

const caseColumns = `id,candidate_name,role,nationality,work_location,COALESCE(start_date,''),salary,COALESCE(prior_notes,''),benefits_json,status,current_step_index,steps_json,completed_steps_json,COALESCE(candidate_concerns,''),COALESCE(salary_appeal,''),concerns_resolved_at,concerns_resolved_by,agent_plan_json,agent_run_json,COALESCE(risk_status,''),created_at,updated_at,
COALESCE((SELECT code FROM application_codes ac WHERE ac.case_id=cases.id AND ac.active=1),'')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (domain.Case, error) {
	var (
		c                      domain.Case
		status                 string
		benefits, plan, run    sql.NullString
		steps, completed       string
		resolvedAt, resolvedBy sql.NullString
	)
	err := row.Scan(&c.ID, &c.CandidateName, &c.Role, &c.Nationality, &c.WorkLocation, &c.StartDate, &c.Salary, &c.PriorNotes,
		&benefits, &status, &c.CurrentStepIndex, &steps, &completed, &c.CandidateConcerns, &c.SalaryAppeal,
		&resolvedAt, &resolvedBy, &plan, &run, &c.RiskStatus, &c.CreatedAt, &c.UpdatedAt, &c.ApplicationCode)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Status = domain.Status(status)
	if benefits.Valid && benefits.String != "" {
		if err := json.Unmarshal([]byte(benefits.String), &c.Benefits); err != nil {
			return c, fmt.Errorf("decode benefits of %s: %w", c.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(steps), &c.Steps); err != nil {
		return c, fmt.Errorf("decode steps of %s: %w", c.ID, err)
	}
	if c.Steps == nil {
		c.Steps = map[domain.StepKey]map[string]any{}
	}
	if err := json.Unmarshal([]byte(completed), &c.CompletedSteps); err != nil {
		return c, fmt.Errorf("decode completed steps of %s: %w", c.ID, err)
	}
	if c.CompletedSteps == nil {
		c.CompletedSteps = []domain.StepKey{}
	}
	if resolvedAt.Valid {
		c.ConcernsResolvedAt = &resolvedAt.String
	}
	if resolvedBy.Valid {
		c.ConcernsResolvedBy = &resolvedBy.String
	}
	if plan.Valid && plan.String != "" {
		var p domain.AgentPlan
		if err := json.Unmarshal([]byte(plan.String), &p); err != nil {
			return c, fmt.Errorf("decode agent plan of %s: %w", c.ID, err)
		}
		c.AgentPlan = &p
	}
	c.AgentRun = domain.AgentRun{Status: domain.AgentRunIdle}
	if run.Valid && run.String != "" {
		if err := json.Unmarshal([]byte(run.String), &c.AgentRun); err != nil {
			return c, fmt.Errorf("decode agent run of %s: %w", c.ID, err)
		}
	}
	return c, nil
}

type caseJSON struct {
	benefits, steps, completed, plan, run any
}

func encodeCase(c domain.Case) (caseJSON, error) {
	var out caseJSON
	if c.Steps == nil {
		c.Steps = map[domain.StepKey]map[string]any{}
	}
	if c.CompletedSteps == nil {
		c.CompletedSteps = []domain.StepKey{}
	}
	steps, err := json.Marshal(c.Steps)
	if err != nil {
		return out, fmt.Errorf("encode steps: %w", err)
	}
	completed, err := json.Marshal(c.CompletedSteps)
	if err != nil {
		return out, fmt.Errorf("encode completed steps: %w", err)
	}
	run, err := json.Marshal(c.AgentRun)
	if err != nil {
		return out, fmt.Errorf("encode agent run: %w", err)
	}
	out.steps, out.completed, out.run = string(steps), string(completed), string(run)
	if len(c.Benefits) > 0 {
		b, err := json.Marshal(c.Benefits)
		if err != nil {
			return out, fmt.Errorf("encode benefits: %w", err)
		}
		out.benefits = string(b)
	}
	if c.AgentPlan != nil {
		p, err := json.Marshal(c.AgentPlan)
		if err != nil {
			return out, fmt.Errorf("encode agent plan: %w", err)
		}
		out.plan = string(p)
	}
	return out, nil
}

func (r Repo) InsertCase(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	enc, err := encodeCase(c)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO cases(id,candidate_name,role,nationality,work_location,start_date,salary,prior_notes,benefits_json,status,current_step_index,steps_json,completed_steps_json,candidate_concerns,salary_appeal,concerns_resolved_at,concerns_resolved_by,agent_plan_json,agent_run_json,risk_status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.CandidateName, c.Role, c.Nationality, c.WorkLocation, nullable(c.StartDate), c.Salary, nullable(c.PriorNotes),
		enc.benefits, string(c.Status), c.CurrentStepIndex, enc.steps, enc.completed, nullable(c.CandidateConcerns), nullable(c.SalaryAppeal),
		nullableStringPtr(c.ConcernsResolvedAt), nullableStringPtr(c.ConcernsResolvedBy), enc.plan, enc.run, nullable(c.RiskStatus),
		c.CreatedAt, c.UpdatedAt)
	return err
}

// UpdateCase rewrites every mutable column of the case.
func (r Repo) UpdateCase(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	enc, err := encodeCase(c)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE cases SET candidate_name=?, role=?, nationality=?, work_location=?, start_date=?, salary=?, prior_notes=?, benefits_json=?, status=?, current_step_index=?, steps_json=?, completed_steps_json=?, candidate_concerns=?, salary_appeal=?, concerns_resolved_at=?, concerns_resolved_by=?, agent_plan_json=?, agent_run_json=?, risk_status=?, updated_at=? WHERE id=?`,
		c.CandidateName, c.Role, c.Nationality, c.WorkLocation, nullable(c.StartDate), c.Salary, nullable(c.PriorNotes), enc.benefits,
		string(c.Status), c.CurrentStepIndex, enc.steps, enc.completed, nullable(c.CandidateConcerns), nullable(c.SalaryAppeal),
		nullableStringPtr(c.ConcernsResolvedAt), nullableStringPtr(c.ConcernsResolvedBy), enc.plan, enc.run, nullable(c.RiskStatus),
		c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return r.GetCaseTx(ctx, nil, id)
}

func (r Repo) GetCaseTx(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	return scanCase(r.q(tx).QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id=?`, id))
}

type CaseFilters struct {
	Status domain.Status
	Limit  int
}

func (r Repo) ListCases(ctx context.Context, f CaseFilters) ([]domain.Case, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + caseColumns + ` FROM cases ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// DeleteCase removes the case; codes, employee record and assignment cascade.
func (r Repo) DeleteCase(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM cases WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ActiveApplicationCode(ctx context.Context, tx *sql.Tx, caseID string) (domain.ApplicationCode, error) {
	var ac domain.ApplicationCode
	var active int
	err := r.q(tx).QueryRowContext(ctx, `SELECT code,case_id,active,created_at FROM application_codes WHERE case_id=? AND active=1`, caseID).
		Scan(&ac.Code, &ac.CaseID, &active, &ac.CreatedAt)
	if err == sql.ErrNoRows {
		return ac, ErrNotFound
	}
	ac.Active = active == 1
	return ac, err
}

func (r Repo) InsertApplicationCode(ctx context.Context, tx *sql.Tx, ac domain.ApplicationCode) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO application_codes(code,case_id,active,created_at) VALUES (?,?,1,?)`, ac.Code, ac.CaseID, ac.CreatedAt)
	return err
}

// CaseIDByApplicationCode resolves an active code, case-insensitively.
func (r Repo) CaseIDByApplicationCode(ctx context.Context, code string) (string, error) {
	var caseID string
	err := r.DB.QueryRowContext(ctx, `SELECT case_id FROM application_codes WHERE code=? AND active=1`, strings.ToUpper(strings.TrimSpace(code))).Scan(&caseID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return caseID, err
}

func jsonUnmarshalString(s string, v any) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
