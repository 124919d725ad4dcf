package server

import (
	"onboardline/internal/domain"
	"onboardline/internal/engine"
)

// Request payloads

type CandidateSessionRequest struct {
	ApplicationCode string `json:"application_code" minLength:"1"`
}

type SubmitStepRequest struct {
	Payload       map[string]any `json:"payload,omitempty"`
	NextStepIndex *int           `json:"next_step_index,omitempty" doc:"Index the wizard resumes at, 0..7"`
}

type CreateCaseRequest struct {
	CandidateName string         `json:"candidate_name"`
	Role          string         `json:"role"`
	Nationality   string         `json:"nationality"`
	WorkLocation  string         `json:"work_location"`
	StartDate     string         `json:"start_date,omitempty" example:"2026-05-04"`
	Salary        float64        `json:"salary,omitempty"`
	PriorNotes    string         `json:"prior_notes,omitempty"`
	Benefits      map[string]any `json:"benefits,omitempty"`
}

func (r CreateCaseRequest) input() engine.CaseInput {
	return engine.CaseInput{
		CandidateName: r.CandidateName,
		Role:          r.Role,
		Nationality:   r.Nationality,
		WorkLocation:  r.WorkLocation,
		StartDate:     r.StartDate,
		Salary:        r.Salary,
		PriorNotes:    r.PriorNotes,
		Benefits:      r.Benefits,
	}
}

type EditCaseRequest struct {
	CandidateName *string         `json:"candidate_name,omitempty"`
	Role          *string         `json:"role,omitempty"`
	Nationality   *string         `json:"nationality,omitempty"`
	WorkLocation  *string         `json:"work_location,omitempty"`
	StartDate     *string         `json:"start_date,omitempty"`
	Salary        *float64        `json:"salary,omitempty"`
	PriorNotes    *string         `json:"prior_notes,omitempty"`
	Benefits      *map[string]any `json:"benefits,omitempty"`
}

func (r EditCaseRequest) patch() engine.CasePatch {
	return engine.CasePatch{
		CandidateName: r.CandidateName,
		Role:          r.Role,
		Nationality:   r.Nationality,
		WorkLocation:  r.WorkLocation,
		StartDate:     r.StartDate,
		Salary:        r.Salary,
		PriorNotes:    r.PriorNotes,
		Benefits:      r.Benefits,
	}
}

type StatusOverrideRequest struct {
	Status string `json:"status" enum:"DRAFT,ON_HOLD_HR,DECLINED,SUBMITTED_FOR_HR_REVIEW,ONBOARDING_IN_PROGRESS,READY_FOR_DAY1,ONBOARDING_COMPLETE"`
	Reason string `json:"reason,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

type ResumeRequest struct {
	Note string `json:"note,omitempty"`
}

type OrchestrateRequest struct {
	Notes string `json:"notes,omitempty"`
}

type AssetsRequest struct {
	SeatID      *string `json:"seat_id,omitempty"`
	BundleName  *string `json:"bundle_name,omitempty"`
	DeviceModel *string `json:"device_model,omitempty"`
}

type StockCheckRequest struct {
	Model string `json:"model"`
}

type LowStockEmailRequest struct {
	CaseID       string   `json:"case_id"`
	ITEmail      string   `json:"it_email,omitempty" doc:"Defaults to mail.it_default_email"`
	Model        string   `json:"model"`
	MissingItems []string `json:"missing_items,omitempty"`
	Force        bool     `json:"force,omitempty"`
}

type WelcomeEmailRequest struct {
	To    string `json:"to,omitempty" doc:"Defaults to the address the candidate entered in the wizard"`
	Force bool   `json:"force,omitempty"`
}

type CreateHRUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role" enum:"hr_admin,hr"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"hr_admin,hr,candidate"`
	CaseID  string `json:"case_id,omitempty"`
}

// Response payloads

type SessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at,omitempty" format:"date-time"`
	Case      domain.Case `json:"case"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type CaseListResponse struct {
	Items []domain.CaseSummary `json:"items"`
}

type EventListResponse struct {
	Items []domain.Event `json:"items"`
}

type EmployeeListResponse struct {
	Items []domain.Employee `json:"items"`
}

type HRUserListResponse struct {
	Items []domain.HRUser `json:"items"`
}

type APIKeyResponse struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	Key     string `json:"key" doc:"Shown once"`
}

// FeedReady opens every feed stream.
type FeedReady struct {
	CaseID string        `json:"case_id"`
	Status domain.Status `json:"status"`
}
