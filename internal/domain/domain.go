package domain

type Case struct {
	ID                 string                     `json:"case_id"`
	ApplicationCode    string                     `json:"application_code,omitempty"`
	CandidateName      string                     `json:"candidate_name"`
	Role               string                     `json:"role"`
	Nationality        string                     `json:"nationality"`
	WorkLocation       string                     `json:"work_location"`
	StartDate          string                     `json:"start_date,omitempty"`
	Salary             float64                    `json:"salary"`
	PriorNotes         string                     `json:"prior_notes,omitempty"`
	Benefits           map[string]any             `json:"benefits,omitempty"`
	Status             Status                     `json:"status" enum:"DRAFT,ON_HOLD_HR,DECLINED,SUBMITTED_FOR_HR_REVIEW,ONBOARDING_IN_PROGRESS,READY_FOR_DAY1,ONBOARDING_COMPLETE"`
	CurrentStepIndex   int                        `json:"current_step_index" minimum:"0" maximum:"7"`
	Steps              map[StepKey]map[string]any `json:"steps"`
	CompletedSteps     []StepKey                  `json:"completed_steps"`
	CandidateConcerns  string                     `json:"candidate_concerns,omitempty"`
	SalaryAppeal       string                     `json:"salary_appeal,omitempty"`
	ConcernsResolvedAt *string                    `json:"concerns_resolved_at,omitempty" format:"date-time"`
	ConcernsResolvedBy *string                    `json:"concerns_resolved_by,omitempty"`
	AgentPlan          *AgentPlan                 `json:"agent_plan,omitempty"`
	AgentRun           AgentRun                   `json:"agent_run"`
	RiskStatus         string                     `json:"risk_status,omitempty"`
	CreatedAt          string                     `json:"created_at" format:"date-time"`
	UpdatedAt          string                     `json:"updated_at" format:"date-time"`
}

// OfferDecision returns the decision saved on the offer step, if any.
func (c Case) OfferDecision() string {
	if offer, ok := c.Steps[StepOffer]; ok {
		if d, ok := offer["decision"].(string); ok {
			return d
		}
	}
	return ""
}

// HasUnresolvedConcern reports whether the case carries a pause reason HR has not resolved.
func (c Case) HasUnresolvedConcern() bool {
	return (c.CandidateConcerns != "" || c.SalaryAppeal != "") && c.ConcernsResolvedAt == nil
}

type AgentRun struct {
	Status     string  `json:"status" enum:"idle,running,succeeded,failed"`
	Error      string  `json:"error,omitempty"`
	StartedAt  *string `json:"started_at,omitempty" format:"date-time"`
	FinishedAt *string `json:"finished_at,omitempty" format:"date-time"`
}

const (
	AgentRunIdle      = "idle"
	AgentRunRunning   = "running"
	AgentRunSucceeded = "succeeded"
	AgentRunFailed    = "failed"
)

type ApplicationCode struct {
	Code      string `json:"code"`
	CaseID    string `json:"case_id"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EmployeeRecord struct {
	EmployeeID string `json:"employee_id"`
	CaseID     string `json:"case_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type WorkplaceAssignment struct {
	CaseID      string `json:"case_id"`
	EmployeeID  string `json:"employee_id"`
	SeatID      string `json:"seat_id,omitempty"`
	BundleName  string `json:"bundle_name,omitempty"`
	DeviceModel string `json:"device_model,omitempty"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// Employee joins an employee record with its case and assets.
type Employee struct {
	EmployeeRecord
	Role      string                     `json:"role"`
	StartDate string                     `json:"start_date,omitempty"`
	Status    Status                     `json:"status"`
	Steps     map[StepKey]map[string]any `json:"steps"`
	Assets    *WorkplaceAssignment       `json:"assets,omitempty"`
}

type HRUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role" enum:"hr_admin,hr"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Event is one message on a case's live feed.
type Event struct {
	Seq     int64          `json:"seq"`
	CaseID  string         `json:"case_id"`
	Type    string         `json:"type"`
	TS      string         `json:"ts" format:"date-time"`
	Payload map[string]any `json:"payload"`
}

type StockStatus string

const (
	StockOK         StockStatus = "OK"
	StockLow        StockStatus = "LOW_STOCK"
	StockOutOfStock StockStatus = "OUT_OF_STOCK"
	StockUnknown    StockStatus = "UNKNOWN"
)

type StockCheck struct {
	Model        string      `json:"model"`
	StockStatus  StockStatus `json:"stock_status"`
	MissingItems []string    `json:"missing_items"`
}

type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type EmailResult string

const (
	EmailQueued  EmailResult = "queued"
	EmailSent    EmailResult = "sent"
	EmailSkipped EmailResult = "skipped"
)

type EmailOutcome struct {
	Result EmailResult `json:"result" enum:"queued,sent,skipped"`
	Reason string      `json:"reason,omitempty"`
	Email  *Email      `json:"email,omitempty"`
}

// CaseSummary is the HR list view of a case.
type CaseSummary struct {
	ID                string `json:"case_id"`
	CandidateName     string `json:"candidate_name"`
	Role              string `json:"role"`
	WorkLocation      string `json:"work_location"`
	StartDate         string `json:"start_date,omitempty"`
	Status            Status `json:"status"`
	CurrentStepIndex  int    `json:"current_step_index"`
	ApplicationCode   string `json:"application_code,omitempty"`
	OfferDecision     string `json:"offer_decision,omitempty"`
	CandidateConcerns string `json:"candidate_concerns,omitempty"`
	SalaryAppeal      string `json:"salary_appeal,omitempty"`
	ConcernsResolved  bool   `json:"concerns_resolved"`
	RiskStatus        string `json:"risk_status,omitempty"`
	UpdatedAt         string `json:"updated_at" format:"date-time"`
}

func (c Case) Summary() CaseSummary {
	return CaseSummary{
		ID:                c.ID,
		CandidateName:     c.CandidateName,
		Role:              c.Role,
		WorkLocation:      c.WorkLocation,
		StartDate:         c.StartDate,
		Status:            c.Status,
		CurrentStepIndex:  c.CurrentStepIndex,
		ApplicationCode:   c.ApplicationCode,
		OfferDecision:     c.OfferDecision(),
		CandidateConcerns: c.CandidateConcerns,
		SalaryAppeal:      c.SalaryAppeal,
		ConcernsResolved:  c.ConcernsResolvedAt != nil,
		RiskStatus:        c.RiskStatus,
		UpdatedAt:         c.UpdatedAt,
	}
}
