package onboardlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Onboardline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Case represents the API case model (partial).
type Case struct {
	ID                string                    `json:"case_id"`
	ApplicationCode   string                    `json:"application_code,omitempty"`
	CandidateName     string                    `json:"candidate_name"`
	Role              string                    `json:"role"`
	Nationality       string                    `json:"nationality"`
	WorkLocation      string                    `json:"work_location"`
	StartDate         string                    `json:"start_date,omitempty"`
	Salary            float64                   `json:"salary"`
	Status            string                    `json:"status"`
	CurrentStepIndex  int                       `json:"current_step_index"`
	Steps             map[string]map[string]any `json:"steps"`
	CompletedSteps    []string                  `json:"completed_steps"`
	CandidateConcerns string                    `json:"candidate_concerns,omitempty"`
	SalaryAppeal      string                    `json:"salary_appeal,omitempty"`
	AgentPlan         map[string]any            `json:"agent_plan,omitempty"`
	AgentRun          struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	} `json:"agent_run"`
	RiskStatus string `json:"risk_status,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

// CaseSummary is one row of the HR case list.
type CaseSummary struct {
	ID                string `json:"case_id"`
	CandidateName     string `json:"candidate_name"`
	Role              string `json:"role"`
	WorkLocation      string `json:"work_location"`
	StartDate         string `json:"start_date,omitempty"`
	Status            string `json:"status"`
	CurrentStepIndex  int    `json:"current_step_index"`
	ApplicationCode   string `json:"application_code,omitempty"`
	OfferDecision     string `json:"offer_decision,omitempty"`
	CandidateConcerns string `json:"candidate_concerns,omitempty"`
	SalaryAppeal      string `json:"salary_appeal,omitempty"`
	ConcernsResolved  bool   `json:"concerns_resolved"`
	RiskStatus        string `json:"risk_status,omitempty"`
	UpdatedAt         string `json:"updated_at"`
}

// Event is one live feed message.
type Event struct {
	Seq     int64          `json:"seq"`
	CaseID  string         `json:"case_id"`
	Type    string         `json:"type"`
	TS      string         `json:"ts"`
	Payload map[string]any `json:"payload"`
}

type Session struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Case      Case   `json:"case"`
}

type ApplicationCode struct {
	Code   string `json:"code"`
	CaseID string `json:"case_id"`
}

type StockCheck struct {
	Model        string   `json:"model"`
	StockStatus  string   `json:"stock_status"`
	MissingItems []string `json:"missing_items"`
}

type EmailOutcome struct {
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
	Email  *struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	} `json:"email,omitempty"`
}

// Employee is a confirmed hire with its workplace assets.
type Employee struct {
	EmployeeID string         `json:"employee_id"`
	CaseID     string         `json:"case_id"`
	FullName   string         `json:"full_name"`
	Email      string         `json:"email"`
	Department string         `json:"department"`
	Role       string         `json:"role"`
	StartDate  string         `json:"start_date,omitempty"`
	Status     string         `json:"status"`
	Assets     map[string]any `json:"assets,omitempty"`
}

// CreateCaseInput seeds a case.
type CreateCaseInput struct {
	CandidateName string         `json:"candidate_name"`
	Role          string         `json:"role"`
	Nationality   string         `json:"nationality"`
	WorkLocation  string         `json:"work_location"`
	StartDate     string         `json:"start_date,omitempty"`
	Salary        float64        `json:"salary,omitempty"`
	PriorNotes    string         `json:"prior_notes,omitempty"`
	Benefits      map[string]any `json:"benefits,omitempty"`
}

// LowStockEmailInput asks IT to restock a device model for a case.
type LowStockEmailInput struct {
	CaseID       string   `json:"case_id"`
	ITEmail      string   `json:"it_email,omitempty"`
	Model        string   `json:"model"`
	MissingItems []string `json:"missing_items,omitempty"`
	Force        bool     `json:"force,omitempty"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

// CandidateSession exchanges an application code for a candidate token and
// uses it for later calls.
func (c *Client) CandidateSession(ctx context.Context, code string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "v0/candidate/session", map[string]any{"application_code": code}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// GetCase fetches a case.
func (c *Client) GetCase(ctx context.Context, caseID string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodGet, "v0/cases/"+url.PathEscape(caseID), nil, &resp)
	return resp, err
}

// SubmitStep saves a wizard step. A nil next keeps the current index.
func (c *Client) SubmitStep(ctx context.Context, caseID, stepKey string, payload map[string]any, next *int) (Case, error) {
	body := map[string]any{}
	if payload != nil {
		body["payload"] = payload
	}
	if next != nil {
		body["next_step_index"] = *next
	}
	var resp Case
	endpoint := fmt.Sprintf("v0/cases/%s/steps/%s", url.PathEscape(caseID), url.PathEscape(stepKey))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateCase opens a case.
func (c *Client) CreateCase(ctx context.Context, in CreateCaseInput) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodPost, "v0/hr/cases", in, &resp)
	return resp, err
}

// ListCases lists case summaries, optionally for one status.
func (c *Client) ListCases(ctx context.Context, status string, limit int) ([]CaseSummary, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "v0/hr/cases"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []CaseSummary `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// DeleteCase removes a case.
func (c *Client) DeleteCase(ctx context.Context, caseID string) error {
	return c.do(ctx, http.MethodDelete, c.hrCasePath(caseID, ""), nil, nil)
}

// GenerateApplicationCode returns the case's application code, issuing one if needed.
func (c *Client) GenerateApplicationCode(ctx context.Context, caseID string) (ApplicationCode, error) {
	var resp ApplicationCode
	err := c.do(ctx, http.MethodPost, c.hrCasePath(caseID, "application-code"), nil, &resp)
	return resp, err
}

// OverrideStatus moves a case to status on HR's behalf.
func (c *Client) OverrideStatus(ctx context.Context, caseID, status, reason string, force bool) (Case, error) {
	body := map[string]any{"status": status, "reason": reason, "force": force}
	var resp Case
	err := c.do(ctx, http.MethodPost, c.hrCasePath(caseID, "status"), body, &resp)
	return resp, err
}

// Resume reopens a case put on hold by candidate concerns.
func (c *Client) Resume(ctx context.Context, caseID, note string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodPost, c.hrCasePath(caseID, "resume"), map[string]any{"note": note}, &resp)
	return resp, err
}

// Orchestrate accepts a submitted case and runs the orchestrator.
func (c *Client) Orchestrate(ctx context.Context, caseID, notes string, async bool) (Case, error) {
	endpoint := c.hrCasePath(caseID, "orchestrate")
	if async {
		endpoint += "?async=true"
	}
	var resp Case
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"notes": notes}, &resp)
	return resp, err
}

// RecentEvents returns the latest buffered events of a case.
func (c *Client) RecentEvents(ctx context.Context, caseID string, limit int) ([]Event, error) {
	endpoint := c.hrCasePath(caseID, "events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// ListEmployees lists confirmed employees.
func (c *Client) ListEmployees(ctx context.Context) ([]Employee, error) {
	var resp struct {
		Items []Employee `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/hr/employees", nil, &resp)
	return resp.Items, err
}

// StockCheck checks hardware stock for a device model.
func (c *Client) StockCheck(ctx context.Context, model string) (StockCheck, error) {
	var resp StockCheck
	err := c.do(ctx, http.MethodPost, "v0/it/stock-check", map[string]any{"model": model}, &resp)
	return resp, err
}

// LowStockEmail notifies IT about missing hardware.
func (c *Client) LowStockEmail(ctx context.Context, in LowStockEmailInput) (EmailOutcome, error) {
	var resp EmailOutcome
	err := c.do(ctx, http.MethodPost, "v0/it/low-stock-email", in, &resp)
	return resp, err
}

// WelcomeEmail sends the welcome email; an empty to uses the wizard address.
func (c *Client) WelcomeEmail(ctx context.Context, caseID, to string, force bool) (EmailOutcome, error) {
	var resp EmailOutcome
	err := c.do(ctx, http.MethodPost, c.hrCasePath(caseID, "welcome-email"), map[string]any{"to": to, "force": force}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
}

func (c *Client) hrCasePath(caseID, p string) string {
	endpoint := "v0/hr/cases/" + url.PathEscape(caseID)
	if p != "" {
		endpoint += "/" + strings.TrimLeft(p, "/")
	}
	return endpoint
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
